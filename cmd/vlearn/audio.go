package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/vango-go/vlearn/pkg/core/types"
	"github.com/vango-go/vlearn/pkg/core/voice"
)

const (
	micSampleRateHz = 16000
	micStopTimeout  = 2 * time.Second
)

// ffmpegMic records 16 kHz mono PCM from the default input device.
type ffmpegMic struct {
	goos string
}

func newFFmpegMic() (*ffmpegMic, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for voice capture (install ffmpeg and ensure it is in PATH)")
	}
	if _, err := micFFmpegArgs(runtime.GOOS); err != nil {
		return nil, err
	}
	return &ffmpegMic{goos: runtime.GOOS}, nil
}

func micFFmpegArgs(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", strconv.Itoa(micSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", strconv.Itoa(micSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("voice capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

func (m *ffmpegMic) Open(context.Context) (voice.Recording, error) {
	args, err := micFFmpegArgs(m.goos)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	rec := &ffmpegRecording{cmd: cmd, copied: make(chan struct{})}
	go func() {
		defer close(rec.copied)
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				rec.mu.Lock()
				rec.buf.Write(buf[:n])
				rec.mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()
	return rec, nil
}

type ffmpegRecording struct {
	cmd    *exec.Cmd
	copied chan struct{}
	once   sync.Once

	mu  sync.Mutex
	buf bytes.Buffer
}

// end asks ffmpeg to flush and exit, killing it if it does not.
func (r *ffmpegRecording) end() {
	r.once.Do(func() {
		if r.cmd.Process == nil {
			return
		}
		_ = r.cmd.Process.Signal(os.Interrupt)
		select {
		case <-r.copied:
		case <-time.After(micStopTimeout):
			_ = r.cmd.Process.Kill()
			<-r.copied
		}
		_ = r.cmd.Wait()
	})
}

func (r *ffmpegRecording) Stop() (types.Audio, error) {
	r.end()
	r.mu.Lock()
	defer r.mu.Unlock()
	data := append([]byte(nil), r.buf.Bytes()...)
	return types.Audio{Data: data, MediaType: types.AudioL16, SampleRate: micSampleRateHz}, nil
}

func (r *ffmpegRecording) Abort() error {
	r.end()
	return nil
}

// ffplayPlayer plays one clip per ffplay process.
type ffplayPlayer struct{}

func newFFplayPlayer() (*ffplayPlayer, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for voice playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	return &ffplayPlayer{}, nil
}

func ffplayArgs(audio types.Audio) []string {
	args := []string{"-nodisp", "-autoexit", "-loglevel", "error"}
	if types.BaseMediaType(audio.MediaType) == types.AudioL16 {
		rate := audio.SampleRate
		if rate <= 0 {
			rate = 24000
		}
		args = append(args, "-f", "s16le", "-ar", strconv.Itoa(rate), "-ac", "1")
	}
	return append(args, "-i", "pipe:0")
}

func (ffplayPlayer) Play(_ context.Context, audio types.Audio) (voice.PlaybackHandle, error) {
	cmd := exec.Command("ffplay", ffplayArgs(audio)...)
	cmd.Stdin = bytes.NewReader(audio.Data)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}
	h := &ffplayHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		if !h.stopped {
			h.err = err
		}
		h.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

type ffplayHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	stopped bool
	err     error
}

func (h *ffplayHandle) Stop() error {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	select {
	case <-h.done:
		return nil
	default:
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-h.done
	return nil
}

func (h *ffplayHandle) Done() <-chan struct{} { return h.done }

func (h *ffplayHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
