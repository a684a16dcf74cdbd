package metrics

import (
	"bufio"
	"net"
	"net/http"
)

type codeWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *codeWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *codeWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

type hijackCodeWriter struct{ *codeWriter }

func (w hijackCodeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.code = http.StatusSwitchingProtocols
	return w.ResponseWriter.(http.Hijacker).Hijack()
}

type flushCodeWriter struct{ *codeWriter }

func (w flushCodeWriter) Flush() { w.ResponseWriter.(http.Flusher).Flush() }

type flushHijackCodeWriter struct{ *codeWriter }

func (w flushHijackCodeWriter) Flush() { w.ResponseWriter.(http.Flusher).Flush() }

func (w flushHijackCodeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.code = http.StatusSwitchingProtocols
	return w.ResponseWriter.(http.Hijacker).Hijack()
}

func wrapCode(w http.ResponseWriter) (http.ResponseWriter, *codeWriter) {
	cw := &codeWriter{ResponseWriter: w, code: http.StatusOK}
	_, canFlush := w.(http.Flusher)
	_, canHijack := w.(http.Hijacker)
	switch {
	case canFlush && canHijack:
		return flushHijackCodeWriter{cw}, cw
	case canFlush:
		return flushCodeWriter{cw}, cw
	case canHijack:
		return hijackCodeWriter{cw}, cw
	default:
		return cw, cw
	}
}
