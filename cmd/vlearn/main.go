package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vango-go/vlearn/pkg/gateway/config"
	gatewayserver "github.com/vango-go/vlearn/pkg/gateway/server"
)

// cliDeps are the process collaborators the commands reach for, swappable in
// tests.
type cliDeps struct {
	loadDotenv   func() error
	loadConfig   func() (config.Config, error)
	newGateway   func(config.Config, *slog.Logger, gatewayserver.Deps) *gatewayserver.Server
	openApp      func(context.Context, config.Config, *slog.Logger, appOptions) (*app, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
	stdin        io.Reader
}

func defaultCLIDeps() cliDeps {
	return cliDeps{
		loadDotenv:   loadDotenv,
		loadConfig:   config.LoadFromEnv,
		newGateway:   newGateway,
		openApp:      openApp,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) },
		signalStop:   signal.Stop,
		stdin:        os.Stdin,
	}
}

// loadDotenv reads .env when present. Variables already in the environment win.
func loadDotenv() error {
	err := godotenv.Load(".env")
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

func newRootCmd(deps cliDeps) *cobra.Command {
	root := &cobra.Command{
		Use:           "vlearn",
		Short:         "Image-grounded learning conversations for young children",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if deps.loadDotenv == nil {
				return nil
			}
			return deps.loadDotenv()
		},
	}
	root.AddCommand(
		newServeCmd(deps),
		newSuggestCmd(deps),
		newChatCmd(deps),
		newMediaCmd(deps),
		newExportCmd(deps),
	)
	return root
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps cliDeps) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	root := newRootCmd(deps)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if deps.stdin != nil {
		root.SetIn(deps.stdin)
	}
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "vlearn: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultCLIDeps()))
}
