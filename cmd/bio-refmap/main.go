package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/refmap/refmap"
	"v.io/x/lib/cmdline"
)

// withSignals returns a context that is canceled on SIGINT or SIGTERM.
// Canceling it kills the running tools.
func withSignals() (context.Context, func()) {
	ctx, cancel := context.WithCancel(vcontext.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			log.Printf("%v: canceling", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

// loadConfig reads and validates the config file.
func loadConfig(ctx context.Context, path string) (*refmap.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("-config is required")
	}
	cfg, err := refmap.LoadConfig(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-refmap",
		Short:    "Reference guided locus reconstruction",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdIndex(),
			newCmdRun(),
			newCmdLoci(),
			newCmdStats(),
		},
	}
}

func main() {
	shutdown := grail.Init()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	err := cmdline.ParseAndRun(newRoot(), cmdline.EnvFromOS(), os.Args[1:])
	code := cmdline.ExitCode(err, os.Stderr)
	shutdown()
	os.Exit(code)
}
