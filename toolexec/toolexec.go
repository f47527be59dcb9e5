// Package toolexec runs external programs, alone or as a pipeline, with
// their output captured and their lifetime tied to a context.
//
// Every child is started in its own process group. When the context is
// canceled, the whole group is killed, so a long-running aligner does not
// outlive the caller.
package toolexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/log"
)

// Cmd describes one external program invocation.
type Cmd struct {
	// Path is the program to run. It is resolved through $PATH if it does not
	// contain a slash.
	Path string
	Args []string
}

// String returns the command line, space separated.
func (c Cmd) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Error is returned when an invocation exits with a nonzero status, fails to
// start, or is canceled.
type Error struct {
	// Cmd is the command line of the failing stage.
	Cmd string
	// Output is the combined stdout and stderr captured from the failing
	// stage. For a stage whose stdout feeds another stage, only stderr.
	Output string
	Err    error
}

func (e *Error) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Cmd, e.Err, out)
}

// Unwrap returns the underlying exec or context error.
func (e *Error) Unwrap() error { return e.Err }

// Runner runs pipelines of external commands.
type Runner interface {
	// Run runs cmds[0] | cmds[1] | ... and blocks until every stage exits.
	// It returns the combined stdout and stderr of the last stage. On failure
	// the error is an *Error describing the first stage that failed.
	Run(ctx context.Context, cmds ...Cmd) ([]byte, error)
}

// RunnerFunc adapts an ordinary function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmds ...Cmd) ([]byte, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, cmds ...Cmd) ([]byte, error) {
	return f(ctx, cmds...)
}

// Local runs commands as child processes of this process.
type Local struct{}

type stage struct {
	cmd *exec.Cmd
	out bytes.Buffer
}

// Run implements Runner.
func (Local) Run(ctx context.Context, cmds ...Cmd) ([]byte, error) {
	if len(cmds) == 0 {
		return nil, fmt.Errorf("toolexec: empty pipeline")
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Cmd: cmds[0].String(), Err: err}
	}
	stages := make([]*stage, len(cmds))
	// Parent-side pipe ends. They are closed once every child holds its copy,
	// or on any early return.
	var parentEnds []*os.File
	closeParentEnds := func() {
		for _, f := range parentEnds {
			f.Close() // nolint: errcheck
		}
		parentEnds = nil
	}
	defer closeParentEnds()

	for i, c := range cmds {
		s := &stage{cmd: exec.Command(c.Path, c.Args...)}
		setProcessGroup(s.cmd)
		s.cmd.Stderr = &s.out
		if i == len(cmds)-1 {
			s.cmd.Stdout = &s.out
		}
		stages[i] = s
	}
	for i := 0; i < len(stages)-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, &Error{Cmd: cmds[i].String(), Err: err}
		}
		parentEnds = append(parentEnds, r, w)
		stages[i].cmd.Stdout = w
		stages[i+1].cmd.Stdin = r
	}

	started := make([]*stage, 0, len(stages))
	for i, s := range stages {
		log.Debug.Printf("exec: %s", cmds[i])
		if err := s.cmd.Start(); err != nil {
			for _, p := range started {
				killProcessGroup(p.cmd)
				p.cmd.Wait() // nolint: errcheck
			}
			return nil, &Error{Cmd: cmds[i].String(), Err: err}
		}
		started = append(started, s)
	}
	closeParentEnds()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			for _, s := range stages {
				killProcessGroup(s.cmd)
			}
		case <-done:
		}
	}()

	var (
		first errorreporter.T
		wg    sync.WaitGroup
	)
	errs := make([]error, len(stages))
	for i, s := range stages {
		wg.Add(1)
		go func(i int, s *stage) {
			defer wg.Done()
			errs[i] = s.cmd.Wait()
		}(i, s)
	}
	wg.Wait()
	close(done)

	if err := ctx.Err(); err != nil {
		return stages[len(stages)-1].out.Bytes(), &Error{Cmd: cmds[0].String(), Err: err}
	}
	// Report the first failing stage in pipeline order: an upstream failure
	// usually explains the downstream one.
	for i, err := range errs {
		if err != nil {
			first.Set(&Error{Cmd: cmds[i].String(), Output: stages[i].out.String(), Err: err})
		}
	}
	return stages[len(stages)-1].out.Bytes(), first.Err()
}
