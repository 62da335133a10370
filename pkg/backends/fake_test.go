package backends

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// fakeRunner answers commands from canned responses. Unknown commands exit 0
// with no output.
type fakeRunner struct {
	mu        sync.Mutex
	paths     map[string]string
	responses map[string]CommandResult
	errs      map[string]error
	calls     []Command
	onRun     func(Command)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		paths:     make(map[string]string),
		responses: make(map[string]CommandResult),
		errs:      make(map[string]error),
	}
}

func commandKey(cmd Command) string {
	return strings.Join(append([]string{cmd.Name}, cmd.Args...), " ")
}

func (f *fakeRunner) respond(key string, exitCode int, output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = CommandResult{ExitCode: exitCode, Output: output}
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) (CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	onRun := f.onRun
	key := commandKey(cmd)
	err, hasErr := f.errs[key]
	res, hasRes := f.responses[key]
	f.mu.Unlock()

	if onRun != nil {
		onRun(cmd)
	}
	if hasErr {
		return CommandResult{}, err
	}
	if hasRes {
		return res, nil
	}
	return CommandResult{}, nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.paths[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
}

// count returns how many times the command with key ran.
func (f *fakeRunner) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if commandKey(c) == key {
			n++
		}
	}
	return n
}

func (f *fakeRunner) last() Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return Command{}
	}
	return f.calls[len(f.calls)-1]
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
