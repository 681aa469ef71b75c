/*
Copyright 2026 The Gantry Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package testutil

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"testing"
)

// FakeCmd stands in for util.DefaultExecCommand in tests. Expected commands
// are consumed in order; the test fails if a different command runs or if
// expected commands are left over.
type FakeCmd struct {
	t           *testing.T
	runs        []run
	timesCalled int
	mu          sync.Mutex
}

type run struct {
	command   string
	output    []byte
	err       error
	expectOut bool
}

func newFakeCmd() *FakeCmd {
	return &FakeCmd{}
}

func (c *FakeCmd) addRun(r run) *FakeCmd {
	c.runs = append(c.runs, r)
	return c
}

func (c *FakeCmd) popRun() (*run, error) {
	if c.timesCalled >= len(c.runs) {
		return nil, &noMoreRunsError{}
	}
	r := c.runs[c.timesCalled]
	c.timesCalled++
	return &r, nil
}

type noMoreRunsError struct{}

func (e *noMoreRunsError) Error() string { return "no more expected commands" }

// ForTest is called by T.Override so the fake can fail the test directly and
// verify at cleanup that every expected command ran.
func (c *FakeCmd) ForTest(t *testing.T) {
	if c == nil {
		return
	}
	c.t = t
	t.Cleanup(func() {
		if c.timesCalled != len(c.runs) {
			t.Errorf("expected %d command(s) to run, got %d", len(c.runs), c.timesCalled)
		}
	})
}

// CmdRun expects one command to be run with RunCmd.
func CmdRun(command string) *FakeCmd {
	return newFakeCmd().AndRun(command)
}

// CmdRunErr expects one command to be run with RunCmd and fails it.
func CmdRunErr(command string, err error) *FakeCmd {
	return newFakeCmd().AndRunErr(command, err)
}

// CmdRunOut expects one command to be run with RunCmdOut.
func CmdRunOut(command string, output string) *FakeCmd {
	return newFakeCmd().AndRunOut(command, output)
}

// CmdRunOutErr expects one command to be run with RunCmdOut and fails it.
func CmdRunOutErr(command string, output string, err error) *FakeCmd {
	return newFakeCmd().AndRunOutErr(command, output, err)
}

func (c *FakeCmd) AndRun(command string) *FakeCmd {
	return c.addRun(run{command: command})
}

func (c *FakeCmd) AndRunErr(command string, err error) *FakeCmd {
	return c.addRun(run{command: command, err: err})
}

func (c *FakeCmd) AndRunOut(command string, output string) *FakeCmd {
	return c.addRun(run{command: command, output: []byte(output), expectOut: true})
}

func (c *FakeCmd) AndRunOutErr(command string, output string, err error) *FakeCmd {
	return c.addRun(run{command: command, output: []byte(output), err: err, expectOut: true})
}

func (c *FakeCmd) RunCmdOut(_ context.Context, cmd *exec.Cmd) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	command := strings.Join(cmd.Args, " ")

	r, err := c.popRun()
	if err != nil {
		c.fatalf("unexpected command %q: %v", command, err)
		return nil, err
	}

	if r.command != command {
		c.fatalf("expected: %s. Got: %s", r.command, command)
	}

	if !r.expectOut {
		c.fatalf("expected RunCmd(%s) to be called, got RunCmdOut(%s)", r.command, command)
	}

	return r.output, r.err
}

func (c *FakeCmd) RunCmd(_ context.Context, cmd *exec.Cmd) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	command := strings.Join(cmd.Args, " ")

	r, err := c.popRun()
	if err != nil {
		c.fatalf("unexpected command %q: %v", command, err)
		return err
	}

	if r.command != command {
		c.fatalf("expected: %s. Got: %s", r.command, command)
	}

	if r.expectOut {
		c.fatalf("expected RunCmdOut(%s) to be called, got RunCmd(%s)", r.command, command)
	}

	return r.err
}

func (c *FakeCmd) fatalf(format string, args ...interface{}) {
	if c.t != nil {
		c.t.Helper()
		c.t.Fatalf(format, args...)
	}
}
