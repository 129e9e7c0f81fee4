// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import (
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
)

// Start turns the configured executable or callback into a supervised
// background daemon.
//
// In the original invocation Start validates the options, verifies via
// Check that no guardian already supervises the pidfile, then launches the
// spawn chain and blocks until the handshake resolves: it returns nil only
// when both handshake markers came back through the pipe, which guarantees
// the pidfile record is on disk, a guardian holds the pidfile lock, and the
// worker leads its own process group.
//
// In a re-executed descendant (see the package documentation) Start never
// returns: it runs the setup, guardian or worker role and exits the
// process.
func Start(opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	switch currentRole() {
	case roleSetup:
		runSetup(&opts)
	case roleGuardian:
		runGuardian(&opts)
	case roleWorker:
		runWorker(&opts)
	}

	return runCaller(&opts)
}

// runCaller is the original caller's side of the protocol: spawn setup,
// wait for it, read the handshake pipe to EOF, decide success.
func runCaller(opts *Options) error {
	running, err := Check(opts.PidFile)
	if err != nil {
		return err
	}
	if running {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, opts.Name)
	}

	pipeR, pipeW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create handshake pipe: %w", err)
	}
	defer pipeR.Close()

	setup, err := respawn(roleSetup, "", pipeW, nil, false)
	// The caller's copy of the write end must go away regardless: EOF on the
	// read end requires every copy in this process and the chain to close.
	pipeW.Close()
	if err != nil {
		return err
	}

	if err := setup.Wait(); err != nil {
		// Setup exits 0 before the guardian does any real work; a non-zero
		// status here means the chain never got going. The pipe may still
		// carry an explanation.
		captured, _ := io.ReadAll(pipeR)
		return fmt.Errorf("setup process failed: %v: %s", err, strings.TrimSpace(string(captured)))
	}

	captured, err := io.ReadAll(pipeR)
	if err != nil {
		return fmt.Errorf("failed to read handshake pipe: %w", err)
	}

	if !handshakeOK(string(captured)) {
		return fmt.Errorf("daemon %s failed to start: %s", opts.Name, strings.TrimSpace(string(captured)))
	}
	return nil
}

// runSetup is the intermediate hop of the double spawn. It launches the
// guardian in a fresh session and exits at once, so the guardian is
// reparented to PID 1 and can never reacquire a controlling terminal.
func runSetup(opts *Options) {
	pipe := handshakePipe()

	_, err := respawn(roleGuardian, "ubic-guardian "+opts.Name, pipe,
		&syscall.SysProcAttr{Setsid: true}, false)
	if err != nil {
		handshakeFail(pipe, "failed to spawn guardian: %v", err)
	}

	os.Exit(0)
}
