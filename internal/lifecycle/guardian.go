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
	"io"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"runtime"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	internallog "github.com/tombee/ubic/internal/log"
)

// workerGrace is how long the guardian's termination handler waits between
// the polite signal to the worker's process group and the SIGKILL
// escalation. It must stay comfortably inside Stop's five-probe patience so
// a stop of a SIGTERM-ignoring worker still converges.
const workerGrace = 3 * time.Second

// guardian is the long-lived supervisor. It holds the pidfile lock for its
// entire life; the lock dies with the process.
type guardian struct {
	opts      *Options
	lock      *PidFileLock
	workerPID int
	logger    *slog.Logger
	stopping  atomic.Bool
}

// runGuardian never returns. Every failure path reports on the handshake
// pipe and exits without running deferred caller state.
func runGuardian(opts *Options) {
	pipe := handshakePipe()

	if err := redirectStdio(opts); err != nil {
		handshakeFail(pipe, "failed to redirect standard streams: %v", err)
	}

	logger, err := openUbicLog(opts)
	if err != nil {
		handshakeFail(pipe, "failed to open ubic log: %v", err)
	}

	// Terminal disconnection is routine after the double-spawn detachment.
	signal.Ignore(syscall.SIGHUP)

	lock, err := AcquireLock(opts.PidFile)
	if err != nil {
		// A guardian that won the Check race before us holds the lock now.
		handshakeFail(pipe, "failed to lock pidfile %s: %v", opts.PidFile, err)
	}
	if err := ClearRecord(opts.PidFile); err != nil {
		handshakeFail(pipe, "%v", err)
	}

	if opts.User != "" {
		if err := dropPrivileges(opts.User); err != nil {
			handshakeFail(pipe, "failed to switch to user %s: %v", opts.User, err)
		}
	}

	worker, err := respawn(roleWorker, "ubic-daemon "+opts.Name, pipe,
		&syscall.SysProcAttr{Setpgid: true}, true)
	if err != nil {
		handshakeFail(pipe, "failed to spawn daemon: %v", err)
	}

	g := &guardian{
		opts:      opts,
		lock:      lock,
		workerPID: worker.Process.Pid,
		logger:    logger,
	}

	// The worker is our unreaped child: its /proc entry outlives it until
	// the Wait below, so the probe cannot race with its exit.
	token, err := StartTimeToken(g.workerPID)
	if err != nil {
		SignalGroup(g.workerPID, syscall.SIGKILL)
		handshakeFail(pipe, "failed to read daemon start-time token: %v", err)
	}

	rec := &Record{GuardianPID: os.Getpid(), Token: token, DaemonPID: g.workerPID}
	if err := SaveRecord(opts.PidFile, rec); err != nil {
		SignalGroup(g.workerPID, syscall.SIGKILL)
		handshakeFail(pipe, "%v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		g.terminate()
	}()

	// The record is durable on disk, so the success marker may go out: a
	// successful Start return now implies the record is observable to a
	// subsequent Check.
	io.WriteString(pipe, markerPidFileWritten)
	pipe.Close()

	logger.Info("daemon started",
		internallog.String("name", opts.Name),
		internallog.Int("daemon_pid", g.workerPID),
		internallog.String("pid_token", token))

	waitErr := worker.Wait()

	if g.stopping.Load() {
		// The termination handler owns teardown and exits the process.
		select {}
	}

	code := worker.ProcessState.ExitCode()
	ClearRecord(opts.PidFile)
	// The flock is bound to this reference; it must stay live until the
	// process exits or the lock would be released while the pidfile still
	// looks owned.
	runtime.KeepAlive(lock)

	if code != 0 {
		logger.Error("daemon failed",
			internallog.String("name", opts.Name),
			internallog.Int("exit_code", code),
			internallog.Error(waitErr))
		os.Exit(1)
	}
	logger.Info("daemon exited cleanly", internallog.String("name", opts.Name))
	os.Exit(0)
}

// terminate is the guardian's SIGTERM path: polite signal to the worker's
// process group, bounded grace, SIGKILL escalation, clear, exit.
func (g *guardian) terminate() {
	g.stopping.Store(true)
	g.logger.Info("stop requested, terminating daemon",
		internallog.String("name", g.opts.Name),
		internallog.Int("daemon_pid", g.workerPID))

	SignalGroup(g.workerPID, syscall.SIGTERM)
	if err := WaitForExit(g.workerPID, workerGrace); err != nil {
		g.logger.Warn("daemon ignored SIGTERM, escalating to SIGKILL",
			internallog.Int("daemon_pid", g.workerPID))
		SignalGroup(g.workerPID, syscall.SIGKILL)
	}

	ClearRecord(g.opts.PidFile)
	runtime.KeepAlive(g.lock)
	os.Exit(0)
}

// redirectStdio points the guardian's standard streams at the configured
// files; the worker inherits them. Output paths are opened in append mode.
func redirectStdio(opts *Options) error {
	stdin, err := os.Open(nullDevice)
	if err != nil {
		return err
	}
	if err := dupOnto(stdin, 0); err != nil {
		return err
	}

	stdout, err := os.OpenFile(opts.Stdout, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if err := dupOnto(stdout, 1); err != nil {
		return err
	}

	stderr, err := os.OpenFile(opts.Stderr, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	return dupOnto(stderr, 2)
}

func dupOnto(f *os.File, target int) error {
	if err := unix.Dup3(int(f.Fd()), target, 0); err != nil {
		return err
	}
	return f.Close()
}

// openUbicLog opens the guardian's own log in append mode and wraps it in
// the standard structured logger. os.File writes are unbuffered, so every
// record reaches the file as soon as it is emitted.
func openUbicLog(opts *Options) (*slog.Logger, error) {
	f, err := os.OpenFile(opts.UbicLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	logger := internallog.New(&internallog.Config{
		Level:  "info",
		Format: internallog.FormatText,
		Output: f,
	})
	return internallog.WithComponent(logger, "ubic-guardian"), nil
}

// dropPrivileges switches the guardian (and everything it spawns) to the
// named user's UID.
func dropPrivileges(name string) error {
	u, err := user.Lookup(name)
	if err != nil {
		return err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return err
	}
	return syscall.Setuid(uid)
}
