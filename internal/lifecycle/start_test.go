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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

// spawnSpecEnv carries the daemon options into re-executed hops of the test
// binary: Start re-runs this binary for the setup/guardian/worker roles, and
// TestMain routes those hops back into Start with the same options, exactly
// as an embedding program would.
const spawnSpecEnv = "UBIC_TEST_SPAWN_SPEC"

type spawnSpec struct {
	Bin          []string `json:"bin,omitempty"`
	PidFile      string   `json:"pidfile"`
	Name         string   `json:"name,omitempty"`
	Stdout       string   `json:"stdout,omitempty"`
	Stderr       string   `json:"stderr,omitempty"`
	UbicLog      string   `json:"ubic_log,omitempty"`
	CallbackFile string   `json:"callback_file,omitempty"`
}

func (s spawnSpec) options() Options {
	opts := Options{
		Bin:     s.Bin,
		PidFile: s.PidFile,
		Name:    s.Name,
		Stdout:  s.Stdout,
		Stderr:  s.Stderr,
		UbicLog: s.UbicLog,
	}
	if s.CallbackFile != "" {
		opts.Bin = nil
		opts.Run = func() error {
			if err := os.WriteFile(s.CallbackFile, []byte("alive\n"), 0644); err != nil {
				return err
			}
			time.Sleep(time.Hour)
			return nil
		}
	}
	return opts
}

func TestMain(m *testing.M) {
	if raw := os.Getenv(spawnSpecEnv); raw != "" && Respawned() {
		var spec spawnSpec
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := Start(spec.options()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// skipOnSpawnError checks if an error is a spawn permission error and skips if so.
// Some environments (sandboxed test runners, containers) block fork/exec.
func skipOnSpawnError(t *testing.T, err error) {
	t.Helper()
	if err != nil && strings.Contains(err.Error(), "operation not permitted") {
		t.Skipf("Skipping: spawn not permitted in this environment: %v", err)
	}
}

// startTestDaemon runs Start with the given spawn spec and arranges a
// best-effort stop.
func startTestDaemon(t *testing.T, spec spawnSpec) error {
	t.Helper()
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	t.Setenv(spawnSpecEnv, string(raw))

	startErr := Start(spec.options())
	if startErr == nil {
		t.Cleanup(func() {
			Stop(spec.PidFile)
		})
	}
	return startErr
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cond()
}

func TestStartCheckStop_HappyPath(t *testing.T) {
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}

	tmpDir := t.TempDir()
	pidFile := filepath.Join(tmpDir, "sleeper.pid")

	err := startTestDaemon(t, spawnSpec{
		Bin:     []string{"/bin/sleep", "3600"},
		PidFile: pidFile,
		Name:    "sleeper",
		UbicLog: filepath.Join(tmpDir, "sleeper.log"),
	})
	skipOnSpawnError(t, err)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	running, err := Check(pidFile)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !running {
		t.Fatal("Check() = false after successful Start()")
	}

	rec, err := LoadRecord(pidFile)
	if err != nil {
		t.Fatalf("LoadRecord() error = %v", err)
	}
	if rec == nil || rec.Legacy {
		t.Fatalf("pidfile record = %+v, want current format", rec)
	}
	if rec.GuardianPID <= 0 || rec.DaemonPID <= 0 || rec.Token == "" {
		t.Fatalf("incomplete record: %+v", rec)
	}
	if !IsProcessRunning(rec.DaemonPID) {
		t.Errorf("recorded daemon PID %d is not running", rec.DaemonPID)
	}

	result, err := Stop(pidFile)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if result != StopResultStopped {
		t.Errorf("Stop() = %q, want %q", result, StopResultStopped)
	}

	running, err = Check(pidFile)
	if err != nil {
		t.Fatalf("Check() after stop error = %v", err)
	}
	if running {
		t.Error("Check() = true after Stop()")
	}

	info, err := os.Stat(pidFile)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("pidfile size after stop = %d, want 0", info.Size())
	}

	if !waitFor(t, 2*time.Second, func() bool { return !IsProcessRunning(rec.DaemonPID) }) {
		t.Errorf("daemon process %d survived Stop()", rec.DaemonPID)
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}

	tmpDir := t.TempDir()
	spec := spawnSpec{
		Bin:     []string{"/bin/sleep", "3600"},
		PidFile: filepath.Join(tmpDir, "dup.pid"),
		Name:    "dup",
	}

	err := startTestDaemon(t, spec)
	skipOnSpawnError(t, err)
	if err != nil {
		t.Fatalf("first Start() error = %v", err)
	}

	if err := Start(spec.options()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	// The first daemon is unaffected.
	running, err := Check(spec.PidFile)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !running {
		t.Error("Check() = false, the first daemon should survive a duplicate start")
	}
}

func TestStart_Callback(t *testing.T) {
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}

	tmpDir := t.TempDir()
	touched := filepath.Join(tmpDir, "touched")
	pidFile := filepath.Join(tmpDir, "cb.pid")

	err := startTestDaemon(t, spawnSpec{
		PidFile:      pidFile,
		Name:         "callback",
		CallbackFile: touched,
	})
	skipOnSpawnError(t, err)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	running, err := Check(pidFile)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !running {
		t.Fatal("Check() = false after callback Start()")
	}

	// The callback runs in the worker after the handshake; give it a moment.
	if !waitFor(t, 2*time.Second, func() bool {
		_, err := os.Stat(touched)
		return err == nil
	}) {
		t.Error("callback never ran in the worker")
	}
}

func TestCheck_UnguardedWorkerIsKilled(t *testing.T) {
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}

	tmpDir := t.TempDir()
	pidFile := filepath.Join(tmpDir, "orphan.pid")

	err := startTestDaemon(t, spawnSpec{
		Bin:     []string{"/bin/sleep", "3600"},
		PidFile: pidFile,
		Name:    "orphan",
	})
	skipOnSpawnError(t, err)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	rec, err := LoadRecord(pidFile)
	if err != nil {
		t.Fatalf("LoadRecord() error = %v", err)
	}

	// Kill only the guardian; the worker lives on unguarded and the lock is
	// released.
	if err := SendSignal(rec.GuardianPID, syscall.SIGKILL); err != nil {
		t.Fatalf("SendSignal() error = %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return !IsProcessRunning(rec.GuardianPID) }) {
		t.Fatal("guardian survived SIGKILL")
	}

	running, err := Check(pidFile)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if running {
		t.Error("Check() = true, want false for an unguarded worker")
	}

	// Check must have hard-killed the worker's process group and cleared the
	// record.
	if !waitFor(t, 2*time.Second, func() bool { return !IsProcessRunning(rec.DaemonPID) }) {
		t.Errorf("unguarded worker %d survived Check()", rec.DaemonPID)
	}
	info, err := os.Stat(pidFile)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("pidfile size after Check = %d, want 0", info.Size())
	}
}

func TestStart_ExecFailureConverges(t *testing.T) {
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}

	tmpDir := t.TempDir()
	pidFile := filepath.Join(tmpDir, "noexec.pid")

	// The worker sends its marker before exec, so a bad binary can slip past
	// the handshake; the guardian then observes the immediate exit and
	// clears the record, so Check converges to not running.
	err := startTestDaemon(t, spawnSpec{
		Bin:     []string{filepath.Join(tmpDir, "no-such-binary")},
		PidFile: pidFile,
		Name:    "noexec",
	})
	skipOnSpawnError(t, err)
	if err != nil {
		// Equally acceptable: the failure surfaced through the handshake.
		return
	}

	if !waitFor(t, 3*time.Second, func() bool {
		running, err := Check(pidFile)
		return err == nil && !running
	}) {
		t.Error("Check() never converged to not running after exec failure")
	}
}
