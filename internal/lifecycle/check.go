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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
)

// Check reports whether a daemon is running under the pidfile at path.
//
// A held pidfile lock is the definitive liveness signal: the guardian
// acquires it at birth and only death releases it. When the lock is free but
// a record remains, Check classifies the orphaned record by probing the
// recorded worker identity and cleans up what it safely can — which is a
// side effect visible to other processes, never cached in this one.
func Check(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat pidfile: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}

	lock, err := AcquireLock(path)
	if errors.Is(err, ErrLockBusy) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	// Stale-record mutations below happen under the lock; release only on
	// the way out.
	defer lock.Release()

	rec, err := LoadRecord(path)
	if err != nil {
		return false, err
	}
	if rec == nil {
		// Cleared between the stat above and the lock acquisition.
		return false, nil
	}

	if rec.Legacy {
		// A bare PID cannot be identity-checked; assume not running and
		// leave the file for manual recovery.
		slog.Warn("pidfile is in the legacy bare-PID format, assuming daemon is not running",
			"pidfile", path, "pid", rec.GuardianPID)
		return false, nil
	}

	if rec.DaemonPID == 0 {
		return false, fmt.Errorf("%w: %s", ErrRecordNoDaemonPID, path)
	}

	token, err := StartTimeToken(rec.DaemonPID)
	switch {
	case errors.Is(err, ErrProcessGone):
		slog.Info("removing stale pidfile, daemon process is gone",
			"pidfile", path, "daemon_pid", rec.DaemonPID)
		if err := ClearRecord(path); err != nil {
			return false, err
		}
		return false, nil

	case err != nil:
		return false, err

	case token == rec.Token:
		// The worker outlived its guardian. Nobody supervises it, so take
		// its whole process group down before disowning the record.
		slog.Warn("daemon is running unguarded, killing its process group",
			"pidfile", path, "daemon_pid", rec.DaemonPID)
		if err := SignalGroup(rec.DaemonPID, syscall.SIGKILL); err != nil {
			return false, err
		}
		if err := ClearRecord(path); err != nil {
			return false, err
		}
		return false, nil

	default:
		// The PID now belongs to an unrelated process; killing it would be
		// a drive-by. Disown the record only.
		slog.Warn("daemon PID was reused by an unrelated process, removing stale pidfile",
			"pidfile", path, "daemon_pid", rec.DaemonPID,
			"recorded_token", rec.Token, "current_token", token)
		if err := ClearRecord(path); err != nil {
			return false, err
		}
		return false, nil
	}
}
