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

package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tombee/ubic/internal/commands/shared"
	"github.com/tombee/ubic/internal/lifecycle"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	var pidFile string

	cmd := &cobra.Command{
		Use:   "check --pidfile PIDFILE",
		Short: "Check whether a supervised daemon is running",
		Long: `Check whether a daemon is running under the given pidfile.

A live guardian holds a lock on the pidfile; check probes that lock. When
the lock is free but a record remains, check classifies the leftover state
and cleans up what it safely can: a record for a dead process is cleared,
an unguarded but still-running daemon is killed and cleared, and a record
whose PID now belongs to an unrelated process is cleared without touching
that process.

Exit code 0 means the daemon is running; 3 means it is not.`,
		Example: `  # Check a daemon
  ubic check --pidfile sleeper.pid

  # Use in scripts
  ubic check --pidfile sleeper.pid --quiet && echo up

  # Machine-readable result
  ubic check --pidfile sleeper.pid --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(pidFile)
		},
	}

	cmd.Flags().StringVar(&pidFile, "pidfile", "", "Pidfile path or bare name (required)")
	cmd.MarkFlagRequired("pidfile")

	return cmd
}

func runCheck(pidFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.PidFilePath(pidFile)

	running, err := lifecycle.Check(path)
	if err != nil {
		if errors.Is(err, lifecycle.ErrRecordMalformed) || errors.Is(err, lifecycle.ErrRecordNoDaemonPID) {
			return shared.NewMalformedRecordError(fmt.Sprintf("pidfile %s is unusable", path), err)
		}
		return fmt.Errorf("failed to check daemon: %w", err)
	}

	if shared.GetJSON() {
		json.NewEncoder(os.Stdout).Encode(map[string]any{
			"running": running,
			"pidfile": path,
		})
	} else if !shared.GetQuiet() {
		if running {
			fmt.Println(shared.RenderOK("Daemon is running"))
		} else {
			fmt.Println(shared.RenderError("Daemon is not running"))
		}
	}

	if !running {
		os.Exit(shared.ExitNotRunning)
	}
	return nil
}
