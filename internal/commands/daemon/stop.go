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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tombee/ubic/internal/commands/shared"
	"github.com/tombee/ubic/internal/lifecycle"
)

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	var pidFile string

	cmd := &cobra.Command{
		Use:   "stop --pidfile PIDFILE",
		Short: "Stop a supervised daemon",
		Long: `Stop the daemon supervised through the given pidfile.

The guardian receives SIGTERM and performs the worker teardown itself:
a polite signal to the worker's process group, a bounded grace period,
then SIGKILL. The command probes once a second and gives up after five
attempts.

stop is idempotent: stopping a daemon that is not running succeeds.`,
		Example: `  # Stop a daemon
  ubic stop --pidfile sleeper.pid

  # Machine-readable result
  ubic stop --pidfile sleeper.pid --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(pidFile)
		},
	}

	cmd.Flags().StringVar(&pidFile, "pidfile", "", "Pidfile path or bare name (required)")
	cmd.MarkFlagRequired("pidfile")

	return cmd
}

func runStop(pidFile string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.PidFilePath(pidFile)

	events := lifecycle.NewEventLogger(cfg.LifecycleLogPath())

	result, err := lifecycle.Stop(path)
	if err != nil {
		if logErr := events.LogStopFailure(path, err); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", logErr)
		}
		if errors.Is(err, lifecycle.ErrRecordMalformed) || errors.Is(err, lifecycle.ErrRecordNoDaemonPID) {
			return shared.NewMalformedRecordError(fmt.Sprintf("pidfile %s is unusable", path), err)
		}
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	if err := events.LogStop(path, result); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", err)
	}

	if shared.GetJSON() {
		fmt.Printf("{\"result\":%q}\n", string(result))
		return nil
	}

	if !shared.GetQuiet() {
		switch result {
		case lifecycle.StopResultStopped:
			fmt.Println(shared.RenderOK("Daemon stopped"))
		case lifecycle.StopResultNotRunning:
			fmt.Println(shared.RenderWarn("Daemon is not running"))
		}
	}
	return nil
}
