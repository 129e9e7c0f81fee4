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
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tombee/ubic/internal/commands/shared"
	"github.com/tombee/ubic/internal/lifecycle"
)

// NewStartCommand creates the start command.
func NewStartCommand() *cobra.Command {
	var (
		pidFile string
		name    string
		stdout  string
		stderr  string
		ubicLog string
		runAs   string
	)

	cmd := &cobra.Command{
		Use:   "start --pidfile PIDFILE -- COMMAND [ARGS...]",
		Short: "Start a supervised daemon",
		Long: `Start COMMAND as a supervised background daemon.

The daemon runs under a guardian process that holds a lock on the pidfile
for as long as the daemon lives. Unlike stop, start is not idempotent: if
a guardian already supervises the pidfile, start fails and the running
daemon is untouched.

A relative pidfile name is placed in the state directory (~/.ubic by
default). The daemon's stdout and stderr go to the null device unless
redirected; the guardian's own log defaults to <log_dir>/<name>.log.`,
		Example: `  # Supervise a process
  ubic start --pidfile sleeper.pid -- /bin/sleep 3600

  # With output redirection and an explicit name
  ubic start --pidfile web.pid --name web \
      --stdout /var/log/web.out --stderr /var/log/web.err -- ./server --port 8080

  # Run as another user
  ubic start --pidfile svc.pid --user nobody -- /usr/bin/svc`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(startOptions{
				pidFile: pidFile,
				name:    name,
				stdout:  stdout,
				stderr:  stderr,
				ubicLog: ubicLog,
				runAs:   runAs,
				bin:     args,
			})
		},
	}

	cmd.Flags().StringVar(&pidFile, "pidfile", "", "Pidfile path or bare name (required)")
	cmd.Flags().StringVar(&name, "name", "", "Daemon name for process titles and logs (default: the command)")
	cmd.Flags().StringVar(&stdout, "stdout", "", "Append daemon stdout to this file (default: /dev/null)")
	cmd.Flags().StringVar(&stderr, "stderr", "", "Append daemon stderr to this file (default: /dev/null)")
	cmd.Flags().StringVar(&ubicLog, "ubic-log", "", "Guardian log file (default: <log_dir>/<name>.log)")
	cmd.Flags().StringVar(&runAs, "user", "", "Run the daemon as this user")
	cmd.MarkFlagRequired("pidfile")

	return cmd
}

type startOptions struct {
	pidFile string
	name    string
	stdout  string
	stderr  string
	ubicLog string
	runAs   string
	bin     []string
}

func runStart(opts startOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := opts.name
	if name == "" {
		name = opts.bin[0]
	}

	ubicLog := opts.ubicLog
	if ubicLog == "" {
		if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		ubicLog = filepath.Join(cfg.LogDir, filepath.Base(name)+".log")
	}

	daemonOpts := lifecycle.Options{
		Bin:     opts.bin,
		PidFile: cfg.PidFilePath(opts.pidFile),
		Name:    name,
		Stdout:  opts.stdout,
		Stderr:  opts.stderr,
		UbicLog: ubicLog,
		User:    opts.runAs,
	}

	// In a re-executed hop of the spawn chain, Start takes over the process;
	// audit and console output belong to the original caller only.
	if lifecycle.Respawned() {
		return lifecycle.Start(daemonOpts)
	}

	events := lifecycle.NewEventLogger(cfg.LifecycleLogPath())
	if err := events.LogStart(name, daemonOpts.PidFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", err)
	}

	if err := lifecycle.Start(daemonOpts); err != nil {
		if logErr := events.LogStartFailure(name, daemonOpts.PidFile, err); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", logErr)
		}
		if errors.Is(err, lifecycle.ErrAlreadyRunning) {
			return shared.NewAlreadyRunningError(fmt.Sprintf("daemon %s is already running", name), err)
		}
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if err := events.LogStartSuccess(name, daemonOpts.PidFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", err)
	}

	if !shared.GetQuiet() {
		fmt.Printf("%s %s\n",
			shared.RenderOK("Daemon started"),
			shared.Muted.Render(fmt.Sprintf("(pidfile: %s)", daemonOpts.PidFile)))
	}
	return nil
}
