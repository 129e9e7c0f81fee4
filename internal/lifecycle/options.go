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
)

var (
	// ErrAlreadyRunning is returned by Start when a guardian already
	// supervises the pidfile.
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNoCommand is returned when neither Bin nor Run is set.
	ErrNoCommand = errors.New("either Bin or Run must be set")

	// ErrBothCommands is returned when both Bin and Run are set.
	ErrBothCommands = errors.New("only one of Bin and Run may be set")

	// ErrNoPidFile is returned when the pidfile path is missing.
	ErrNoPidFile = errors.New("pidfile path is required")
)

// nullDevice is the default target for the worker's standard streams.
const nullDevice = "/dev/null"

// Options configures a supervised daemon.
//
// Exactly one of Bin and Run selects what the worker executes. Bin is an
// argv whose first element is the executable path; the worker's image is
// replaced by it. Run is an in-process callback: it only works when the
// program that calls Start is the same image the worker re-executes, so the
// callback is reachable from the code the worker runs (see the package
// documentation for the re-exec contract).
type Options struct {
	// Bin is the argv of the executable to supervise.
	Bin []string

	// Run is the in-process callback to supervise.
	Run func() error

	// PidFile is the path of the pidfile. Required.
	PidFile string

	// Name identifies the daemon in process titles and logs.
	// Defaults to Bin[0], or "anonymous" for a callback.
	Name string

	// Stdout and Stderr are the worker's output paths, opened in append
	// mode. Default: the null device.
	Stdout string
	Stderr string

	// UbicLog is the guardian's own log file, opened in append mode.
	// Default: the null device.
	UbicLog string

	// User, when set, is the account whose UID the guardian switches to
	// before spawning the worker. A missing user is fatal.
	User string
}

func (o *Options) validate() error {
	if len(o.Bin) != 0 && o.Run != nil {
		return ErrBothCommands
	}
	if len(o.Bin) == 0 && o.Run == nil {
		return ErrNoCommand
	}
	if o.PidFile == "" {
		return ErrNoPidFile
	}
	return nil
}

// normalize applies defaults in place. Called by Start in every role so the
// caller and its re-executed descendants agree on the effective options.
func (o *Options) normalize() error {
	if err := o.validate(); err != nil {
		return fmt.Errorf("invalid daemon options: %w", err)
	}
	if o.Name == "" {
		if len(o.Bin) != 0 {
			o.Name = o.Bin[0]
		} else {
			o.Name = "anonymous"
		}
	}
	if o.Stdout == "" {
		o.Stdout = nullDevice
	}
	if o.Stderr == "" {
		o.Stderr = nullDevice
	}
	if o.UbicLog == "" {
		o.UbicLog = nullDevice
	}
	return nil
}
