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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Event is one entry in the lifecycle audit trail.
type Event struct {
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"` // "start", "start_failure", "stop", ...
	Name      string    `json:"name,omitempty"`
	PidFile   string    `json:"pidfile,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventLogger appends lifecycle events to a JSON-lines audit file.
type EventLogger struct {
	logPath string
}

// NewEventLogger creates an audit logger writing to logPath.
func NewEventLogger(logPath string) *EventLogger {
	return &EventLogger{logPath: logPath}
}

// LogStart logs that a daemon start was initiated.
func (l *EventLogger) LogStart(name, pidFile string) error {
	return l.writeEvent(Event{
		Event:   "start",
		Name:    name,
		PidFile: pidFile,
		Success: true,
		Message: "daemon start initiated",
	})
}

// LogStartSuccess logs a completed daemon start.
func (l *EventLogger) LogStartSuccess(name, pidFile string) error {
	return l.writeEvent(Event{
		Event:   "start_success",
		Name:    name,
		PidFile: pidFile,
		Success: true,
		Message: "daemon started",
	})
}

// LogStartFailure logs a failed daemon start.
func (l *EventLogger) LogStartFailure(name, pidFile string, err error) error {
	return l.writeEvent(Event{
		Event:   "start_failure",
		Name:    name,
		PidFile: pidFile,
		Success: false,
		Message: "daemon failed to start",
		Error:   err.Error(),
	})
}

// LogStop logs the outcome of a stop operation.
func (l *EventLogger) LogStop(pidFile string, result StopResult) error {
	return l.writeEvent(Event{
		Event:   "stop",
		PidFile: pidFile,
		Success: true,
		Message: fmt.Sprintf("daemon stop: %s", result),
	})
}

// LogStopFailure logs a stop operation that could not bring the daemon
// down.
func (l *EventLogger) LogStopFailure(pidFile string, err error) error {
	return l.writeEvent(Event{
		Event:   "stop_failure",
		PidFile: pidFile,
		Success: false,
		Message: "failed to stop daemon",
		Error:   err.Error(),
	})
}

// writeEvent appends a stamped event to the audit file.
func (l *EventLogger) writeEvent(event Event) error {
	event.EventID = uuid.NewString()
	event.Timestamp = time.Now()

	logDir := filepath.Dir(l.logPath)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}
