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
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrProcessGone is returned by StartTimeToken when no process currently
// holds the probed PID.
var ErrProcessGone = errors.New("no process with that PID")

// startTimeField is the index of the process start-time counter in the
// space-separated /proc/[pid]/stat line. The kernel stamps it at process
// creation in clock ticks since boot; it is stable for the life of the PID
// and differs when the PID is later reused.
const startTimeField = 21

// StartTimeToken returns the start-time token of the live process holding
// pid, or ErrProcessGone.
//
// A bare PID is not a process identity: PIDs are reused across reboots and
// on long-running hosts. Pairing the PID with this token closes that window
// at the cost of one /proc read.
func StartTimeToken(pid int) (string, error) {
	procDir := fmt.Sprintf("/proc/%d", pid)
	if _, err := os.Stat(procDir); err != nil {
		if os.IsNotExist(err) {
			return "", ErrProcessGone
		}
		return "", fmt.Errorf("failed to stat %s: %w", procDir, err)
	}

	f, err := os.Open(procDir + "/stat")
	if err != nil {
		// The process may have exited between the directory check and the
		// open. Recheck once; if the directory is gone this was a race, not
		// a failure.
		if _, statErr := os.Stat(procDir); os.IsNotExist(statErr) {
			return "", ErrProcessGone
		}
		return "", fmt.Errorf("failed to open %s/stat: %w", procDir, err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read %s/stat: %w", procDir, err)
	}

	fields := strings.Fields(line)
	if len(fields) <= startTimeField {
		return "", fmt.Errorf("unexpected %s/stat format: %d fields", procDir, len(fields))
	}

	return fields[startTimeField], nil
}
