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
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrRecordMalformed is returned when the pidfile contents match neither
	// the legacy nor the current record format.
	ErrRecordMalformed = errors.New("pidfile record is malformed")

	// ErrRecordNoDaemonPID is returned when a current-format record carries no
	// daemon PID line. Such records were written by a supervisor that never
	// recorded its worker; there is no safe way to clean them up.
	ErrRecordNoDaemonPID = errors.New("pidfile record has no daemon PID")
)

// Record is the decoded contents of a pidfile.
//
// Two shapes exist on disk. The legacy shape is a single bare decimal PID;
// it is accepted on read and never written. The current shape is three
// labelled lines:
//
//	pid <guardian-pid>
//	pid-token <start-time-token>
//	daemon-pid <worker-pid>
//
// The third line is optional on read because an older writer produced
// two-line records. Readers also accept the original short field names
// "guid" and "daemon" for the second and third lines.
type Record struct {
	// Legacy marks a bare-PID record. Only GuardianPID is meaningful, and it
	// holds whatever PID the legacy writer stored.
	Legacy bool

	// GuardianPID is the PID of the guardian that wrote the record.
	GuardianPID int

	// Token is the worker's start-time token, kept as the opaque decimal
	// string read from the process table.
	Token string

	// DaemonPID is the worker's PID, or 0 when the record predates
	// daemon-pid lines.
	DaemonPID int
}

var (
	legacyRe = regexp.MustCompile(`^\d+$`)
	pidRe    = regexp.MustCompile(`^pid (\d+)$`)
	tokenRe  = regexp.MustCompile(`^(?:pid-token|guid) (\d+)$`)
	daemonRe = regexp.MustCompile(`^(?:daemon-pid|daemon) (\d+)$`)
)

// LoadRecord reads and parses the pidfile at path.
//
// An absent, empty or zero-sized file yields (nil, nil): a cleared pidfile is
// a normal state, not an error. Contents matching neither record shape yield
// ErrRecordMalformed; a record is never fabricated from partial matches.
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pidfile: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	content := strings.TrimSuffix(string(data), "\n")

	if legacyRe.MatchString(content) {
		pid, err := strconv.Atoi(content)
		if err != nil || pid <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrRecordMalformed, content)
		}
		return &Record{Legacy: true, GuardianPID: pid}, nil
	}

	lines := strings.Split(content, "\n")
	if len(lines) < 2 || len(lines) > 3 {
		return nil, fmt.Errorf("%w: %q", ErrRecordMalformed, content)
	}

	pidMatch := pidRe.FindStringSubmatch(lines[0])
	tokenMatch := tokenRe.FindStringSubmatch(lines[1])
	if pidMatch == nil || tokenMatch == nil {
		return nil, fmt.Errorf("%w: %q", ErrRecordMalformed, content)
	}

	rec := &Record{Token: tokenMatch[1]}
	rec.GuardianPID, _ = strconv.Atoi(pidMatch[1])

	if len(lines) == 3 {
		daemonMatch := daemonRe.FindStringSubmatch(lines[2])
		if daemonMatch == nil {
			return nil, fmt.Errorf("%w: %q", ErrRecordMalformed, content)
		}
		rec.DaemonPID, _ = strconv.Atoi(daemonMatch[1])
	}

	return rec, nil
}

// SaveRecord truncates the pidfile at path and writes rec in the current
// three-line format, flushing to the OS before closing.
func SaveRecord(path string, rec *Record) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open pidfile for writing: %w", err)
	}

	content := fmt.Sprintf("pid %d\npid-token %s\ndaemon-pid %d\n",
		rec.GuardianPID, rec.Token, rec.DaemonPID)

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync pidfile: %w", err)
	}
	return f.Close()
}

// ClearRecord truncates the pidfile to zero length without unlinking it.
//
// The advisory lock is bound to the file's inode. Unlinking would let a
// concurrent Check create a fresh inode at the same path, on which a later
// guardian could acquire a second, independent lock for the same service.
// Every code path that "removes" a pidfile must go through here.
func ClearRecord(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to clear pidfile: %w", err)
	}
	return f.Close()
}
