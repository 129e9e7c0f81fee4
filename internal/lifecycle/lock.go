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

	"github.com/gofrs/flock"
)

// ErrLockBusy is returned when another process holds the pidfile lock.
var ErrLockBusy = errors.New("pidfile is locked by another process")

// PidFileLock is the advisory, whole-file lock on a pidfile.
//
// The guardian acquires it once and holds it for its entire lifetime; the
// lock is released implicitly when the guardian dies. Check acquires it only
// to probe for a live guardian: a would-block failure means a guardian is
// present.
type PidFileLock struct {
	fl *flock.Flock
}

// AcquireLock takes the pidfile lock without blocking.
// Returns ErrLockBusy when a guardian already holds it.
func AcquireLock(path string) (*PidFileLock, error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock pidfile: %w", err)
	}
	if !locked {
		return nil, ErrLockBusy
	}
	return &PidFileLock{fl: fl}, nil
}

// Release drops the lock. The guardian never calls this; it is used by Check
// after stale-record analysis and by tests.
func (l *PidFileLock) Release() error {
	return l.fl.Unlock()
}
