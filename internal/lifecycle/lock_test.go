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
	"path/filepath"
	"testing"
)

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svc.pid")

	t.Run("acquires a free lock", func(t *testing.T) {
		lock, err := AcquireLock(path)
		if err != nil {
			t.Fatalf("AcquireLock() error = %v", err)
		}
		defer lock.Release()

		// A second attempt on a held lock reports busy.
		_, err = AcquireLock(path)
		if !errors.Is(err, ErrLockBusy) {
			t.Errorf("second AcquireLock() error = %v, want ErrLockBusy", err)
		}
	})

	t.Run("release makes the lock acquirable again", func(t *testing.T) {
		lock, err := AcquireLock(path)
		if err != nil {
			t.Fatalf("AcquireLock() error = %v", err)
		}
		if err := lock.Release(); err != nil {
			t.Fatalf("Release() error = %v", err)
		}

		again, err := AcquireLock(path)
		if err != nil {
			t.Fatalf("AcquireLock() after release error = %v", err)
		}
		again.Release()
	})
}
