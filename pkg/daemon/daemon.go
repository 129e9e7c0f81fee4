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

// Package daemon is the public API for supervising background daemons
// through pidfiles. It is a thin surface over the lifecycle engine; see
// the internal/lifecycle package documentation for the protocol.
//
// # Embedding contract
//
// Start detaches the daemon by re-executing the current binary twice. A
// program embedding this package must therefore route control back into
// Start, with equivalent Options, near the top of main — before any work
// whose side effects must not repeat in a re-executed hop. Respawned
// reports whether the current process is such a hop.
//
//	func main() {
//		opts := daemon.Options{
//			Run:     serve,
//			PidFile: "/var/run/myapp.pid",
//			Name:    "myapp",
//		}
//		if err := daemon.Start(opts); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The Run callback arm works precisely because of this contract: the
// worker is the same program image, so the callback is reachable from the
// code it runs. Programs that cannot satisfy the contract should restrict
// themselves to the Bin arm.
package daemon

import (
	"github.com/tombee/ubic/internal/lifecycle"
)

// Options configures a supervised daemon. See lifecycle.Options.
type Options = lifecycle.Options

// StopResult tells the caller what Stop actually did.
type StopResult = lifecycle.StopResult

// Stop outcomes.
const (
	StopResultNotRunning = lifecycle.StopResultNotRunning
	StopResultStopped    = lifecycle.StopResultStopped
)

// Sentinel errors surfaced by the lifecycle engine.
var (
	ErrAlreadyRunning    = lifecycle.ErrAlreadyRunning
	ErrRecordMalformed   = lifecycle.ErrRecordMalformed
	ErrRecordNoDaemonPID = lifecycle.ErrRecordNoDaemonPID
	ErrRefusedToDie      = lifecycle.ErrRefusedToDie
)

// Start turns the configured executable or callback into a supervised
// background daemon. It returns nil only once the daemon's pidfile record
// is on disk and a guardian holds the pidfile lock. In a re-executed hop
// of the spawn chain Start never returns.
func Start(opts Options) error {
	return lifecycle.Start(opts)
}

// Check reports whether a daemon is running under the pidfile at path,
// cleaning up stale records it can classify safely.
func Check(pidFile string) (bool, error) {
	return lifecycle.Check(pidFile)
}

// Stop terminates the daemon supervised through the pidfile at path.
func Stop(pidFile string) (StopResult, error) {
	return lifecycle.Stop(pidFile)
}

// Respawned reports whether this process is a re-executed hop of a spawn
// chain rather than the original caller.
func Respawned() bool {
	return lifecycle.Respawned()
}
