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

/*
Package lifecycle supervises background daemons through pidfiles.

Start turns an executable or an in-process callback into a supervised
daemon; Check probes whether one is running; Stop takes one down. Unrelated
invocations of the controlling program coordinate through nothing but the
filesystem and standard process primitives.

# Process topology

Start builds a three-hop chain by re-executing the current binary (the Go
runtime cannot fork arbitrary state, so the classic double fork becomes a
double re-exec; the role rides in an environment variable and the handshake
pipe write end rides as fd 3):

	caller ──spawn──▶ setup ──spawn──▶ guardian ──spawn──▶ worker

Setup exits immediately, reparenting the guardian to PID 1 in a fresh
session. The guardian takes the pidfile lock, records the worker's identity
in the pidfile, and blocks on the worker for its whole life; the worker
leads its own process group and either execs the target binary or runs the
callback. The guardian advertises itself in process listings as
"ubic-guardian <name>", the worker as "ubic-daemon <name>".

Because every hop is a re-exec, a program embedding this package must route
control back into Start with equivalent options near the top of main. The
ubic CLI satisfies this by construction: descendants re-parse the same
argv.

# Pidfile contract

The pidfile is lock and identity record at once. A current-format record
exists on disk iff a guardian holds the advisory flock on it, and the file
is never unlinked — only truncated — so the lock's inode stays stable. The
record pairs the worker PID with the kernel's per-PID start-time token,
which is what lets Check distinguish a dead worker, a live-but-unguarded
worker, and an unrelated process that inherited a recycled PID. See record.go
and procstat.go.

# Handshake

The chain reports back to the caller over an anonymous pipe. Two marker
lines ("pidfile written", sent by the guardian after the record is durable,
and "xexecing into daemon", sent by the worker just before exec) must both
arrive for Start to succeed; any descendant failure is serialized onto the
pipe as text and surfaces in the caller's error. Errors never cross the
spawn boundary any other way.

# State

None. Everything lives in the pidfile; Check results are never cached in
process memory.
*/
package lifecycle
