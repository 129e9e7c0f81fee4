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
	"fmt"
	"os"
	"strings"
)

// Handshake markers. Both must appear in the pipe contents for Start to
// succeed; any other outcome is a failure reported with the full captured
// text. The byte sequences are part of the wire contract and must not
// change.
const (
	markerPidFileWritten = "pidfile written\n"
	markerExecingDaemon  = "xexecing into daemon\n"
)

// handshakeOK reports whether the captured pipe contents carry both
// success markers.
func handshakeOK(captured string) bool {
	return strings.Contains(captured, markerPidFileWritten) &&
		strings.Contains(captured, markerExecingDaemon)
}

// handshakeFail reports a descendant failure on the handshake pipe and
// exits immediately. Descendants never propagate errors across the spawn
// boundary: the forked state inherits arbitrary caller context whose
// cleanup handlers must not run twice, so os.Exit is the only legal way
// out.
func handshakeFail(pipe *os.File, format string, args ...any) {
	fmt.Fprintf(pipe, format+"\n", args...)
	pipe.Close()
	os.Exit(1)
}
