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
	"io"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// runWorker never returns. The worker already leads its own process group
// (Setpgid at spawn), so the guardian can take down its whole subtree with
// one negative-PID signal.
//
// The marker goes out before exec: afterwards the write end belongs to an
// unknown program, and after a callback returns there is nobody left to
// send it.
func runWorker(opts *Options) {
	pipe := handshakePipe()
	io.WriteString(pipe, markerExecingDaemon)
	pipe.Close()

	if opts.Run != nil {
		if err := opts.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "daemon callback failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	path, err := exec.LookPath(opts.Bin[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve %s: %v\n", opts.Bin[0], err)
		os.Exit(1)
	}

	err = unix.Exec(path, opts.Bin, environWithoutRole())
	// Exec only returns on failure; the guardian observes the exit.
	fmt.Fprintf(os.Stderr, "failed to exec %s: %v\n", path, err)
	os.Exit(1)
}
