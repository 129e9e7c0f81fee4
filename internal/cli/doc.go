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
Package cli provides the root command and shared configuration for the ubic CLI.

This package creates the main Cobra command tree and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

The CLI is organized as:

	ubic
	├── start         Start a supervised daemon
	├── stop          Stop a supervised daemon
	├── check         Check whether a daemon is running
	├── version       Show version
	└── help          Show help

# Global Flags

	--verbose, -v    Enable verbose output
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file

# Error Handling

Errors are handled centrally to ensure proper exit codes:

  - Exit 0: Success
  - Exit 1: General error
  - Exit 2: Start of an already-running daemon
  - Exit 3: Daemon not running (check)
  - Exit 4: Unusable pidfile record

Use HandleExitError for consistent error handling:

	if err := cmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Spawn-chain re-entry

ubic start re-executes this binary twice to detach the guardian (see
internal/lifecycle). Re-executed hops run the same command line; the start
command routes them straight back into the lifecycle engine, which takes
over the process.
*/
package cli
