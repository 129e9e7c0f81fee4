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

package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCommand(t *testing.T) {
	cmd := NewStartCommand()

	assert.Equal(t, "start --pidfile PIDFILE -- COMMAND [ARGS...]", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Example)

	for _, name := range []string{"pidfile", "name", "stdout", "stderr", "ubic-log", "user"} {
		require.NotNil(t, cmd.Flags().Lookup(name), "flag %s not registered", name)
	}
}

func TestStartCommand_RequiresCommand(t *testing.T) {
	cmd := NewStartCommand()
	cmd.SetArgs([]string{"--pidfile", "x.pid"})
	err := cmd.Execute()
	assert.Error(t, err, "start without a command must fail argument validation")
}

func TestStopCommand(t *testing.T) {
	cmd := NewStopCommand()

	assert.Equal(t, "stop --pidfile PIDFILE", cmd.Use)
	assert.NotEmpty(t, cmd.Long)
	require.NotNil(t, cmd.Flags().Lookup("pidfile"))
}

func TestCheckCommand(t *testing.T) {
	cmd := NewCheckCommand()

	assert.Equal(t, "check --pidfile PIDFILE", cmd.Use)
	assert.NotEmpty(t, cmd.Long)
	require.NotNil(t, cmd.Flags().Lookup("pidfile"))
}
