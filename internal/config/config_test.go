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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("UBIC_STATE_DIR", "/var/lib/ubic")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ubic", cfg.StateDir)
	assert.Equal(t, "/var/lib/ubic/log", cfg.LogDir)
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
state_dir: /srv/ubic
log_dir: /srv/ubic/logs
log:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/ubic", cfg.StateDir)
	assert.Equal(t, "/srv/ubic/logs", cfg.LogDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state_dir: [broken"), 0600))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPidFilePath(t *testing.T) {
	cfg := &Config{StateDir: "/home/u/.ubic"}

	assert.Equal(t, "/tmp/svc.pid", cfg.PidFilePath("/tmp/svc.pid"))
	assert.Equal(t, "/home/u/.ubic/svc.pid", cfg.PidFilePath("svc.pid"))
}

func TestLifecycleLogPath(t *testing.T) {
	cfg := &Config{StateDir: "/home/u/.ubic"}
	assert.Equal(t, "/home/u/.ubic/lifecycle.log", cfg.LifecycleLogPath())
}
