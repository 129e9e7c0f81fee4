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

// Package daemon implements the ubic start/stop/check commands.
package daemon

import (
	"fmt"

	"github.com/tombee/ubic/internal/commands/shared"
	"github.com/tombee/ubic/internal/config"
)

// loadConfig loads the ubic configuration honoring the global --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
