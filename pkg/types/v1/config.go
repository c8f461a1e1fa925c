/*
Copyright © 2023 - 2025 SUSE LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the shared collaborators every component receives. There is
// no ambient global state, session components own their context explicitly.
type Config struct {
	Logger Logger
	Fs     FS
	Runner Runner
	Daemon Daemon
}

// RunConfig is the runtime configuration of a recovery run, loaded from
// config files, environment and flags on top of the defaults.
type RunConfig struct {
	Strict     bool          `yaml:"strict,omitempty" mapstructure:"strict"`
	TcsdSettle time.Duration `yaml:"tcsd-settle,omitempty" mapstructure:"tcsd-settle"`
	ReportFile string        `yaml:"report-file,omitempty" mapstructure:"report-file"`

	Config `yaml:"-"`
}

// RecoverSpec carries the signals gathered from the firmware before the
// reconciliation session starts plus the schemas of the managed spaces.
type RecoverSpec struct {
	BootReason    int
	DevModeAtBoot bool
	DevModeNow    bool
	Spaces        []SpaceSchema
}

// SpaceResult records the outcome of one space fix for the recovery report
type SpaceResult struct {
	Index   uint32 `yaml:"index"`
	Name    string `yaml:"name"`
	Rebuilt bool   `yaml:"rebuilt"`
	Error   string `yaml:"error,omitempty"`
}

// RecoveryState is the report written at the end of a completed session
type RecoveryState struct {
	Date       string        `yaml:"date"`
	BootReason int           `yaml:"boot-reason"`
	Spaces     []SpaceResult `yaml:"spaces"`
	Reclaimed  []uint32      `yaml:"reclaimed,omitempty"`
}

// WriteRecoveryState persists the recovery report to the given path
func (c Config) WriteRecoveryState(state *RecoveryState, path string) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return err
	}
	return c.Fs.WriteFile(path, data, 0644)
}

// LoadRecoveryState reads back a previously written recovery report
func (c Config) LoadRecoveryState(path string) (*RecoveryState, error) {
	data, err := c.Fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	state := &RecoveryState{}
	err = yaml.Unmarshal(data, state)
	if err != nil {
		return nil, err
	}
	return state, nil
}
