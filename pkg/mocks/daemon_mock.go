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

package mocks

// FakeDaemon records daemon lifecycle calls without spawning any process
type FakeDaemon struct {
	StartCalls int
	StopCalls  int
	StartError error
	StopError  error
	running    bool
}

func NewFakeDaemon() *FakeDaemon {
	return &FakeDaemon{}
}

func (d *FakeDaemon) Start() error {
	d.StartCalls++
	if d.StartError != nil {
		return d.StartError
	}
	d.running = true
	return nil
}

func (d *FakeDaemon) Stop() error {
	d.StopCalls++
	if d.StopError != nil {
		return d.StopError
	}
	d.running = false
	return nil
}

func (d *FakeDaemon) IsRunning() bool {
	return d.running
}

// SetRunning forces the running state, helpful to model a daemon left
// behind by a previous boot stage
func (d *FakeDaemon) SetRunning(running bool) {
	d.running = running
}
