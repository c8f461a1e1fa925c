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

// Daemon manages the TSS helper process (tcsd). Space listing, release and
// ownership provisioning require it running, while clear/enable/activate and
// low-level space access require it stopped. Both methods are idempotent.
type Daemon interface {
	// Start launches the daemon if needed and blocks until it had time to
	// settle, so the first client call does not race its initialization.
	Start() error
	// Stop terminates the daemon if running, gracefully first, then by
	// force, and reaps the process.
	Stop() error
	IsRunning() bool
}
