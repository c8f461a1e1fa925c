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

package tpm

import (
	"fmt"

	cnst "github.com/rancher-sandbox/tpm-recovery/pkg/constants"
)

// DefineSpace allocates an NVRAM space with the given schema. Free capacity
// cannot be queried directly, so it is probed by defining a disposable
// space of the requested size first. While the probe fails, MakeRoom
// reclaims one unexpected space and the probe is retried. Every iteration
// re-establishes the unowned state because reclamation flips the module to
// owned, and definitions only work unowned.
func (s *Session) DefineSpace(index uint32, size int, permissions uint32) error {
	for {
		if err := s.EnsureUnowned(); err != nil {
			return err
		}
		err := s.tpmc.DefineSpace(cnst.ProbeSpaceIndex, size, cnst.ProbeSpacePerms)
		if err == nil {
			// a zero-size redefine deletes the probe space, a usable
			// space must never persist at the probe index
			if err = s.tpmc.DefineSpace(cnst.ProbeSpaceIndex, 0, cnst.ProbeSpacePerms); err != nil {
				s.cfg.Logger.Warnf("Failed deleting probe space 0x%x: %s", cnst.ProbeSpaceIndex, err.Error())
			}
			break
		}
		s.cfg.Logger.Debugf("Capacity probe for %d bytes failed, reclaiming room", size)
		// each successful MakeRoom releases one unexpected space, which
		// bounds this loop by the number of such spaces
		if err := s.MakeRoom(); err != nil {
			return fmt.Errorf("insufficient capacity for space 0x%08x: %w", index, err)
		}
	}
	// still unowned here, the probe ran after the last EnsureUnowned
	return s.tpmc.DefineSpace(index, size, permissions)
}
