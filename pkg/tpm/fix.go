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
	"bytes"
	"fmt"

	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
)

// FixSpace reconciles one managed space against its schema. A space that
// exists with the expected tag, size and permissions is left untouched, so
// re-running the fix performs no destructive calls. Anything else gets
// released and rebuilt from scratch. Returns whether a rebuild happened.
func (s *Session) FixSpace(schema v1.SpaceSchema) (bool, error) {
	// low-level queries go straight to the device
	_ = s.cfg.Daemon.Stop()

	observed := s.observeSpace(schema)
	if observed.Exists && !observed.Corrupt {
		s.cfg.Logger.Infof("Space '%s' (0x%08x) matches its schema", schema.Name, schema.Index)
		return false, nil
	}

	if observed.Exists {
		// the TPM cannot shrink or retag a space in place
		if err := s.ReleaseSpace(schema.Index); err != nil {
			s.cfg.Logger.Warnf("Failed releasing corrupt space 0x%08x: %s", schema.Index, err.Error())
		}
	}

	err := s.DefineSpace(schema.Index, schema.Size, schema.Permissions)
	if err != nil {
		return false, fmt.Errorf("could not restore space 0x%08x: %w", schema.Index, err)
	}

	// DefineSpace leaves the daemon stopped, the write is direct access
	err = s.tpmc.Write(schema.Index, schema.Data)
	if err != nil {
		// the schema is correct even if the content lags, do not unwind
		s.cfg.Logger.Warnf("Failed writing contents of space 0x%08x: %s", schema.Index, err.Error())
	}
	s.cfg.Logger.Infof("Space '%s' (0x%08x) rebuilt", schema.Name, schema.Index)
	return true, nil
}

// observeSpace queries the current shape of a space. The TPM offers no
// existence primitive, a failing permission query means the space is gone.
func (s *Session) observeSpace(schema v1.SpaceSchema) v1.ObservedSpace {
	observed := v1.ObservedSpace{Index: schema.Index}

	permissions, err := s.tpmc.GetPermissions(schema.Index)
	if err != nil {
		return observed
	}
	observed.Exists = true
	observed.Permissions = permissions

	if tag := schema.Tag(); tag != nil {
		read, err := s.tpmc.Read(schema.Index, len(tag))
		if err != nil || !bytes.Equal(read, tag) {
			observed.Corrupt = true
			return observed
		}
	}
	// a short space fails the full-size read
	if _, err := s.tpmc.Read(schema.Index, schema.Size); err != nil {
		observed.Corrupt = true
		return observed
	}
	if permissions != schema.Permissions {
		observed.Corrupt = true
	}
	return observed
}
