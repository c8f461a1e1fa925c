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

// expectedIndex reports whether an NVRAM index belongs to the fixed
// allow-list of reserved and managed spaces that must never be reclaimed
func expectedIndex(index uint32) bool {
	switch {
	case index == cnst.NvIndexLock, index == cnst.NvIndexZero, index == cnst.NvIndexOne:
		return true
	case index >= cnst.TpmReservedFirst && index <= cnst.TpmReservedLast:
		return true
	case index >= cnst.WorkingGroupFirst && index <= cnst.WorkingGroupLast:
		return true
	case index == cnst.FirmwareSpaceIndex, index == cnst.KernelSpaceIndex:
		return true
	default:
		return false
	}
}

// ListUnexpectedSpaces enumerates the NVRAM spaces that are neither
// reserved nor managed by this tool, in the order the TPM reports them
func (s *Session) ListUnexpectedSpaces() ([]uint32, error) {
	if err := s.EnsureOwned(); err != nil {
		return nil, err
	}
	if err := s.cfg.Daemon.Start(); err != nil {
		return nil, err
	}
	indices, err := s.tss.List()
	if err != nil {
		return nil, err
	}
	unexpected := []uint32{}
	for _, index := range indices {
		if !expectedIndex(index) {
			unexpected = append(unexpected, index)
		}
	}
	return unexpected, nil
}

// MakeRoom frees capacity by releasing one unexpected space. It walks the
// materialized candidate list in order and stops at the first successful
// release, so the number of attempts is bounded by the list length.
func (s *Session) MakeRoom() error {
	unexpected, err := s.ListUnexpectedSpaces()
	if err != nil {
		return err
	}
	if len(unexpected) == 0 {
		return fmt.Errorf("no reclaimable spaces left")
	}
	for _, index := range unexpected {
		if err := s.ReleaseSpace(index); err == nil {
			return nil
		}
	}
	return fmt.Errorf("failed releasing any of the %d unexpected spaces", len(unexpected))
}

// ReleaseSpace frees a single NVRAM space. The empty owner secret works
// because ownership is the well-known one established by this session.
func (s *Session) ReleaseSpace(index uint32) error {
	if err := s.EnsureOwned(); err != nil {
		return err
	}
	if err := s.cfg.Daemon.Start(); err != nil {
		return err
	}
	err := s.tss.Release(index)
	if err != nil {
		s.cfg.Logger.Warnf("Failed releasing space 0x%08x: %s", index, err.Error())
		return err
	}
	s.released = append(s.released, index)
	s.cfg.Logger.Infof("Released space 0x%08x", index)
	return nil
}
