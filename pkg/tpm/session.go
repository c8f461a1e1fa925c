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
	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
)

// Session is the single actor mutating TPM ownership and persistent spaces
// during one recovery run. It tracks ownership explicitly because the prior
// owner state of the module is never trusted, a session always starts at
// Unknown and only clear-and-reenable can establish a known state.
type Session struct {
	cfg      *v1.Config
	tpmc     *Commander
	tss      *TssClient
	state    v1.OwnershipState
	released []uint32
}

func NewSession(cfg *v1.Config) *Session {
	return &Session{
		cfg:   cfg,
		tpmc:  NewCommander(cfg.Runner, cfg.Logger),
		tss:   NewTssClient(cfg.Runner, cfg.Logger),
		state: v1.OwnershipUnknown,
	}
}

// State returns the ownership state as tracked by this session
func (s *Session) State() v1.OwnershipState {
	return s.state
}

// Commander exposes the low-level command wrapper for operations outside
// the ownership state machine, physical presence handling mostly
func (s *Session) Commander() *Commander {
	return s.tpmc
}

// ReleasedSpaces lists the indices this session reclaimed so far
func (s *Session) ReleasedSpaces() []uint32 {
	return s.released
}

// ClearAndReenable clears the TPM and enables and activates it again. The
// daemon must be absent for these commands, they go straight to the device.
// The state advances to Unowned even on partial command failure, clear is
// authoritative and any real damage shows up on the next operation.
func (s *Session) ClearAndReenable() error {
	_ = s.cfg.Daemon.Stop()
	if err := s.tpmc.Clear(); err != nil {
		s.cfg.Logger.Warnf("TPM clear failed: %s", err.Error())
	}
	if err := s.tpmc.Enable(); err != nil {
		s.cfg.Logger.Warnf("TPM enable failed: %s", err.Error())
	}
	if err := s.tpmc.Activate(); err != nil {
		s.cfg.Logger.Warnf("TPM activate failed: %s", err.Error())
	}
	s.cfg.Logger.Debugf("Ownership state: %s -> %s", s.state, v1.OwnershipUnowned)
	s.state = v1.OwnershipUnowned
	return nil
}

// EnsureOwned drives the TPM to well-known ownership. Provisioning failures
// are logged, not escalated, ownership only exists to unlock the space
// management tools and those report their own errors at the point of use.
func (s *Session) EnsureOwned() error {
	if s.state == v1.OwnershipWellKnown {
		return nil
	}
	if err := s.ClearAndReenable(); err != nil {
		return err
	}
	if err := s.cfg.Daemon.Start(); err != nil {
		return err
	}
	if err := s.tss.TakeOwnership(); err != nil {
		s.cfg.Logger.Warnf("Taking ownership reported failure: %s", err.Error())
	}
	s.cfg.Logger.Debugf("Ownership state: %s -> %s", s.state, v1.OwnershipWellKnown)
	s.state = v1.OwnershipWellKnown
	return nil
}

// EnsureUnowned drives the TPM to the unowned state
func (s *Session) EnsureUnowned() error {
	if s.state == v1.OwnershipUnowned {
		return nil
	}
	return s.ClearAndReenable()
}

// Close tears the session down, ownership back to unowned and the daemon
// stopped. It runs on every exit path regardless of earlier failures.
func (s *Session) Close() error {
	err := s.EnsureUnowned()
	if stopErr := s.cfg.Daemon.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}
