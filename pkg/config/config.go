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

package config

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-vfs"

	cnst "github.com/rancher-sandbox/tpm-recovery/pkg/constants"
	"github.com/rancher-sandbox/tpm-recovery/pkg/daemon"
	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
	"github.com/rancher-sandbox/tpm-recovery/pkg/utils"
)

// ErrNotRecoveryBoot is returned when the device did not boot in recovery
// mode, nothing may touch the TPM in that case
var ErrNotRecoveryBoot = errors.New("device did not boot in recovery mode")

type GenericOptions func(c *v1.Config) error

func WithFs(fs v1.FS) func(c *v1.Config) error {
	return func(c *v1.Config) error {
		c.Fs = fs
		return nil
	}
}

func WithLogger(logger v1.Logger) func(c *v1.Config) error {
	return func(c *v1.Config) error {
		c.Logger = logger
		return nil
	}
}

func WithRunner(runner v1.Runner) func(c *v1.Config) error {
	return func(c *v1.Config) error {
		c.Runner = runner
		return nil
	}
}

func WithDaemon(d v1.Daemon) func(c *v1.Config) error {
	return func(c *v1.Config) error {
		c.Daemon = d
		return nil
	}
}

func NewConfig(opts ...GenericOptions) *v1.Config {
	log := v1.NewLogger()

	c := &v1.Config{
		Fs:     vfs.OSFS,
		Logger: log,
	}
	for _, o := range opts {
		err := o(c)
		if err != nil {
			log.Errorf("error applying config option: %s", err.Error())
			return nil
		}
	}

	// delay runner creation after we have run over the options in case we use WithRunner
	if c.Runner == nil {
		c.Runner = &v1.RealRunner{Logger: c.Logger}
	}

	// Now check if the runner has a logger inside, otherwise point our logger into it
	// This can happen if we set the WithRunner option as that doesn't set a logger
	if c.Runner.GetLogger() == nil {
		c.Runner.SetLogger(c.Logger)
	}

	if c.Daemon == nil {
		c.Daemon = daemon.NewTcsd(c.Logger)
	}

	return c
}

func NewRunConfig(opts ...GenericOptions) *v1.RunConfig {
	config := NewConfig(opts...)
	r := &v1.RunConfig{
		TcsdSettle: cnst.TcsdSettleTime,
		ReportFile: cnst.RecoveryReportFile,
		Config:     *config,
	}
	return r
}

// DefaultSpaces returns the schemas of the two managed rollback spaces
func DefaultSpaces() []v1.SpaceSchema {
	return []v1.SpaceSchema{
		{
			Name:        "firmware",
			Index:       cnst.FirmwareSpaceIndex,
			Size:        cnst.FirmwareSpaceSize,
			Permissions: cnst.FirmwareSpacePerms,
			Data:        cnst.GetFirmwareSpaceData(),
		},
		{
			Name:        "kernel",
			Index:       cnst.KernelSpaceIndex,
			Size:        cnst.KernelSpaceSize,
			Permissions: cnst.KernelSpacePerms,
			Data:        cnst.GetKernelSpaceData(),
			TagLen:      cnst.KernelSpaceTagLen,
		},
	}
}

// NewRecoverSpec builds a RecoverSpec from the current host state. It
// refuses to build one outside a recovery boot, reconciliation must never
// run against the TPM of a normally booted system.
func NewRecoverSpec(cfg v1.Config) (*v1.RecoverSpec, error) {
	fwType, err := utils.CrossystemValue(cfg.Runner, "mainfw_type")
	if err != nil {
		return nil, fmt.Errorf("could not read firmware boot type: %w", err)
	}
	if fwType != cnst.RecoveryFirmwareType {
		return nil, ErrNotRecoveryBoot
	}

	reason, err := utils.CrossystemInt(cfg.Runner, "recovery_reason")
	if err != nil {
		return nil, fmt.Errorf("could not read recovery reason: %w", err)
	}

	devModeAtBoot, err := utils.CrossystemBool(cfg.Runner, "devsw_boot")
	if err != nil {
		return nil, fmt.Errorf("could not read boot-time developer switch: %w", err)
	}
	devModeNow, err := utils.CrossystemBool(cfg.Runner, "devsw_cur")
	if err != nil {
		return nil, fmt.Errorf("could not read current developer switch: %w", err)
	}

	return &v1.RecoverSpec{
		BootReason:    reason,
		DevModeAtBoot: devModeAtBoot,
		DevModeNow:    devModeNow,
		Spaces:        DefaultSpaces(),
	}, nil
}
