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

package action

import (
	"fmt"
	"time"

	cnst "github.com/rancher-sandbox/tpm-recovery/pkg/constants"
	recoveryError "github.com/rancher-sandbox/tpm-recovery/pkg/error"
	"github.com/rancher-sandbox/tpm-recovery/pkg/tpm"
	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
	"github.com/rancher-sandbox/tpm-recovery/pkg/utils"
)

type RecoverAction struct {
	cfg     *v1.RunConfig
	spec    *v1.RecoverSpec
	session *tpm.Session
}

func NewRecoverAction(cfg *v1.RunConfig, spec *v1.RecoverSpec) *RecoverAction {
	return &RecoverAction{
		cfg:     cfg,
		spec:    spec,
		session: tpm.NewSession(&cfg.Config),
	}
}

// Session exposes the TPM session, mainly so tests can inspect final state
func (r *RecoverAction) Session() *tpm.Session {
	return r.session
}

// preflight runs the fatal gate checks. Any error here aborts the session
// before the cleanup stack is armed, nothing has touched the TPM yet.
func (r *RecoverAction) preflight() error {
	for _, binary := range cnst.GetRequiredBinaries() {
		if !r.cfg.Runner.CommandExists(binary) {
			return recoveryError.New(
				fmt.Sprintf("required binary '%s' not found", binary), recoveryError.MissingBinaries,
			)
		}
	}
	if ok, _ := utils.Exists(r.cfg.Fs, cnst.TpmSysfsPath); !ok {
		return recoveryError.New("no TPM device present", recoveryError.NoTpmDevice)
	}

	reason, recognized := cnst.GetRecognizedBootReasons()[r.spec.BootReason]
	if !recognized {
		return recoveryError.New(
			fmt.Sprintf("unrecognized recovery reason code %d", r.spec.BootReason),
			recoveryError.UnknownBootReason,
		)
	}
	r.cfg.Logger.Infof("Recovery boot confirmed: %s", reason)

	// a flipped developer switch means tamper or malfunction
	if r.spec.DevModeAtBoot != r.spec.DevModeNow {
		return recoveryError.New(
			"developer switch changed since boot", recoveryError.DevModeMismatch,
		)
	}
	return nil
}

// ensurePhysicalPresence asserts physical presence, required for the clear
// and define operations the reconciliation performs
func (r *RecoverAction) ensurePhysicalPresence() error {
	tpmc := r.session.Commander()

	pFlags, err := tpmc.GetPersistentFlags()
	if err != nil {
		return err
	}
	if !pFlags.PhysicalPresenceCMDEnable {
		if pFlags.PhysicalPresenceLifetimeLock && !pFlags.PhysicalPresenceHWEnable {
			return fmt.Errorf("physical presence is locked out for the lifetime of this TPM")
		}
		if !pFlags.PhysicalPresenceLifetimeLock {
			if err = tpmc.PhysicalPresenceCmdEnable(); err != nil {
				return fmt.Errorf("enabling physical presence command: %w", err)
			}
		}
	}
	if err = tpmc.PhysicalPresenceOn(); err != nil {
		return fmt.Errorf("asserting physical presence: %w", err)
	}

	vFlags, err := tpmc.GetVolatileFlags()
	if err != nil {
		return err
	}
	if !vFlags.PhysicalPresence {
		return fmt.Errorf("physical presence not asserted after ppon")
	}
	return nil
}

// Run reconciles TPM ownership and the managed spaces. Individual space
// failures are recoverable and do not stop the run, the session always ends
// unowned with the daemon stopped.
func (r *RecoverAction) Run() (err error) {
	if err = r.preflight(); err != nil {
		return err
	}
	if err = r.ensurePhysicalPresence(); err != nil {
		return recoveryError.NewFromError(err, recoveryError.PhysicalPresence)
	}

	cleanup := utils.NewCleanStack()
	defer func() { err = cleanup.Cleanup(err) }()
	// LIFO, the session closes first and the flags lock once the daemon
	// is down again
	cleanup.Push(func() error {
		if perr := r.session.Commander().PhysicalPresenceFinalize(); perr != nil {
			r.cfg.Logger.Warnf("Failed finalizing physical presence flags: %s", perr.Error())
		}
		return nil
	})
	cleanup.Push(r.session.Close)

	state := &v1.RecoveryState{
		Date:       time.Now().Format(time.RFC3339),
		BootReason: r.spec.BootReason,
	}
	failed := 0
	for _, schema := range r.spec.Spaces {
		rebuilt, fixErr := r.session.FixSpace(schema)
		result := v1.SpaceResult{Index: schema.Index, Name: schema.Name, Rebuilt: rebuilt}
		if fixErr != nil {
			// abandoned for this run, the remaining spaces still get fixed
			r.cfg.Logger.Errorf("Fixing space '%s' failed: %s", schema.Name, fixErr.Error())
			result.Error = fixErr.Error()
			failed++
		}
		state.Spaces = append(state.Spaces, result)
	}

	state.Reclaimed = r.session.ReleasedSpaces()
	if werr := r.cfg.WriteRecoveryState(state, r.cfg.ReportFile); werr != nil {
		r.cfg.Logger.Warnf("Failed writing recovery report to %s: %s", r.cfg.ReportFile, werr.Error())
	}

	if failed > 0 && r.cfg.Strict {
		return recoveryError.New(
			fmt.Sprintf("%d of %d spaces could not be restored", failed, len(r.spec.Spaces)),
			recoveryError.SpaceFix,
		)
	}
	return nil
}
