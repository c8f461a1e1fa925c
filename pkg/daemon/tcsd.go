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

package daemon

import (
	"os/exec"
	"syscall"
	"time"

	cnst "github.com/rancher-sandbox/tpm-recovery/pkg/constants"
	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
)

// Tcsd drives the TSS core services daemon. The TPM tolerates a single
// command stream, so at most one instance is alive per session and it must
// be fully reaped before any direct tpmc call.
type Tcsd struct {
	logger v1.Logger
	settle time.Duration
	grace  time.Duration
	binary string
	cmd    *exec.Cmd
}

type TcsdOption func(*Tcsd)

func WithSettle(settle time.Duration) TcsdOption {
	return func(d *Tcsd) {
		d.settle = settle
	}
}

func WithGrace(grace time.Duration) TcsdOption {
	return func(d *Tcsd) {
		d.grace = grace
	}
}

func WithBinary(binary string) TcsdOption {
	return func(d *Tcsd) {
		d.binary = binary
	}
}

func NewTcsd(logger v1.Logger, opts ...TcsdOption) *Tcsd {
	d := &Tcsd{
		logger: logger,
		settle: cnst.TcsdSettleTime,
		grace:  cnst.DaemonStopGrace,
		binary: cnst.TcsdBinary,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Tcsd) IsRunning() bool {
	return d.cmd != nil
}

// Start launches tcsd in foreground mode and waits the settle interval so
// the daemon finishes initializing before the first client call. No-op if
// already running.
func (d *Tcsd) Start() error {
	if d.cmd != nil {
		return nil
	}
	cmd := exec.Command(d.binary, "-f")
	err := cmd.Start()
	if err != nil {
		d.logger.Errorf("Failed starting %s: %s", d.binary, err.Error())
		return err
	}
	d.cmd = cmd
	d.logger.Debugf("Started %s (pid %d), waiting %s to settle", d.binary, cmd.Process.Pid, d.settle)
	time.Sleep(d.settle)
	return nil
}

// Stop terminates the daemon, SIGTERM first and SIGKILL after the grace
// interval, then reaps the process. Failures are logged only, the daemon is
// assumed to honor termination. No-op if already stopped.
func (d *Tcsd) Stop() error {
	if d.cmd == nil {
		return nil
	}
	cmd := d.cmd
	d.cmd = nil

	err := cmd.Process.Signal(syscall.SIGTERM)
	if err != nil {
		d.logger.Warnf("Failed signaling %s: %s", d.binary, err.Error())
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err = <-done:
	case <-time.After(d.grace):
		d.logger.Warnf("%s did not stop within %s, killing it", d.binary, d.grace)
		_ = cmd.Process.Kill()
		err = <-done
	}
	if err != nil {
		d.logger.Debugf("%s exited: %s", d.binary, err.Error())
	}
	return nil
}
