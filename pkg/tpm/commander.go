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
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	cnst "github.com/rancher-sandbox/tpm-recovery/pkg/constants"
	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
)

var hexToken = regexp.MustCompile(`0x[0-9a-fA-F]+`)

// Commander wraps the low-level tpmc tool. All its operations talk to the
// TPM directly, so the tcsd daemon must be stopped before any of them runs.
type Commander struct {
	runner v1.Runner
	logger v1.Logger
}

func NewCommander(runner v1.Runner, logger v1.Logger) *Commander {
	return &Commander{runner: runner, logger: logger}
}

func (c Commander) Clear() error {
	_, err := c.runner.Run(cnst.TpmcBinary, "clear")
	return err
}

func (c Commander) Enable() error {
	_, err := c.runner.Run(cnst.TpmcBinary, "enable")
	return err
}

func (c Commander) Activate() error {
	_, err := c.runner.Run(cnst.TpmcBinary, "activate")
	return err
}

// DefineSpace allocates an NVRAM space. A zero size releases the index
// instead, that is how the TPM deletes spaces under physical presence.
func (c Commander) DefineSpace(index uint32, size int, permissions uint32) error {
	_, err := c.runner.Run(
		cnst.TpmcBinary, "def",
		fmt.Sprintf("0x%x", index),
		fmt.Sprintf("0x%x", size),
		fmt.Sprintf("0x%x", permissions),
	)
	return err
}

// Read returns size bytes from the given space. tpmc dumps them as
// space-separated hex without leading zeroes.
func (c Commander) Read(index uint32, size int) ([]byte, error) {
	out, err := c.runner.Run(
		cnst.TpmcBinary, "read",
		fmt.Sprintf("0x%x", index),
		fmt.Sprintf("0x%x", size),
	)
	if err != nil {
		return nil, err
	}
	var data []byte
	for _, tok := range strings.Fields(string(out)) {
		b, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("unparseable byte '%s' reading space 0x%x", tok, index)
		}
		data = append(data, byte(b))
	}
	if len(data) != size {
		return nil, fmt.Errorf("read %d bytes from space 0x%x, expected %d", len(data), index, size)
	}
	return data, nil
}

// Write stores data in the given space at offset zero
func (c Commander) Write(index uint32, data []byte) error {
	args := []string{"write", fmt.Sprintf("0x%x", index)}
	for _, b := range data {
		args = append(args, fmt.Sprintf("%02x", b))
	}
	_, err := c.runner.Run(cnst.TpmcBinary, args...)
	return err
}

// GetPermissions queries the permission bits of a space. A failure here is
// how nonexistence of a space is detected.
func (c Commander) GetPermissions(index uint32) (uint32, error) {
	out, err := c.runner.Run(cnst.TpmcBinary, "getp", fmt.Sprintf("0x%x", index))
	if err != nil {
		return 0, err
	}
	tokens := hexToken.FindAllString(string(out), -1)
	if len(tokens) == 0 {
		return 0, fmt.Errorf("no permission value in tpmc output '%s'", strings.TrimSpace(string(out)))
	}
	perms, err := strconv.ParseUint(tokens[len(tokens)-1][2:], 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(perms), nil
}

func (c Commander) GetVolatileFlags() (v1.VolatileFlags, error) {
	out, err := c.runner.Run(cnst.TpmcBinary, "getvf")
	if err != nil {
		return v1.VolatileFlags{}, err
	}
	flags := parseFlags(out)
	return v1.VolatileFlags{
		Deactivated:          flags["deactivated"],
		PhysicalPresence:     flags["physicalPresence"],
		PhysicalPresenceLock: flags["physicalPresenceLock"],
		GlobalLock:           flags["bGlobalLock"],
	}, nil
}

func (c Commander) GetPersistentFlags() (v1.PersistentFlags, error) {
	out, err := c.runner.Run(cnst.TpmcBinary, "getpf")
	if err != nil {
		return v1.PersistentFlags{}, err
	}
	flags := parseFlags(out)
	return v1.PersistentFlags{
		Disabled:                     flags["disable"],
		Ownership:                    flags["ownership"],
		PhysicalPresenceLifetimeLock: flags["physicalPresenceLifetimeLock"],
		PhysicalPresenceHWEnable:     flags["physicalPresenceHWEnable"],
		PhysicalPresenceCMDEnable:    flags["physicalPresenceCMDEnable"],
	}, nil
}

// PhysicalPresenceCmdEnable enables software assertion of physical presence
func (c Commander) PhysicalPresenceCmdEnable() error {
	_, err := c.runner.Run(cnst.TpmcBinary, "ppcmd")
	return err
}

// PhysicalPresenceOn asserts physical presence for this boot
func (c Commander) PhysicalPresenceOn() error {
	_, err := c.runner.Run(cnst.TpmcBinary, "ppon")
	return err
}

// PhysicalPresenceFinalize locks the physical presence flags for this boot
func (c Commander) PhysicalPresenceFinalize() error {
	_, err := c.runner.Run(cnst.TpmcBinary, "pplock")
	return err
}

// parseFlags reads 'name value' lines as printed by tpmc getvf/getpf
func parseFlags(out []byte) map[string]bool {
	flags := map[string]bool{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		flags[fields[0]] = fields[1] != "0"
	}
	return flags
}
