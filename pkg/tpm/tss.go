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
	"regexp"
	"strconv"

	cnst "github.com/rancher-sandbox/tpm-recovery/pkg/constants"
	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
)

var nvIndexLine = regexp.MustCompile(`NVRAM index\s*:\s*0x([0-9a-fA-F]+)`)

// TssClient wraps the TSS userland tools, tpm_takeownership, tpm_nvinfo and
// tpm_nvrelease. All of them require the tcsd daemon running.
type TssClient struct {
	runner v1.Runner
	logger v1.Logger
}

func NewTssClient(runner v1.Runner, logger v1.Logger) *TssClient {
	return &TssClient{runner: runner, logger: logger}
}

// TakeOwnership provisions the TPM owner with the well-known secret. Only
// meaningful right after a clear, callers treat failures as non-fatal since
// ownership problems surface at the first space operation anyway.
func (t TssClient) TakeOwnership() error {
	_, err := t.runner.Run(cnst.TakeOwnershipBinary, "-y", "-z")
	return err
}

// List enumerates the defined NVRAM space indices in the order tpm_nvinfo
// reports them
func (t TssClient) List() ([]uint32, error) {
	out, err := t.runner.Run(cnst.NvInfoBinary)
	if err != nil {
		return nil, fmt.Errorf("listing NVRAM spaces: %w", err)
	}
	var indices []uint32
	for _, match := range nvIndexLine.FindAllStringSubmatch(string(out), -1) {
		index, err := strconv.ParseUint(match[1], 16, 32)
		if err != nil {
			t.logger.Warnf("Skipping unparseable NVRAM index '%s'", match[1])
			continue
		}
		indices = append(indices, uint32(index))
	}
	return indices, nil
}

// Release frees an NVRAM space using the well-known owner secret
func (t TssClient) Release(index uint32) error {
	_, err := t.runner.Run(cnst.NvReleaseBinary, "-i", fmt.Sprintf("0x%x", index), "-y")
	return err
}
