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

package constants

import "time"

const (
	TpmcBinary          = "tpmc"
	TcsdBinary          = "tcsd"
	TakeOwnershipBinary = "tpm_takeownership"
	NvInfoBinary        = "tpm_nvinfo"
	NvReleaseBinary     = "tpm_nvrelease"
	CrossystemBinary    = "crossystem"

	TpmSysfsPath = "/sys/class/tpm/tpm0"

	// Managed NVRAM spaces, firmware and kernel rollback state
	FirmwareSpaceIndex uint32 = 0x1007
	FirmwareSpaceSize         = 10
	FirmwareSpacePerms uint32 = 0x8001

	KernelSpaceIndex  uint32 = 0x1008
	KernelSpaceSize          = 13
	KernelSpacePerms  uint32 = 0x1
	KernelSpaceTagLen        = 5

	// Disposable index used to probe free NVRAM capacity. Lives in the
	// TPM-reserved range so it is never treated as an unexpected space.
	ProbeSpaceIndex uint32 = 0xF004
	ProbeSpacePerms uint32 = 0x1

	// Reserved NVRAM index ranges that must never be reclaimed
	NvIndexLock       uint32 = 0xFFFFFFFF
	NvIndexZero       uint32 = 0x0
	NvIndexOne        uint32 = 0x1
	TpmReservedFirst  uint32 = 0xF000
	TpmReservedLast   uint32 = 0xFFFF
	WorkingGroupFirst uint32 = 0x00010000
	WorkingGroupLast  uint32 = 0x0001FFFF

	TcsdSettleTime  = 2 * time.Second
	DaemonStopGrace = 500 * time.Millisecond

	RecoveryFirmwareType = "recovery"

	RecoveryReportFile = "/var/log/tpm-recovery-state.yaml"
	EnvDefaultsFile    = "/etc/default/tpm-recovery"
	FilePerm           = 0644
)

// GetFirmwareSpaceData returns the expected firmware rollback space contents
func GetFirmwareSpaceData() []byte {
	return []byte{0x01, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}
}

// GetKernelSpaceData returns the expected kernel rollback space contents.
// Leading bytes are the struct version followed by the "LWRG" uid tag.
func GetKernelSpaceData() []byte {
	return []byte{0x01, 0x4c, 0x57, 0x52, 0x47, 0x01, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00}
}

// GetRecognizedBootReasons maps the firmware recovery reason codes this tool
// accepts to a human readable description. Any other code aborts the session.
func GetRecognizedBootReasons() map[int]string {
	return map[int]string{
		1: "legacy recovery request",
		2: "recovery button pressed",
		3: "recovery requested by the OS",
		4: "OS update failure",
	}
}

// GetRequiredBinaries lists the TPM tool binaries a recovery session needs
func GetRequiredBinaries() []string {
	return []string{
		TpmcBinary,
		TcsdBinary,
		TakeOwnershipBinary,
		NvInfoBinary,
		NvReleaseBinary,
	}
}
