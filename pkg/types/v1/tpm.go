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

package v1

// OwnershipState tracks what we know about the TPM owner within the current
// recovery session. Prior state is never trusted, sessions start at Unknown.
type OwnershipState int

const (
	// OwnershipUnknown means no clear has happened yet this session
	OwnershipUnknown OwnershipState = iota
	// OwnershipUnowned means the TPM was cleared and reenabled by us
	OwnershipUnowned
	// OwnershipWellKnown means we took ownership with the well-known secret
	OwnershipWellKnown
)

func (s OwnershipState) String() string {
	switch s {
	case OwnershipUnowned:
		return "unowned"
	case OwnershipWellKnown:
		return "owned-well-known"
	default:
		return "unknown"
	}
}

// SpaceSchema is the compile-time description of a managed NVRAM space.
// TagLen is the number of leading bytes that identify the space contents,
// zero means no tag check applies.
type SpaceSchema struct {
	Name        string
	Index       uint32
	Size        int
	Permissions uint32
	Data        []byte
	TagLen      int
}

// Tag returns the leading content tag bytes for schemas that carry one
func (s SpaceSchema) Tag() []byte {
	if s.TagLen <= 0 || s.TagLen > len(s.Data) {
		return nil
	}
	return s.Data[:s.TagLen]
}

// ObservedSpace is the transient view of a space as reported by the TPM.
// It is rebuilt from queries on every reconciliation pass, never stored.
type ObservedSpace struct {
	Index       uint32
	Exists      bool
	Permissions uint32
	Corrupt     bool
}

// VolatileFlags is the subset of TPM volatile flags this tool reads
type VolatileFlags struct {
	Deactivated          bool
	PhysicalPresence     bool
	PhysicalPresenceLock bool
	GlobalLock           bool
}

// PersistentFlags is the subset of TPM persistent flags this tool reads
type PersistentFlags struct {
	Disabled                     bool
	Ownership                    bool
	PhysicalPresenceLifetimeLock bool
	PhysicalPresenceHWEnable     bool
	PhysicalPresenceCMDEnable    bool
}
