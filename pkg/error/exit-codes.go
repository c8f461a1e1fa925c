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

// provides a custom error interface and exit codes to use on tpm-recovery
package error

//
// Provided exit codes for tpm-recovery

// To make it easy to generate them you have to respect the structure:
//
// comment that explains the error
// const NamedConstant = ERRORCODE

// Device did not boot in recovery mode
const NotRecoveryBoot = 10

// Firmware reported an unrecognized recovery reason code
const UnknownBootReason = 11

// Developer switch changed between boot and now
const DevModeMismatch = 12

// Required TPM tool binaries are missing
const MissingBinaries = 13

// No TPM device is present
const NoTpmDevice = 14

// Physical presence could not be asserted
const PhysicalPresence = 15

// Error running a command
const CommandRun = 16

// Error reading host state
const ReadHostState = 17

// One or more spaces could not be restored while running in strict mode
const SpaceFix = 18

// Failure during session cleanup
const Cleanup = 19

// Error writing the recovery report
const WriteReport = 20

// Unknown error
const Unknown = 255
