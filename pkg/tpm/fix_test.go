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

package tpm_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	conf "github.com/rancher-sandbox/tpm-recovery/pkg/config"
	v1mock "github.com/rancher-sandbox/tpm-recovery/pkg/mocks"
	"github.com/rancher-sandbox/tpm-recovery/pkg/tpm"
	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
)

const (
	kernelTagDump  = "1 4c 57 52 47"
	kernelFullDump = "1 4c 57 52 47 1 0 1 0 1 0 0 0"
	firmwareDump   = "1 0 1 0 1 0 0 0 0 0"
)

var _ = Describe("FixSpace", Label("fix"), func() {
	var config *v1.Config
	var runner *v1mock.FakeRunner
	var fakeDaemon *v1mock.FakeDaemon
	var memLog *bytes.Buffer
	var session *tpm.Session
	var firmware, kernel v1.SpaceSchema

	BeforeEach(func() {
		runner = v1mock.NewFakeRunner()
		fakeDaemon = v1mock.NewFakeDaemon()
		memLog = &bytes.Buffer{}
		config = conf.NewConfig(
			conf.WithRunner(runner),
			conf.WithLogger(v1.NewBufferLogger(memLog)),
			conf.WithDaemon(fakeDaemon),
		)
		session = tpm.NewSession(config)
		spaces := conf.DefaultSpaces()
		firmware = spaces[0]
		kernel = spaces[1]
	})

	It("leaves a space matching its schema untouched", func() {
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			switch args[0] {
			case "getp":
				return []byte("space 0x1008 permissions = 0x1"), nil
			case "read":
				if args[2] == "0x5" {
					return []byte(kernelTagDump), nil
				}
				return []byte(kernelFullDump), nil
			}
			return []byte{}, nil
		}
		rebuilt, err := session.FixSpace(kernel)
		Expect(err).To(BeNil())
		Expect(rebuilt).To(BeFalse())
		Expect(runner.CmdsMatch([][]string{
			{"tpmc", "getp", "0x1008"},
			{"tpmc", "read", "0x1008", "0x5"},
			{"tpmc", "read", "0x1008", "0xd"},
		})).To(BeNil())

		// and the fix stays free of destructive calls on a second pass
		runner.ClearCmds()
		rebuilt, err = session.FixSpace(kernel)
		Expect(err).To(BeNil())
		Expect(rebuilt).To(BeFalse())
		Expect(runner.CountCmd("tpm_nvrelease")).To(Equal(0))
		Expect(runner.CountCmd("tpmc", "def")).To(Equal(0))
		Expect(runner.CountCmd("tpmc", "write")).To(Equal(0))
	})

	It("stops the daemon before inspecting the space", func() {
		fakeDaemon.SetRunning(true)
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			if args[0] == "getp" {
				return []byte("0x8001"), nil
			}
			return []byte(firmwareDump), nil
		}
		_, err := session.FixSpace(firmware)
		Expect(err).To(BeNil())
		Expect(fakeDaemon.IsRunning()).To(BeFalse())
	})

	It("rebuilds a space with a mismatched tag", func() {
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			switch {
			case cmd != "tpmc":
				return []byte{}, nil
			case args[0] == "getp":
				return []byte("0x1"), nil
			case args[0] == "read" && args[2] == "0x5":
				return []byte("1 de ad be ef"), nil
			}
			return []byte{}, nil
		}
		rebuilt, err := session.FixSpace(kernel)
		Expect(err).To(BeNil())
		Expect(rebuilt).To(BeTrue())
		Expect(runner.CountCmd("tpm_nvrelease", "-i", "0x1008")).To(Equal(1))
		Expect(runner.CountCmd("tpmc", "def", "0x1008")).To(Equal(1))
		Expect(runner.CountCmd("tpmc", "write")).To(Equal(1))
		Expect(runner.IncludesCmds([][]string{
			{"tpmc", "write", "0x1008", "01", "4c", "57", "52", "47", "01", "00", "01", "00", "01", "00", "00", "00"},
		})).To(BeNil())
		Expect(runner.MatchMilestones([][]string{
			{"tpm_nvrelease", "-i", "0x1008"},
			{"tpmc", "def", "0x1008", "0xd", "0x1"},
			{"tpmc", "write", "0x1008"},
		})).To(BeNil())
	})

	It("rebuilds a space with wrong permissions", func() {
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			switch {
			case cmd != "tpmc":
				return []byte{}, nil
			case args[0] == "getp":
				return []byte("0x8001"), nil
			case args[0] == "read" && args[2] == "0x5":
				return []byte(kernelTagDump), nil
			case args[0] == "read":
				return []byte(kernelFullDump), nil
			}
			return []byte{}, nil
		}
		rebuilt, err := session.FixSpace(kernel)
		Expect(err).To(BeNil())
		Expect(rebuilt).To(BeTrue())
		Expect(runner.CountCmd("tpm_nvrelease", "-i", "0x1008")).To(Equal(1))
	})

	It("rebuilds a space shorter than its schema", func() {
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			switch {
			case cmd != "tpmc":
				return []byte{}, nil
			case args[0] == "getp":
				return []byte("0x1"), nil
			case args[0] == "read" && args[2] == "0x5":
				return []byte(kernelTagDump), nil
			case args[0] == "read":
				// truncated space, fewer bytes than requested
				return []byte(kernelTagDump), nil
			}
			return []byte{}, nil
		}
		rebuilt, err := session.FixSpace(kernel)
		Expect(err).To(BeNil())
		Expect(rebuilt).To(BeTrue())
	})

	It("recreates a missing firmware space and leaves the kernel space alone", func() {
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			switch {
			case cmd != "tpmc":
				return []byte{}, nil
			case args[0] == "getp" && args[1] == "0x1007":
				return []byte{}, errors.New("no such space")
			case args[0] == "getp" && args[1] == "0x1008":
				return []byte("0x1"), nil
			case args[0] == "read" && args[2] == "0x5":
				return []byte(kernelTagDump), nil
			case args[0] == "read":
				return []byte(kernelFullDump), nil
			}
			return []byte{}, nil
		}
		rebuilt, err := session.FixSpace(firmware)
		Expect(err).To(BeNil())
		Expect(rebuilt).To(BeTrue())
		rebuilt, err = session.FixSpace(kernel)
		Expect(err).To(BeNil())
		Expect(rebuilt).To(BeFalse())

		Expect(runner.CountCmd("tpmc", "def", "0x1007", "0xa", "0x8001")).To(Equal(1))
		Expect(runner.IncludesCmds([][]string{
			{"tpmc", "write", "0x1007", "01", "00", "01", "00", "01", "00", "00", "00", "00", "00"},
		})).To(BeNil())
		Expect(runner.CountCmd("tpm_nvrelease")).To(Equal(0))
		Expect(runner.CountCmd("tpmc", "def", "0x1008")).To(Equal(0))
		Expect(runner.CountCmd("tpmc", "write", "0x1008")).To(Equal(0))
	})

	It("fails when the space cannot be redefined", func() {
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			switch {
			case cmd == "tpmc" && args[0] == "getp":
				return []byte{}, errors.New("no such space")
			case cmd == "tpmc" && args[0] == "def" && args[1] == "0xf004":
				return []byte{}, errors.New("no room")
			case cmd == "tpm_nvinfo":
				return nvInfoReport(0x1007, 0x1008), nil
			}
			return []byte{}, nil
		}
		rebuilt, err := session.FixSpace(firmware)
		Expect(err).NotTo(BeNil())
		Expect(rebuilt).To(BeFalse())
		Expect(err.Error()).To(ContainSubstring("could not restore space 0x00001007"))
	})

	It("reports success when only the content write fails", func() {
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			switch {
			case cmd == "tpmc" && args[0] == "getp":
				return []byte{}, errors.New("no such space")
			case cmd == "tpmc" && args[0] == "write":
				return []byte{}, errors.New("write failed")
			}
			return []byte{}, nil
		}
		rebuilt, err := session.FixSpace(firmware)
		Expect(err).To(BeNil())
		Expect(rebuilt).To(BeTrue())
		Expect(memLog.String()).To(ContainSubstring("Failed writing contents"))
	})

	It("tolerates a failing release of a corrupt space", func() {
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			switch {
			case cmd == "tpm_nvrelease":
				return []byte{}, errors.New("release failed")
			case cmd == "tpmc" && args[0] == "getp":
				return []byte("0x8001"), nil
			case cmd == "tpmc" && args[0] == "read":
				return []byte(kernelTagDump), nil
			}
			return []byte{}, nil
		}
		rebuilt, err := session.FixSpace(kernel)
		Expect(err).To(BeNil())
		Expect(rebuilt).To(BeTrue())
		Expect(runner.CountCmd("tpmc", "def", "0x1008")).To(Equal(1))
	})
})
