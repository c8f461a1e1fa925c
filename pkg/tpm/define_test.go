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
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	conf "github.com/rancher-sandbox/tpm-recovery/pkg/config"
	v1mock "github.com/rancher-sandbox/tpm-recovery/pkg/mocks"
	"github.com/rancher-sandbox/tpm-recovery/pkg/tpm"
	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
)

var _ = Describe("DefineSpace", Label("define"), func() {
	var config *v1.Config
	var runner *v1mock.FakeRunner
	var fakeDaemon *v1mock.FakeDaemon
	var session *tpm.Session

	BeforeEach(func() {
		runner = v1mock.NewFakeRunner()
		fakeDaemon = v1mock.NewFakeDaemon()
		config = conf.NewConfig(
			conf.WithRunner(runner),
			conf.WithLogger(v1.NewNullLogger()),
			conf.WithDaemon(fakeDaemon),
		)
		session = tpm.NewSession(config)
	})

	It("probes capacity, deletes the probe and defines the space", func() {
		Expect(session.DefineSpace(0x1007, 10, 0x8001)).To(BeNil())
		Expect(runner.CmdsMatch([][]string{
			{"tpmc", "clear"},
			{"tpmc", "enable"},
			{"tpmc", "activate"},
			{"tpmc", "def", "0xf004", "0xa", "0x1"},
			{"tpmc", "def", "0xf004", "0x0", "0x1"},
			{"tpmc", "def", "0x1007", "0xa", "0x8001"},
		})).To(BeNil())
		Expect(session.State()).To(Equal(v1.OwnershipUnowned))
	})

	It("reclaims room until the probe fits", func() {
		released := false
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			switch cmd {
			case "tpmc":
				if args[0] == "def" && args[1] == "0xf004" && args[2] != "0x0" && !released {
					return []byte{}, errors.New("no room")
				}
			case "tpm_nvinfo":
				return nvInfoReport(0x2000, 0x2001), nil
			case "tpm_nvrelease":
				released = true
			}
			return []byte{}, nil
		}
		Expect(session.DefineSpace(0x1008, 13, 0x1)).To(BeNil())
		Expect(runner.CountCmd("tpm_nvrelease")).To(Equal(1))
		// failed probe, successful probe, probe deletion, real definition
		Expect(runner.CountCmd("tpmc", "def", "0xf004", "0xd")).To(Equal(2))
		Expect(runner.CountCmd("tpmc", "def", "0x1008", "0xd", "0x1")).To(Equal(1))
		// reclamation owns the module, the definition must run unowned again
		Expect(runner.MatchMilestones([][]string{
			{"tpm_nvrelease"},
			{"tpmc", "clear"},
			{"tpmc", "def", "0x1008"},
		})).To(BeNil())
	})

	It("gives up without defining when capacity cannot be freed", func() {
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			if cmd == "tpmc" && args[0] == "def" && args[1] == "0xf004" {
				return []byte{}, errors.New("no room")
			}
			if cmd == "tpm_nvinfo" {
				return nvInfoReport(0x1007, 0x1008), nil
			}
			return []byte{}, nil
		}
		err := session.DefineSpace(0x1007, 10, 0x8001)
		Expect(err).NotTo(BeNil())
		Expect(err.Error()).To(ContainSubstring("insufficient capacity for space 0x00001007"))
		Expect(runner.CountCmd("tpmc", "def", "0x1007")).To(Equal(0))
	})

	It("tolerates probe deletion failures", func() {
		runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
			if cmd == "tpmc" && args[0] == "def" && args[1] == "0xf004" && args[2] == "0x0" {
				return []byte{}, errors.New("delete failed")
			}
			return []byte{}, nil
		}
		Expect(session.DefineSpace(0x1007, 10, 0x8001)).To(BeNil())
		Expect(runner.CountCmd("tpmc", "def", "0x1007")).To(Equal(1))
	})
})
