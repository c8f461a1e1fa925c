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
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	conf "github.com/rancher-sandbox/tpm-recovery/pkg/config"
	v1mock "github.com/rancher-sandbox/tpm-recovery/pkg/mocks"
	"github.com/rancher-sandbox/tpm-recovery/pkg/tpm"
	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
)

// nvInfoReport renders tpm_nvinfo style output for the given indices
func nvInfoReport(indices ...uint32) []byte {
	var sb strings.Builder
	for _, index := range indices {
		sb.WriteString(fmt.Sprintf("NVRAM index   : 0x%x (%d)\n", index, index))
	}
	return []byte(sb.String())
}

var _ = Describe("Reclaimer", Label("reclaim"), func() {
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

	Describe("ListUnexpectedSpaces", func() {
		It("filters out reserved and managed indices", func() {
			runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
				if cmd == "tpm_nvinfo" {
					return nvInfoReport(
						0xffffffff, 0x0, 0x1, // permanent indices
						0xf000, 0xf004, 0xffff, // TPM reserved range
						0x10000, 0x1ffff, // working group range
						0x1007, 0x1008, // managed spaces
						0x20000002, 0x2000, // unexpected
					), nil
				}
				return []byte{}, nil
			}
			unexpected, err := session.ListUnexpectedSpaces()
			Expect(err).To(BeNil())
			Expect(unexpected).To(Equal([]uint32{0x20000002, 0x2000}))
		})
		It("returns an empty list when every space is expected", func() {
			runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
				if cmd == "tpm_nvinfo" {
					return nvInfoReport(0x1007, 0x1008), nil
				}
				return []byte{}, nil
			}
			unexpected, err := session.ListUnexpectedSpaces()
			Expect(err).To(BeNil())
			Expect(unexpected).To(BeEmpty())
		})
		It("establishes ownership and starts the daemon before listing", func() {
			_, err := session.ListUnexpectedSpaces()
			Expect(err).To(BeNil())
			Expect(session.State()).To(Equal(v1.OwnershipWellKnown))
			Expect(fakeDaemon.StartCalls).NotTo(BeZero())
			Expect(runner.MatchMilestones([][]string{
				{"tpm_takeownership"},
				{"tpm_nvinfo"},
			})).To(BeNil())
		})
	})

	Describe("MakeRoom", func() {
		It("fails when there is nothing left to reclaim", func() {
			runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
				if cmd == "tpm_nvinfo" {
					return nvInfoReport(0x1007, 0x1008), nil
				}
				return []byte{}, nil
			}
			err := session.MakeRoom()
			Expect(err).NotTo(BeNil())
			Expect(err.Error()).To(ContainSubstring("no reclaimable spaces left"))
			Expect(runner.CountCmd("tpm_nvrelease")).To(Equal(0))
		})
		It("stops at the first successful release", func() {
			failing := map[string]bool{"0x2000": true, "0x2001": true}
			runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
				switch cmd {
				case "tpm_nvinfo":
					return nvInfoReport(0x2000, 0x2001, 0x2002, 0x2003), nil
				case "tpm_nvrelease":
					if failing[args[1]] {
						return []byte{}, errors.New("release failed")
					}
				}
				return []byte{}, nil
			}
			Expect(session.MakeRoom()).To(BeNil())
			// two failures then the release of 0x2002, 0x2003 stays untried
			Expect(runner.CountCmd("tpm_nvrelease")).To(Equal(3))
			Expect(runner.CountCmd("tpm_nvrelease", "-i", "0x2003")).To(Equal(0))
			Expect(session.ReleasedSpaces()).To(Equal([]uint32{0x2002}))
		})
		It("fails after trying every candidate once", func() {
			runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
				switch cmd {
				case "tpm_nvinfo":
					return nvInfoReport(0x2000, 0x2001, 0x2002), nil
				case "tpm_nvrelease":
					return []byte{}, errors.New("release failed")
				}
				return []byte{}, nil
			}
			err := session.MakeRoom()
			Expect(err).NotTo(BeNil())
			Expect(runner.CountCmd("tpm_nvrelease")).To(Equal(3))
		})
	})

	Describe("ReleaseSpace", func() {
		It("owns the module and starts the daemon before releasing", func() {
			Expect(session.ReleaseSpace(0x2000)).To(BeNil())
			Expect(session.State()).To(Equal(v1.OwnershipWellKnown))
			Expect(fakeDaemon.IsRunning()).To(BeTrue())
			Expect(runner.MatchMilestones([][]string{
				{"tpmc", "clear"},
				{"tpm_takeownership"},
				{"tpm_nvrelease", "-i", "0x2000", "-y"},
			})).To(BeNil())
		})
		It("propagates release failures", func() {
			runner.SideEffect = func(cmd string, args ...string) ([]byte, error) {
				if cmd == "tpm_nvrelease" {
					return []byte{}, errors.New("release failed")
				}
				return []byte{}, nil
			}
			Expect(session.ReleaseSpace(0x2000)).NotTo(BeNil())
		})
	})
})
