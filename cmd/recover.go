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

package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdConfig "github.com/rancher-sandbox/tpm-recovery/cmd/config"
	"github.com/rancher-sandbox/tpm-recovery/pkg/action"
	"github.com/rancher-sandbox/tpm-recovery/pkg/config"
	recoveryError "github.com/rancher-sandbox/tpm-recovery/pkg/error"
)

func NewRecoverCmd(root *cobra.Command, addCheckRoot bool) *cobra.Command {
	c := &cobra.Command{
		Use:   "recover",
		Short: "Reconcile TPM ownership and the managed NVRAM spaces",
		Args:  cobra.ExactArgs(0),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if addCheckRoot {
				return CheckRoot()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdConfig.ReadConfigRun(viper.GetString("config-dir"))
			if err != nil {
				cfg.Logger.Errorf("Error reading config: %s\n", err)
			}

			cmd.SilenceUsage = true
			spec, err := cmdConfig.ReadRecoverSpec(cfg, cmd.Flags())
			if err != nil {
				cfg.Logger.Errorf("invalid recover command setup: %v", err)
				if errors.Is(err, config.ErrNotRecoveryBoot) {
					return recoveryError.NewFromError(err, recoveryError.NotRecoveryBoot)
				}
				return recoveryError.NewFromError(err, recoveryError.ReadHostState)
			}

			cfg.Logger.Infof("Recover called")
			recovery := action.NewRecoverAction(cfg, spec)
			return recovery.Run()
		},
	}
	root.AddCommand(c)
	c.Flags().Bool("strict", false, "Treat space restore failures as fatal")
	_ = viper.BindPFlag("strict", c.Flags().Lookup("strict"))
	return c
}

// register the subcommand into rootCmd
var _ = NewRecoverCmd(rootCmd, true)
