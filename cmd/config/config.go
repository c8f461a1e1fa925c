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

package config

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rancher-sandbox/tpm-recovery/pkg/config"
	cnst "github.com/rancher-sandbox/tpm-recovery/pkg/constants"
	"github.com/rancher-sandbox/tpm-recovery/pkg/daemon"
	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
)

func ReadConfigRun(configDir string) (*v1.RunConfig, error) {
	cfg := config.NewRunConfig(
		config.WithLogger(v1.NewLogger()),
	)

	// Set debug level
	if viper.GetBool("debug") {
		cfg.Logger.SetLevel(v1.DebugLevel())
	}

	// Set formatter so both file and stdout format are equal
	cfg.Logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:      true,
		DisableColors:    false,
		DisableTimestamp: false,
		FullTimestamp:    true,
	})

	// Logfile
	logfile := viper.GetString("logfile")
	if logfile != "" {
		o, err := cfg.Fs.OpenFile(logfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fs.ModePerm)

		if err != nil {
			cfg.Logger.Errorf("Could not open %s for logging to file: %s", logfile, err.Error())
		}

		if viper.GetBool("quiet") { // if quiet is set, only set the log to the file
			cfg.Logger.SetOutput(o)
		} else { // else set it to both stdout and the file
			mw := io.MultiWriter(os.Stdout, o)
			cfg.Logger.SetOutput(mw)
		}
	} else { // no logfile
		if viper.GetBool("quiet") { // quiet is enabled so discard all logging
			cfg.Logger.SetOutput(io.Discard)
		} else { // default to stdout
			cfg.Logger.SetOutput(os.Stdout)
		}
	}

	// Defaults file shipped by the recovery image, if any
	if _, err := os.Stat(cnst.EnvDefaultsFile); err == nil {
		if err = godotenv.Load(cnst.EnvDefaultsFile); err != nil {
			cfg.Logger.Warnf("Could not load defaults from %s: %s", cnst.EnvDefaultsFile, err.Error())
		}
	}

	viper.AddConfigPath(configDir)
	viper.SetConfigType("yaml")
	viper.SetConfigName("config.yaml")
	// If a config file is found, read it in.
	_ = viper.MergeInConfig()

	// Load extra config files on configdir/config.d/ so we can override config values
	cfgExtra := fmt.Sprintf("%s/config.d/", strings.TrimSuffix(configDir, "/"))
	if _, err := os.Stat(cfgExtra); err == nil {
		viper.AddConfigPath(cfgExtra)
		_ = filepath.WalkDir(cfgExtra, func(path string, d fs.DirEntry, err error) error {
			if d != nil && !d.IsDir() {
				viper.SetConfigName(d.Name())
				_ = viper.MergeInConfig()
			}
			return nil
		})
	}

	// Set the prefix for vars so we get only the ones starting with TPM_RECOVERY
	viper.SetEnvPrefix("TPM_RECOVERY")

	replacer := strings.NewReplacer("-", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match

	// unmarshal all the vars into the config object
	err := viper.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	))
	if err != nil {
		cfg.Logger.Warnf("Error unmarshalling config: %s", err.Error())
	}

	// the default daemon was built before the settle interval was known
	if cfg.TcsdSettle != cnst.TcsdSettleTime {
		cfg.Daemon = daemon.NewTcsd(cfg.Logger, daemon.WithSettle(cfg.TcsdSettle))
	}

	return cfg, nil
}

// ReadRecoverSpec probes the host state and returns the spec of the
// reconciliation run. Flags override nothing yet beyond what viper bound.
func ReadRecoverSpec(cfg *v1.RunConfig, flags *pflag.FlagSet) (*v1.RecoverSpec, error) {
	spec, err := config.NewRecoverSpec(cfg.Config)
	if err != nil {
		return nil, err
	}
	if flags != nil {
		cfg.Strict = viper.GetBool("strict")
	}
	return spec, nil
}
