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

package utils

import (
	"fmt"
	"strconv"
	"strings"

	cnst "github.com/rancher-sandbox/tpm-recovery/pkg/constants"
	v1 "github.com/rancher-sandbox/tpm-recovery/pkg/types/v1"
)

// Exists checks if a path exists on the configured filesystem
func Exists(fs v1.FS, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	return false, err
}

// CrossystemValue queries a single firmware variable through crossystem
func CrossystemValue(runner v1.Runner, key string) (string, error) {
	out, err := runner.Run(cnst.CrossystemBinary, key)
	if err != nil {
		return "", fmt.Errorf("reading '%s': %w", key, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CrossystemInt queries a numeric firmware variable through crossystem
func CrossystemInt(runner v1.Runner, key string) (int, error) {
	val, err := CrossystemValue(runner, key)
	if err != nil {
		return 0, err
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("'%s' reported non numeric value '%s'", key, val)
	}
	return num, nil
}

// CrossystemBool queries a boolean (0/1) firmware variable through crossystem
func CrossystemBool(runner v1.Runner, key string) (bool, error) {
	num, err := CrossystemInt(runner, key)
	if err != nil {
		return false, err
	}
	return num != 0, nil
}
