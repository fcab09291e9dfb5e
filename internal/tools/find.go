// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tools

import (
	"fmt"
	"os"
	"os/exec"
)

// FindTool will find tool executable in $PATH with possibility to override it
// via environment variable. An override pointing to a directory or a missing
// file is ignored.
func FindTool(exeName, overrideEnvVar string) (string, error) {
	if overrideEnvVar != "" {
		if p := os.Getenv(overrideEnvVar); p != "" {
			if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
				return p, nil
			}
		}
	}

	if p, err := exec.LookPath(exeName); err == nil {
		return p, nil
	}

	return "", fmt.Errorf("binary (%s) not found", exeName)
}
