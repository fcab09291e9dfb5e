// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"io"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ListApp_Run(t *testing.T) {
	out := &bytes.Buffer{}
	app := CreateListCommand()
	app.out = out

	require.NoError(t, app.Run(nil))

	got := out.String()
	for _, want := range []string{
		"MODEL", "FEATURE", "LOG FORMAT",
		"vmaf_v0.6.1", "vmaf_b_v0.6.3", "vmaf_v0.6.1neg", "vmaf_4k_v0.6.1",
		"float_ms_ssim", "ciede",
		"json", "xml", "csv", "sub",
	} {
		assert.Contains(t, got, want)
	}
	// Model selectors start at 0 and are listed in order.
	assert.Regexp(t, regexp.MustCompile(`(?m)^0\s+vmaf\s`), got)
}

func Test_ListApp_Run_UsageError(t *testing.T) {
	app := CreateListCommand()
	app.fs.SetOutput(io.Discard)
	app.out = io.Discard

	err := app.Run([]string{"--verbose"})
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 2, appErr.ExitCode())
}
