// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// vmafscore tool's list subcommand implementation.

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/evolution-gaming/vmafscore/internal/vmaf"
)

// Make sure ListApp implements Commander interface.
var _ Commander = (*ListApp)(nil)

// ListApp prints selectable models, features and log formats.
type ListApp struct {
	out io.Writer
	fs  *pflag.FlagSet
}

func CreateListCommand() *ListApp {
	longHelp := `Command "list" prints model, feature and log format selectors accepted by "score".`

	app := &ListApp{
		fs:  newFlagSet("list"),
		out: os.Stdout,
	}
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}
	return app
}

func (l *ListApp) Name() string {
	return l.fs.Name()
}

func (l *ListApp) Help() {
	l.fs.Usage()
}

func (l *ListApp) Run(args []string) error {
	if err := l.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      "usage error",
		}
	}

	tw := tabwriter.NewWriter(l.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tNAME\tVERSION")
	for _, m := range vmaf.Models() {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", int(m), m.Name(), m.Version())
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "FEATURE\tNAME\tCHROMA")
	for _, f := range vmaf.Features() {
		fmt.Fprintf(tw, "%d\t%s\t%t\n", int(f), f.Name(), f.Chroma())
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "LOG FORMAT\tNAME")
	for i := 0; ; i++ {
		of, err := vmaf.LogFormatOutput(i)
		if err != nil {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\n", i, of)
	}
	if err := tw.Flush(); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	return nil
}
