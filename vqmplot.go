// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// vmafscore tool's vqmplot subcommand implementation.

package main

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/pflag"

	"github.com/evolution-gaming/vmafscore/internal/analysis"
	"github.com/evolution-gaming/vmafscore/internal/logging"
	"github.com/evolution-gaming/vmafscore/internal/vmaflog"
)

// Make sure VQMPlotApp implements Commander interface.
var _ Commander = (*VQMPlotApp)(nil)

// VQMPlotApp is vqmplot subcommand context that implements Commander interface.
type VQMPlotApp struct {
	// FlagSet instance
	fs *pflag.FlagSet
	// Global flags
	gf globalFlags
	// JSON result log
	flInFile string
	// Metric to plot
	flMetric string
	// Plot output file
	flOutFile string
	// Metrics overlaid in a single comparison plot
	flCompare []string
}

// CreateVQMPlotCommand will create Commander instance from VQMPlotApp.
func CreateVQMPlotCommand() *VQMPlotApp {
	longHelp := `Subcommand "vqmplot" will create a per frame plot, histogram and CDF of a metric
from a JSON result log (as written by "score" or libvmaf itself).

Examples:

  vmafscore vqmplot -i vmaf.json
  vmafscore vqmplot -i vmaf.json -m psnr_y -o psnr.png
  vmafscore vqmplot -i vmaf.json --compare vmaf,vmaf_neg -o models.png`

	app := &VQMPlotApp{
		fs: newFlagSet("vqmplot"),
		gf: globalFlags{},
	}
	app.fs.StringVarP(&app.flInFile, "input", "i", "", "JSON result log (mandatory)")
	app.fs.StringVarP(&app.flMetric, "metric", "m", "vmaf", "Metric to plot")
	app.fs.StringVarP(&app.flOutFile, "output", "o", "", "File to save plot to, defaults to <log>_<metric>.png")
	app.fs.StringSliceVar(&app.flCompare, "compare", nil, "Overlay these metrics in one plot instead")
	app.gf.Register(app.fs)
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}
	return app
}

func (a *VQMPlotApp) Name() string {
	return a.fs.Name()
}

func (a *VQMPlotApp) Help() {
	a.fs.Usage()
}

// Run is main entry point into VQMPlotApp execution.
func (a *VQMPlotApp) Run(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.Name()),
		}
	}

	if a.gf.Debug {
		logging.EnableDebugLogger()
	}

	if a.flInFile == "" {
		a.Help()
		return &AppError{
			exitCode: 2,
			msg:      "mandatory option -i is missing",
		}
	}

	base := path.Base(a.flInFile)
	base = strings.TrimSuffix(base, path.Ext(base))
	if a.flOutFile == "" {
		suffix := a.flMetric
		if len(a.flCompare) > 0 {
			suffix = "compare"
		}
		a.flOutFile = fmt.Sprintf("%s_%s.png", base, suffix)
	}

	l, err := vmaflog.Read(a.flInFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	if len(a.flCompare) > 0 {
		err = analysis.ComparePlotLog(l, base, a.flOutFile, a.flCompare...)
	} else {
		err = analysis.MultiPlotLog(l, a.flMetric, base, a.flOutFile)
	}
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	logging.Infof("Plot written to:\n\t%s\n", a.flOutFile)
	return nil
}
