// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// vmafscore tool's score subcommand implementation.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/jszwec/csvutil"
	"github.com/spf13/pflag"

	"github.com/evolution-gaming/vmafscore/internal/logging"
	"github.com/evolution-gaming/vmafscore/internal/vmaf"
	"github.com/evolution-gaming/vmafscore/internal/vqm"
)

// Make sure ScoreApp implements Commander interface.
var _ Commander = (*ScoreApp)(nil)

// ScoreApp is score subcommand context that implements Commander interface.
type ScoreApp struct {
	// Configuration object
	cfg *Config
	// FlagSet instance
	fs *pflag.FlagSet
	// Global flags
	gf globalFlags
	// Pooled scores are printed here
	out io.Writer
	// Progress is rendered here when it is a terminal
	progressOut io.Writer

	// Replaceable for tests.
	loadConfig func(string) (Config, error)
	newEngine  func(Config) (vmaf.Engine, error)
	openSource func(string, Config) (vmaf.Source, error)
	// Opens the CSV report file.
	createReport func(string) (io.WriteCloser, error)

	flReference string
	flDistorted string
	flLogPath   string
	flLogFormat int
	flModels    []int
	flFeatures  []int
	flThreads   int
	flCUDA      string
	flName      string
	flReport    string
}

// CreateScoreCommand will create Commander instance from ScoreApp.
func CreateScoreCommand() *ScoreApp {
	longHelp := `Subcommand "score" computes VMAF of a distorted video against its reference.
Every frame pair is scored, pooled means are printed when the run completes and
the per-frame log is written to --log-path.

Sources are video files decoded by ffmpeg or synthetic patterns given as
testsrc:WxH:FRAMES[:NOISE[:SEED]].

Models:   0 vmaf, 1 vmaf_neg, 2 vmaf_b (collection), 3 vmaf_4k
Features: 0 psnr, 1 psnr_hvs, 2 float_ssim, 3 float_ms_ssim, 4 ciede
Log formats: 0 xml, 1 json, 2 csv, 3 sub

Examples:

  vmafscore score -r ref.mp4 -d dist.mp4 -l vmaf.json
  vmafscore score -r ref.mp4 -d dist.mp4 -l vmaf.xml --log-format 0 --model 0,1 --feature 0,3
  vmafscore score -r testsrc:320x240:50 -d testsrc:320x240:50:8 -l vmaf.json --report summary.csv`

	app := &ScoreApp{
		fs:          newFlagSet("score"),
		gf:          globalFlags{},
		out:         os.Stdout,
		progressOut: os.Stderr,
		loadConfig:  LoadConfig,
		newEngine:   newEngine,
		openSource:  openSource,
		createReport: func(name string) (io.WriteCloser, error) {
			return os.Create(name)
		},
	}
	app.fs.StringVarP(&app.flReference, "reference", "r", "", "Reference video (mandatory)")
	app.fs.StringVarP(&app.flDistorted, "distorted", "d", "", "Distorted video (mandatory)")
	app.fs.StringVarP(&app.flLogPath, "log-path", "l", "", "Per-frame result log file (mandatory)")
	app.fs.IntVar(&app.flLogFormat, "log-format", 1, "Result log format: 0 xml, 1 json, 2 csv, 3 sub")
	app.fs.IntSliceVarP(&app.flModels, "model", "m", []int{int(vmaf.ModelVMAF)}, "Models to score with")
	app.fs.IntSliceVarP(&app.flFeatures, "feature", "f", nil, "Additional features to extract")
	app.fs.IntVarP(&app.flThreads, "threads", "t", 0, "Scoring threads, 0 uses configuration or all CPUs")
	app.fs.StringVar(&app.flCUDA, "cuda", "", "Score on CUDA device, e.g. 0 (optional)")
	app.fs.StringVar(&app.flName, "name", vmaf.DefaultName, "Prefix of error and log messages")
	app.fs.StringVar(&app.flReport, "report", "", "Write pooled scores as CSV to this file (optional)")
	app.gf.Register(app.fs)
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}
	return app
}

func (a *ScoreApp) Name() string {
	return a.fs.Name()
}

func (a *ScoreApp) Help() {
	a.fs.Usage()
}

// init will do App state initialization.
func (a *ScoreApp) init(args []string) error {
	if err := a.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      fmt.Sprintf("%s usage error", a.Name()),
		}
	}

	if a.gf.Debug {
		logging.EnableDebugLogger()
	}

	for _, fl := range []struct{ name, value string }{
		{"--reference", a.flReference},
		{"--distorted", a.flDistorted},
		{"--log-path", a.flLogPath},
	} {
		if fl.value == "" {
			a.Help()
			return &AppError{
				exitCode: 2,
				msg:      fmt.Sprintf("mandatory option %s is missing", fl.name),
			}
		}
	}

	// Load application configuration.
	c, err := a.loadConfig(a.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}
	a.cfg = &c

	// Check if configuration is valid.
	if err := a.cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	return nil
}

// Run is main entry point into ScoreApp execution.
func (a *ScoreApp) Run(args []string) error {
	if err := a.init(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	scores, err := a.score(ctx)
	// Whatever was pooled is worth printing, even for a failed teardown.
	a.printScores(scores)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error(), err: err}
	}

	if a.flReport != "" {
		if err := a.writeReport(scores); err != nil {
			return &AppError{exitCode: 1, msg: fmt.Sprintf("writing report: %s", err)}
		}
		logging.Infof("Report written to %s", a.flReport)
	}
	return nil
}

// options maps flags and configuration to filter options.
func (a *ScoreApp) options() vmaf.Options {
	opts := vmaf.Options{
		Name:      a.flName,
		LogPath:   a.flLogPath,
		LogFormat: a.flLogFormat,
		Models:    a.flModels,
		Features:  a.flFeatures,
		Threads:   a.flThreads,
	}
	if opts.Threads == 0 {
		opts.Threads = a.cfg.Threads.Value()
	}
	if a.flCUDA != "" {
		opts.GPU = &vqm.CUDAState{DeviceName: a.flCUDA}
	}
	return opts
}

// score pulls every frame through the filter.
func (a *ScoreApp) score(ctx context.Context) ([]vmaf.Score, error) {
	ref, err := a.openSource(a.flReference, *a.cfg)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	dist, err := a.openSource(a.flDistorted, *a.cfg)
	if err != nil {
		if c, ok := ref.(io.Closer); ok {
			c.Close()
		}
		return nil, fmt.Errorf("distorted: %w", err)
	}

	engine, err := a.newEngine(*a.cfg)
	if err != nil {
		for _, s := range []vmaf.Source{ref, dist} {
			if c, ok := s.(io.Closer); ok {
				c.Close()
			}
		}
		return nil, err
	}

	// From here on the filter owns both sources.
	f, err := vmaf.New(engine, ref, dist, a.options())
	if err != nil {
		return nil, err
	}

	total := f.VideoInfo().NumFrames
	logging.Infof("Scoring %d frames of %s against %s", total, a.flDistorted, a.flReference)
	bar := newProgressBar(a.progressOut, total, "Scoring")

	var runErr error
	for n := 0; n < total; n++ {
		fr, err := f.GetFrame(ctx, n)
		if err != nil {
			runErr = err
			break
		}
		fr.Free()
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	// Teardown runs even for a failed run so engine resources are released,
	// its errors are already logged.
	closeErr := f.Close()
	if runErr != nil {
		return nil, runErr
	}
	if closeErr != nil {
		return f.Scores(), closeErr
	}
	logging.Infof("Result log written to %s", a.flLogPath)
	return f.Scores(), nil
}

func (a *ScoreApp) printScores(scores []vmaf.Score) {
	for _, s := range scores {
		if s.Collection != nil {
			fmt.Fprintf(a.out, "%s: %.6f (stddev %.6f, 95%% CI %.6f..%.6f)\n",
				s.Model.Name(), s.Value, s.Collection.StdDev, s.Collection.CILo, s.Collection.CIHi)
			continue
		}
		fmt.Fprintf(a.out, "%s: %.6f\n", s.Model.Name(), s.Value)
	}
}

// reportRow is a single line of the summary report.
type reportRow struct {
	Reference string   `csv:"reference"`
	Distorted string   `csv:"distorted"`
	Model     string   `csv:"model"`
	Version   string   `csv:"version"`
	Kind      string   `csv:"kind"`
	Score     float64  `csv:"score"`
	StdDev    *float64 `csv:"stddev,omitempty"`
	CILo      *float64 `csv:"ci_lo,omitempty"`
	CIHi      *float64 `csv:"ci_hi,omitempty"`
}

func newReportRows(reference, distorted string, scores []vmaf.Score) []reportRow {
	rows := make([]reportRow, 0, len(scores))
	for _, s := range scores {
		r := reportRow{
			Reference: reference,
			Distorted: distorted,
			Model:     s.Model.Name(),
			Version:   s.Model.Version(),
			Kind:      s.Kind.String(),
			Score:     s.Value,
		}
		if c := s.Collection; c != nil {
			r.StdDev, r.CILo, r.CIHi = &c.StdDev, &c.CILo, &c.CIHi
		}
		rows = append(rows, r)
	}
	return rows
}

// writeReport writes the CSV summary, a failed close of the report is an
// error as well.
func (a *ScoreApp) writeReport(scores []vmaf.Score) (err error) {
	w, err := a.createReport(a.flReport)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()

	b, err := csvutil.Marshal(newReportRows(a.flReference, a.flDistorted, scores))
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
