// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Reusable parts of vmafscore application and subcommand infrastructure.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"

	"github.com/evolution-gaming/vmafscore/internal/source"
	"github.com/evolution-gaming/vmafscore/internal/vmaf"
	"github.com/evolution-gaming/vmafscore/internal/vqm"
)

// Commander interface should be implemented by commands and sub-commands.
type Commander interface {
	Run([]string) error
	Name() string
	Help()
}

// AppError a custom error returned from CLI application.
//
// AppError is handy error type envisioned to be used in CLI's main.
// ExitCode() should be used as argument for os.Exit().
type AppError struct {
	msg      string
	exitCode int
	err      error
}

// Error implements error interface for AppError.
func (e *AppError) Error() string {
	return e.msg
}

// Unwrap returns the underlying cause, if any.
func (e *AppError) Unwrap() error {
	return e.err
}

// ExitCode returns CLI application's exit code.
func (e *AppError) ExitCode() int {
	return e.exitCode
}

// printSubCommandUsage helper to format ad print subcommand's usage.
func printSubCommandUsage(longHelp string, fs *pflag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage of sub-command %s:\n\n", fs.Name())
	fmt.Fprintf(fs.Output(), "%s\n\n", longHelp)
	fs.PrintDefaults()
}

// newFlagSet creates a FlagSet that keeps flags in declaration order.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newProgressBar renders progress on w when it is a terminal, otherwise
// the bar stays silent.
func newProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	if !isTerminal(w) {
		return progressbar.NewOptions(total, progressbar.OptionSetWriter(io.Discard))
	}
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}

// Prefix of synthetic source specs, e.g. "testsrc:320x240:50:2".
const testSrcPrefix = "testsrc:"

// parseTestSrc parses "testsrc:WxH:FRAMES[:NOISE[:SEED]]" into an 8-bit
// 4:2:0 pattern.
func parseTestSrc(spec string) (source.TestSrc, error) {
	t := source.TestSrc{BitDepth: 8, SubSampling: 420}
	parts := strings.Split(strings.TrimPrefix(spec, testSrcPrefix), ":")
	if len(parts) < 2 || len(parts) > 4 {
		return t, fmt.Errorf("invalid test source %q, want testsrc:WxH:FRAMES[:NOISE[:SEED]]", spec)
	}
	if _, err := fmt.Sscanf(parts[0], "%dx%d", &t.Width, &t.Height); err != nil {
		return t, fmt.Errorf("invalid test source size %q: %w", parts[0], err)
	}
	ints := []*int{&t.Frames, &t.Noise}
	for i, p := range parts[1:] {
		if i == 2 {
			seed, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return t, fmt.Errorf("invalid test source seed %q: %w", p, err)
			}
			t.Seed = seed
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return t, fmt.Errorf("invalid test source field %q: %w", p, err)
		}
		*ints[i] = v
	}
	if t.Width <= 0 || t.Height <= 0 || t.Frames <= 0 {
		return t, fmt.Errorf("invalid test source %q: dimensions and frames must be positive", spec)
	}
	return t, nil
}

// openSource opens a video file through ffmpeg or renders a test source.
func openSource(spec string, cfg Config) (vmaf.Source, error) {
	if strings.HasPrefix(spec, testSrcPrefix) {
		t, err := parseTestSrc(spec)
		if err != nil {
			return nil, err
		}
		return source.NewTestSrc(t)
	}
	if _, err := os.Stat(spec); err != nil {
		return nil, err
	}
	return source.NewFFmpeg(spec, source.FFmpegConfig{
		FfmpegPath: cfg.FfmpegPath.Value(),
		GlobalArgs: cfg.FfmpegGlobalArgs.Value(),
	})
}

// newEngine creates the ffmpeg backed scoring engine.
func newEngine(cfg Config) (vmaf.Engine, error) {
	return vqm.NewEngine(vqm.EngineConfig{
		FfmpegPath: cfg.FfmpegPath.Value(),
		GlobalArgs: cfg.FfmpegGlobalArgs.Value(),
		ModelDir:   cfg.LibvmafModelDir.Value(),
	})
}
