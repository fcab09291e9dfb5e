// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Application configuration structures.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/evolution-gaming/vmafscore/internal/logging"
	"github.com/evolution-gaming/vmafscore/internal/tools"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Model looked up to auto-detect libvmaf model directory.
const defaultModelVersion = "vmaf_v0.6.1"

// Config represent application configuration.
type Config struct {
	FfmpegPath       ConfigVal[string] `json:"ffmpeg_path,omitempty" yaml:"ffmpeg_path,omitempty"`
	FfprobePath      ConfigVal[string] `json:"ffprobe_path,omitempty" yaml:"ffprobe_path,omitempty"`
	FfmpegGlobalArgs ConfigVal[string] `json:"ffmpeg_global_args,omitempty" yaml:"ffmpeg_global_args,omitempty"`
	LibvmafModelDir  ConfigVal[string] `json:"libvmaf_model_dir,omitempty" yaml:"libvmaf_model_dir,omitempty"`
	Threads          ConfigVal[int]    `json:"threads,omitempty" yaml:"threads,omitempty"`
}

// ConfigError defines Config validation failures.
type ConfigError struct {
	reasons []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", strings.Join(e.reasons, ", "), ErrInvalidConfig)
}

// Is makes ConfigError match ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *ConfigError) Reasons() []string {
	return e.reasons
}

func (e *ConfigError) addReason(reason string) {
	e.reasons = append(e.reasons, reason)
}

// Verify will check that configuration is valid.
//
// Will check that configuration option values are sensible.
func (c *Config) Verify() error {
	errConfig := &ConfigError{}
	// Check that ffmpeg exists.
	if !fileExists(c.FfmpegPath.Value()) {
		errConfig.addReason("invalid ffmpeg path")
	}
	// Check that ffprobe exists.
	if !fileExists(c.FfprobePath.Value()) {
		errConfig.addReason("invalid ffprobe path")
	}
	// Model directory is optional, libvmaf has built-in models.
	if !c.LibvmafModelDir.IsNil() && c.LibvmafModelDir.Value() != "" && !dirExists(c.LibvmafModelDir.Value()) {
		errConfig.addReason("invalid libvmaf model directory")
	}
	if _, err := shlex.Split(c.FfmpegGlobalArgs.Value()); err != nil {
		errConfig.addReason("malformed ffmpeg global arguments")
	}
	if c.Threads.Value() < 0 {
		errConfig.addReason("negative thread count")
	}

	if len(errConfig.reasons) != 0 {
		return errConfig
	}
	return nil
}

// OverrideFrom will overwrite fields from given Config object.
//
// Only fields that are "not-nil" (as per IsNil() method) in src Config object will be
// overwritten.
func (c *Config) OverrideFrom(src Config) {
	if !src.FfmpegPath.IsNil() {
		c.FfmpegPath = src.FfmpegPath
	}
	if !src.FfprobePath.IsNil() {
		c.FfprobePath = src.FfprobePath
	}
	if !src.FfmpegGlobalArgs.IsNil() {
		c.FfmpegGlobalArgs = src.FfmpegGlobalArgs
	}
	if !src.LibvmafModelDir.IsNil() {
		c.LibvmafModelDir = src.LibvmafModelDir
	}
	if !src.Threads.IsNil() {
		c.Threads = src.Threads
	}
}

// loadDefaultConfig will create a default configuration.
//
// For some configuration options a default value will be specified, for others an
// auto-detection mechanism will populate option values.
func loadDefaultConfig() (Config, error) {
	var cfg Config

	// For default configuration attempt to locate ffmpeg binary.
	ffmpeg, err := tools.FfmpegPath()
	if err != nil {
		return cfg, fmt.Errorf("DefaultConfig: %w", err)
	}

	// For default configuration attempt to locate ffprobe binary.
	ffprobe, err := tools.FfprobePath()
	if err != nil {
		return cfg, fmt.Errorf("DefaultConfig: %w", err)
	}

	cfg = Config{
		FfmpegPath:       NewConfigVal(ffmpeg),
		FfprobePath:      NewConfigVal(ffprobe),
		FfmpegGlobalArgs: NewConfigVal(""),
		Threads:          NewConfigVal(0),
	}

	// Model files are optional, ffmpeg's libvmaf falls back to built-in
	// models.
	if model, err := tools.FindLibvmafModel(defaultModelVersion); err == nil {
		cfg.LibvmafModelDir = NewConfigVal(filepath.Dir(model))
	} else {
		logging.Debugf("DefaultConfig: %s", err)
	}

	return cfg, nil
}

// loadConfigFromFile will load configuration from file.
//
// JSON and YAML are supported.
func loadConfigFromFile(f string) (cfg Config, err error) {
	fileExt := strings.ToLower(filepath.Ext(f))
	switch fileExt {
	case ".json":
		return loadJSON(f)
	case ".yaml", ".yml":
		return loadYAML(f)
	default:
		return cfg, fmt.Errorf("unknown config format: %s", fileExt)
	}
}

// LoadConfig will return merged default config and config from file. This is main
// function to use for config loading. Configuration file is optional e.g. can be "".
func LoadConfig(configFile string) (cfg Config, err error) {
	// Initialize default configuration.
	cfg, err = loadDefaultConfig()
	if err != nil {
		return cfg, err
	}

	// Load configuration from file and override default configuration options.
	if configFile != "" {
		c, err := loadConfigFromFile(configFile)
		if err != nil {
			return cfg, err
		}
		// Configuration file can specify full set or partial set of configuration
		// options. So we only want to override those options that have been specified in
		// config file, re st will remain as per default config.
		cfg.OverrideFrom(c)
	}

	return cfg, nil
}

func loadJSON(f string) (cfg Config, err error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return cfg, fmt.Errorf("config from JSON file: %w", err)
	}

	if len(b) == 0 {
		return cfg, fmt.Errorf("JSON file is empty: %w", ErrInvalidConfig)
	}

	if err = json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config from JSON document: %w", err)
	}

	return cfg, nil
}

func loadYAML(f string) (cfg Config, err error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return cfg, fmt.Errorf("config from YAML file: %w", err)
	}

	if len(b) == 0 {
		return cfg, fmt.Errorf("YAML file is empty: %w", ErrInvalidConfig)
	}

	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config from YAML document: %w", err)
	}

	return cfg, nil
}

// writeConfig encodes cfg as JSON or YAML.
func writeConfig(w io.Writer, cfg Config, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown config format: %s", format)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func dirExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}

// In order to support Config overriding we have to implement wrapper type for Config
// fields. Otherwise it is hard to distinguish skipped fields, for instance when loading
// partial configuration from file: in that case it would be impossible to  distinguish
// between say string fields zero value and empty string values as explicitly specified in
// configuration file.

// NewConfigVal is constructor for ConfigVal. It will wrap its argument into ConfigVal.
func NewConfigVal[T any](v T) ConfigVal[T] {
	return ConfigVal[T]{v: &v}
}

// ConfigVal is a wrapper for Config field value.
type ConfigVal[T any] struct {
	// Store wrapped value as pointer in order to have ability to distinguish between
	// unspecified ConfigVal and a value that is the same as zero value for wrapped type.
	// In this case a zero value for pointer is nil.
	//
	// For example a zero value for string is "" which is impossible to distinguish from
	// explicit empty string "".
	v *T
}

// Value will return wrapped value.
//
// In case field has not been defined e.g. is zero value, then appropriate zero value of
// wrapped typw will be returned.
func (o *ConfigVal[T]) Value() T {
	if o.IsNil() {
		var v T
		return v
	}
	return *o.v
}

// IsNil check if wrapped value is nil.
func (o *ConfigVal[T]) IsNil() bool {
	// Zero value for pointer type is nil.
	return o.v == nil
}

// UnmarshalJSON implements json.Unmarshaler interface for ConfigVal.
func (o *ConfigVal[T]) UnmarshalJSON(b []byte) error {
	var val T
	err := json.Unmarshal(b, &val)
	if err != nil {
		return err
	}
	o.v = &val
	return nil
}

// MarshalJSON implements json.Marshaler interface for ConfigVal.
func (o ConfigVal[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value())
}

// UnmarshalYAML implements yaml.Unmarshaler interface for ConfigVal.
func (o *ConfigVal[T]) UnmarshalYAML(node *yaml.Node) error {
	var val T
	if err := node.Decode(&val); err != nil {
		return err
	}
	o.v = &val
	return nil
}

// MarshalYAML implements yaml.Marshaler interface for ConfigVal.
func (o ConfigVal[T]) MarshalYAML() (interface{}, error) {
	return o.Value(), nil
}

// IsZero lets YAML omitempty skip unset values.
func (o ConfigVal[T]) IsZero() bool {
	return o.v == nil
}

func CreateDumpConfCommand() *DumpConfApp {
	longHelp := `Command "dump-conf" will print actual application configuration taking into account
configuration file provided and default configuration values.

Examples:

	vmafscore dump-conf
	vmafscore dump-conf --conf path/to/config.yaml --format yaml`

	app := &DumpConfApp{
		fs:  newFlagSet("dump-conf"),
		gf:  globalFlags{},
		out: os.Stdout,
	}
	app.gf.Register(app.fs)
	app.fs.StringVar(&app.flFormat, "format", "json", "Output format: json or yaml")
	app.fs.Usage = func() {
		printSubCommandUsage(longHelp, app.fs)
	}

	return app
}

// Make sure App implements Commander interface.
var _ Commander = (*DumpConfApp)(nil)

// DumpConfApp is subcommand application context that implements Commander interface.
// Although this is very simple application, but for consistency sake is is implemented in
// similar style as other subcommands.
type DumpConfApp struct {
	out      io.Writer
	fs       *pflag.FlagSet
	gf       globalFlags
	flFormat string
}

func (d *DumpConfApp) Name() string {
	return d.fs.Name()
}

func (d *DumpConfApp) Help() {
	d.fs.Usage()
}

// Run is main entry point into DumpConfApp execution.
func (d *DumpConfApp) Run(args []string) error {
	if err := d.fs.Parse(args); err != nil {
		return &AppError{
			exitCode: 2,
			msg:      "usage error",
		}
	}

	if d.gf.Debug {
		logging.EnableDebugLogger()
	}

	// Load application configuration.
	cfg, err := LoadConfig(d.gf.ConfFile)
	if err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	if err := writeConfig(d.out, cfg, d.flFormat); err != nil {
		return &AppError{exitCode: 1, msg: err.Error()}
	}

	// Also, report if configuration is valid.
	if err := cfg.Verify(); err != nil {
		return &AppError{exitCode: 1, msg: fmt.Sprintf("configuration validation: %s", err)}
	}

	return nil
}
