// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Main entrypoint for vmafscore application

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/evolution-gaming/vmafscore/internal/logging"
)

const usage = `vmafscore - VMAF scoring of a distorted video against its reference

Usage:

    vmafscore <command> [arguments] [-h|--help]

The commands are:

    score       score a distorted video against a reference
    vqmplot     create plot for given metric from JSON result log
    list        print model, feature and log format selectors
    dump-conf   output actual application configuration
    version     print vmafscore version and exit

Use "vmafscore help <command>" or "vmafscore <command> --help" for more
information about command.`

// commands returns fresh subcommand instances keyed by name and alias.
func commands() map[string]Commander {
	dump := CreateDumpConfCommand()
	return map[string]Commander{
		"score":     CreateScoreCommand(),
		"vqmplot":   CreateVQMPlotCommand(),
		"list":      CreateListCommand(),
		"dump-conf": dump,
		"dump":      dump,
	}
}

// root represents top level of vmafscore command, including dispatching to subcommands.
func root(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(stdout, usage)
		return &AppError{msg: "please, specify command", exitCode: 2}
	}

	cmds := commands()
	if cmd, ok := cmds[args[0]]; ok {
		return cmd.Run(args[1:])
	}

	switch args[0] {
	case "version":
		writeVersion(stdout)
		return nil
	case "help":
		if len(args) > 1 {
			if cmd, ok := cmds[args[1]]; ok {
				cmd.Help()
				return nil
			}
		}
		fmt.Fprintln(stdout, usage)
		return nil
	case "-h", "-help", "--help", "?":
		fmt.Fprintln(stdout, usage)
		return &AppError{
			exitCode: 2,
		}
	default:
		// No commands were matched at this point, so bail out with default usage message.
		fmt.Fprintln(stdout, usage)
		return &AppError{
			msg:      fmt.Sprintf("unknown command/flag: %s", args[0]),
			exitCode: 2,
		}
	}
}

// exitCode maps an error returned by root to a process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode()
	}
	return 1
}

func main() {
	// Enable info logger by default and early enough.
	logging.EnableInfoLogger()

	err := root(os.Args[1:], os.Stdout)
	if err != nil && err.Error() != "" {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	os.Exit(exitCode(err))
}
