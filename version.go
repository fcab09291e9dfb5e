// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Application version string related functionality.
//
// Works both for binaries built with -ldflags="-X main.version={ver}" and for
// "go install"-ed ones, where debug.BuildInfo carries the version.

package main

import (
	"fmt"
	"io"
	"runtime/debug"
	"time"
)

// Value injected during build with -ldflags="-X main.version={ver}".
var (
	version string
	vInfo   = readVersionInfo(version, debug.ReadBuildInfo)
)

// versionInfo is struct that includes relevant version information.
type versionInfo struct {
	time      time.Time
	version   string
	revision  string
	goVersion string
	modified  bool
}

func readVersionInfo(injected string, read func() (*debug.BuildInfo, bool)) versionInfo {
	v := versionInfo{version: injected}
	bi, ok := read()
	if !ok {
		return v
	}
	if v.version == "" {
		v.version = bi.Main.Version
	}
	v.goVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			v.revision = s.Value
		case "vcs.time":
			v.time, _ = time.Parse(time.RFC3339, s.Value)
		case "vcs.modified":
			v.modified = s.Value == "true"
		}
	}
	return v
}

func (v versionInfo) String() string {
	s := v.version
	if s == "" {
		s = "(devel)"
	}
	if v.revision != "" {
		s += " " + v.revision
		if v.modified {
			s += "-dirty"
		}
	}
	if !v.time.IsZero() {
		s += " " + v.time.Format(time.DateOnly)
	}
	if v.goVersion != "" {
		s += " " + v.goVersion
	}
	return s
}

func writeVersion(w io.Writer) {
	fmt.Fprintf(w, "vmafscore %s\n", vInfo)
}
