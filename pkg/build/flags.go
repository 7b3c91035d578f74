// SPDX-License-Identifier: MIT
//
// Package build holds the metadata embedded into the binary at link time:
//
//	go build -ldflags "-X micscope/pkg/build.buildVersion=0.2.0 -X micscope/pkg/build.buildCommit=$(git rev-parse --short HEAD)"
//
// Development builds run with the defaults below.
package build

import (
	"errors"
	"fmt"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "micscope",
		Description: "Live microphone waveform and spectrum scope",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies the ldflags values into the build info. Every missing
// flag is reported in the returned error; the development default is kept for
// it, so callers may treat the error as a warning.
func Initialize() error {
	var errs []error
	set := func(dst *string, val, name string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			return
		}
		*dst = val
	}

	set(&buildFlags.Name, buildName, "BuildName")
	set(&buildFlags.Time, buildTime, "BuildTime")
	set(&buildFlags.Commit, buildCommit, "BuildCommit")
	set(&buildFlags.Version, buildVersion, "BuildVersion")

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String formats the build info for the --version output.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", f.Version, f.Commit, f.Time)
}
