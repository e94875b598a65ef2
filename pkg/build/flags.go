// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded into the binary at link time:
//
//	go build -ldflags "-X bbbtune/pkg/build.buildName=bbbtune \
//	  -X bbbtune/pkg/build.buildVersion=0.3.0 \
//	  -X bbbtune/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X bbbtune/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds without ldflags still run; missing fields keep their
// defaults and the commit falls back to the VCS revision the go command
// records.
package build

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Info is the build metadata.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = defaultInfo()
)

func defaultInfo() Info {
	return Info{
		Name:    "bbbtune",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
}

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Initialize copies the ldflags variables into the build info. It returns
// an error naming every missing flag; the info is usable either way.
func Initialize() error {
	info := defaultInfo()
	var errList []error
	set := func(dst *string, v, name string) {
		if v == "" {
			errList = append(errList, fmt.Errorf("%s is required", name))
			return
		}
		*dst = v
	}
	set(&info.Name, buildName, "BuildName")
	set(&info.Time, buildTime, "BuildTime")
	set(&info.Commit, buildCommit, "BuildCommit")
	set(&info.Version, buildVersion, "BuildVersion")

	if buildCommit == "" {
		if bi, ok := readBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					info.Commit = s.Value
				}
			}
		}
	}
	buildInfo = info
	return errors.Join(errList...)
}

// Get returns the current build information.
func Get() Info {
	return buildInfo
}
