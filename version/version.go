// Package version reports the build of the running binary. Version and Commit
// are set at build time:
//
//	go build -ldflags "-X github.com/kbukum/scribe/version.Version=1.2.0" ./cmd/scribe
//
// When Commit is unset it is read from the VCS stamp Go embeds in the binary.
package version

import (
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = ""
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get returns the build info.
func Get() Info {
	info := Info{Version: Version, Commit: Commit}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	if len(info.Commit) > 7 {
		info.Commit = info.Commit[:7]
	}
	return info
}

// String formats info as version[-commit][-dirty].
func (i Info) String() string {
	s := i.Version
	if i.Commit != "" {
		s += "-" + i.Commit
	}
	if i.Dirty {
		s += "-dirty"
	}
	return s
}
