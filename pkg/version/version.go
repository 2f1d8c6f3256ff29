// Package version reports which build of recall is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Link-time values:
//
//	-X github.com/Aman-CERP/sessionrecall/pkg/version.Version=$(VERSION)
//	-X github.com/Aman-CERP/sessionrecall/pkg/version.Commit=$(COMMIT)
//	-X github.com/Aman-CERP/sessionrecall/pkg/version.Date=$(DATE)
//
// Empty values are filled from the module and VCS data the toolchain
// embeds, so `go install` builds still report a commit.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

const unknown = "unknown"

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	// Modified is set when the binary was built from a dirty tree.
	Modified bool `json:"modified,omitempty"`
}

// Get returns the build information of the running binary.
func Get() BuildInfo {
	return resolve(Version, Commit, Date, debug.ReadBuildInfo)
}

func resolve(v, commit, date string, read func() (*debug.BuildInfo, bool)) BuildInfo {
	info := BuildInfo{
		Version:   v,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if bi, ok := read(); ok && bi != nil {
		if (info.Version == "" || info.Version == "dev") &&
			bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = strings.TrimPrefix(bi.Main.Version, "v")
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = shortRevision(s.Value)
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.Date == "" {
		info.Date = unknown
	}
	return info
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// String renders the one-line form printed by `recall version`.
func (b BuildInfo) String() string {
	commit := b.Commit
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("recall %s (commit %s, built %s, %s, %s)",
		b.Version, commit, b.Date, b.GoVersion, b.Platform)
}
