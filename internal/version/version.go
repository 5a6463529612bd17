// Package version reports how the archiver binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Set with -ldflags "-X github.com/flowmesh/archiver/internal/version.Version=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info describes one build
type Info struct {
	Version   string
	BuildTime string
	GitCommit string
	GoVersion string
	Modified  bool
}

// Get returns the build description. Development builds fall back to the
// VCS stamp the Go toolchain embeds.
func Get() Info {
	info := Info{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}
	if Version != "dev" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fromSettings(bi.Settings)
	}
	return info
}

func (i *Info) fromSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.GitCommit == "unknown" {
				i.GitCommit = s.Value
			}
		case "vcs.time":
			if i.BuildTime == "unknown" {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
}

// String formats the build for a banner line
func (i Info) String() string {
	commit := i.GitCommit
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("Archiver version %s (build time: %s, commit: %s, go: %s)",
		i.Version, i.BuildTime, commit, i.GoVersion)
}

// MarshalZerologObject lets the build be logged with Event.Object
func (i Info) MarshalZerologObject(e *zerolog.Event) {
	e.Str("version", i.Version).
		Str("build_time", i.BuildTime).
		Str("commit", i.GitCommit).
		Str("go", i.GoVersion).
		Bool("modified", i.Modified)
}

// String returns the formatted current build
func String() string {
	return Get().String()
}
