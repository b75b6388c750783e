// Package version carries build metadata stamped in by the linker, falling
// back to what the Go toolchain embedded for `go install` builds.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is the resolved build metadata.
type Info struct {
	Version string
	Commit  string
	Date    string
	Go      string
}

// Current resolves Info, filling unset linker values from build info.
func Current() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, Go: runtime.Version()}
	if build, ok := debug.ReadBuildInfo(); ok {
		info = fillFromBuild(info, build)
	}
	return info
}

func fillFromBuild(info Info, build *debug.BuildInfo) Info {
	if info.Version == "dev" && build.Main.Version != "" && build.Main.Version != "(devel)" {
		info.Version = build.Main.Version
	}
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "none" && len(setting.Value) >= 12 {
				info.Commit = setting.Value[:12]
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = setting.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	return "bettervoice " + i.Version + " (commit=" + i.Commit + ", date=" + i.Date + ", go=" + i.Go + ")"
}

func String() string {
	return Current().String()
}
