package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at link time with -ldflags "-X".
var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
	// Native is true when whisper.cpp is linked in.
	Native bool `json:"native" yaml:"native"`
}

// Current collects version details. Values not stamped at link time are filled
// from the module build info when available.
func Current(native bool) Info {
	bi, _ := debug.ReadBuildInfo()
	return resolve(Version, Commit, Date, bi, native)
}

func resolve(base, commit, date string, bi *debug.BuildInfo, native bool) Info {
	if base == "" {
		base = "0.0.0"
	}
	info := Info{
		Version:   base,
		Commit:    commit,
		Date:      date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Native:    native,
	}
	if bi == nil {
		return info
	}

	settings := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}

	if info.Commit == "" || info.Commit == "unknown" {
		if rev := settings["vcs.revision"]; rev != "" {
			info.Commit = shortRevision(rev)
			info.Version = base + "-" + info.Commit
			if settings["vcs.modified"] == "true" {
				info.Version += "-dirty"
			}
		}
	}
	if info.Date == "" || info.Date == "unknown" {
		if t := settings["vcs.time"]; t != "" {
			info.Date = t
		}
	}
	return info
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// String renders the one-line form printed by the version command.
func (i Info) String() string {
	backend := "stub (built without -tags whispercpp)"
	if i.Native {
		backend = "whisper.cpp"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "whispercppkit %s", i.Version)
	if i.Commit != "" && i.Commit != "unknown" && !strings.Contains(i.Version, i.Commit) {
		fmt.Fprintf(&b, " (%s)", i.Commit)
	}
	fmt.Fprintf(&b, " %s %s, engine: %s", i.GoVersion, i.Platform, backend)
	return b.String()
}
