// Package buildinfo reports the name and version of the running binary for
// diagnostics and the user agent sent to remote services.
//
// Values are resolved once and never change afterwards.
package buildinfo

import (
	"fmt"
	"path"
	"runtime/debug"
	"sync"
)

const defaultName = "callguard"

// Set at build time:
//
//	-ldflags "-X github.com/aravindh-murugesan/bigquery-callguard-go/internal/buildinfo.version=v1.2.3"
var (
	version, commit, date string
)

// Info is the resolved build metadata.
type Info struct {
	Name    string
	Version string
	Commit  string
	Date    string
}

var load = sync.OnceValue(func() Info {
	return resolve(version, commit, date, debug.ReadBuildInfo)
})

func resolve(version, commit, date string, read func() (*debug.BuildInfo, bool)) Info {
	info := Info{Name: defaultName, Version: version, Commit: commit, Date: date}

	bi, ok := read()
	if !ok {
		if info.Version == "" {
			info.Version = "unknown"
		}
		return info
	}

	if bi.Main.Path != "" {
		info.Name = path.Base(bi.Main.Path)
	}
	if info.Version == "" {
		info.Version = bi.Main.Version
	}
	if info.Version == "" || info.Version == "(devel)" {
		info.Version = "devel"
	}

	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = setting.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = setting.Value
			}
		}
	}
	return info
}

// Get returns the build metadata of this binary.
func Get() Info { return load() }

func Name() string    { return load().Name }
func Version() string { return load().Version }
func Commit() string  { return load().Commit }
func Date() string    { return load().Date }

// UserAgent is sent with every remote request, e.g. "bigquery-callguard-go/v1.2.3".
func UserAgent() string {
	info := load()
	return fmt.Sprintf("%s/%s", info.Name, info.Version)
}
