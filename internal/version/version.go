// Package version tracks build metadata for the application.
package version

import (
	"fmt"
	"runtime"
	"sync"
)

// Info describes build metadata for the application.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// String renders the metadata on one line for the version command.
func (i Info) String() string {
	s := i.Version
	if i.Commit != "" {
		s += " (" + i.Commit + ")"
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return fmt.Sprintf("%s %s", s, i.GoVersion)
}

var (
	info      = Info{Version: "dev", GoVersion: runtime.Version()}
	infoMutex sync.RWMutex
)

// Set updates the version metadata exposed by the application. The Go
// version is always taken from the running binary.
func Set(v Info) {
	infoMutex.Lock()
	defer infoMutex.Unlock()

	if v.Version == "" {
		v.Version = "dev"
	}
	v.GoVersion = runtime.Version()
	info = v
}

// Current returns the currently configured build metadata.
func Current() Info {
	infoMutex.RLock()
	defer infoMutex.RUnlock()
	return info
}
