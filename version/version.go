// Package version reports build metadata injected via -ldflags:
//
//	go build -ldflags "-X github.com/teranos/tradepulse/version.Version=v0.4.0 \
//	  -X github.com/teranos/tradepulse/version.CommitHash=$(git rev-parse HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version    = "dev"
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// Info is the build metadata served by /health and `tradepulse version --json`
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Released reports whether the binary was built from a tagged version
func (i Info) Released() bool {
	return i.Version != "" && i.Version != "dev"
}

func (i Info) String() string {
	return fmt.Sprintf("tradepulse %s (commit %s, built %s, %s %s)",
		i.Version, i.Short(), i.BuildTime, i.GoVersion, i.Platform)
}

// Short returns the abbreviated commit hash
func (i Info) Short() string {
	if len(i.CommitHash) > 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// UserAgent identifies CLI requests in server logs
func (i Info) UserAgent() string {
	if i.Released() {
		return "tradepulse-cli/" + i.Version
	}
	return "tradepulse-cli/dev+" + i.Short()
}
