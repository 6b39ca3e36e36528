// Package version holds build-time identification for valvectl.
package version

import "fmt"

// Version and GitCommit are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/l2fabric/valved/pkg/version.Version=v1.0.0 \
//	  -X github.com/l2fabric/valved/pkg/version.GitCommit=abc1234"
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// Info returns a one-line human-readable build identifier.
func Info() string {
	if Version == "dev" {
		return "valvectl dev build"
	}
	return fmt.Sprintf("valvectl %s (%s)", Version, GitCommit)
}
