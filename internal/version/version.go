// Package version formats the build information injected with -ldflags
package version

import (
	"fmt"
	"runtime"
)

// GetVersion returns a short version string such as v1.2.0-abcdef1
func GetVersion(version, commit, buildTime string) string {
	if version == "" {
		version = "dev"
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if commit == "" {
		return version
	}
	return fmt.Sprintf("%s-%s", version, commit)
}

// GetDetailedVersion returns detailed version information
func GetDetailedVersion(version, commit, buildTime string) string {
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	if buildTime == "" {
		buildTime = "unknown"
	}

	return fmt.Sprintf(`nctmon (Nuvoton NCT6687D hardware monitor)
Version:    %s
Commit:     %s
Built:      %s
Go version: %s
OS/Arch:    %s/%s`,
		version, commit, buildTime,
		runtime.Version(),
		runtime.GOOS, runtime.GOARCH)
}
