package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/supporttools/BackupFlow/pkg/version.Version=..."
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"gitCommit" yaml:"git_commit"`
	BuildTime string `json:"buildTime" yaml:"build_time"`
	GoVersion string `json:"goVersion" yaml:"go_version"`
}

// Info returns the build information of the running binary
func Info() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("Version: %s\nGitCommit: %s\nBuildTime: %s\nGoVersion: %s",
		v.Version, v.GitCommit, v.BuildTime, v.GoVersion)
}
