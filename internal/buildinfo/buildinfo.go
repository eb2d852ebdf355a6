// Package buildinfo 提供构建版本信息
// 通过 -ldflags 在构建时注入，未注入时使用默认值
package buildinfo

import "runtime"

var (
	// Version 版本号（如 v1.2.0）
	Version = "dev"

	// GitCommit Git 提交哈希
	GitCommit = "unknown"

	// BuildTime 构建时间（RFC3339）
	BuildTime = "unknown"
)

// GetVersion 返回版本号
func GetVersion() string {
	return Version
}

// GetGitCommit 返回 Git 提交哈希
func GetGitCommit() string {
	return GitCommit
}

// GetBuildTime 返回构建时间
func GetBuildTime() string {
	return BuildTime
}

// GetGoVersion 返回编译使用的 Go 版本
func GetGoVersion() string {
	return runtime.Version()
}
