// Package version 暴露构建期注入的版本指纹，供启动日志与 /healthz 使用。
package version

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// 这些变量由构建时 -ldflags -X 覆盖；未注入时保持开发默认值。
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func Info() BuildInfo {
	return BuildInfo{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
	}
}
