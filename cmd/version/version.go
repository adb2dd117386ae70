package version

import "fmt"

// 这些变量在编译时由 ldflags 覆盖:
// go build -ldflags "-X github.com/wentf9/mirrorup/cmd/version.Version=v1.2.0"
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String 单行版本信息,用于 MCP 服务端标识
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, BuildTime)
}

// PrintFullVersion 打印详细版本信息
func PrintFullVersion() {
	fmt.Printf("mirrorup %s\n", Version)
	fmt.Printf("Git Commit: %s\n", Commit)
	fmt.Printf("Build Time: %s\n", BuildTime)
}
