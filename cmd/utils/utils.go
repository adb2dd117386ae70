package utils

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/term"
)

const (
	ConfigDirName  = ".mirrorup"
	ConfigFileName = "config.yaml"
	ConfigKeyName  = "secret.key"
)

// GetConfigFilePath 返回默认的配置文件和密钥文件路径
func GetConfigFilePath() (configPath, keyPath string) {
	home, err := os.UserHomeDir()
	if err != nil {
		return ConfigFileName, ConfigKeyName
	}
	dir := filepath.Join(home, ConfigDirName)
	return filepath.Join(dir, ConfigFileName), filepath.Join(dir, ConfigKeyName)
}

// KeyPathFor 密钥文件与配置文件放在同一目录
func KeyPathFor(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ConfigKeyName)
}

func GetCurrentUser() string {
	currentUser, err := user.Current()
	if err != nil {
		return ""
	}
	return currentUser.Username
}

// ParsePort 解析端口字符串,空串或非法值返回 0
func ParsePort(input string) int {
	if input == "" {
		return 0
	}
	port, err := strconv.ParseUint(input, 10, 16)
	if err != nil {
		return 0
	}
	return int(port)
}

// ReadPasswordFromTerminal 从终端安全地读取密码
func ReadPasswordFromTerminal(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // ReadPassword 不会回显换行
	if err != nil {
		return "", err
	}
	return string(password), nil
}
