package global

import (
	"os"

	"golang.org/x/term"
)

var (
	// IsTerminal 标准输入是否为终端,false 表示管道或重定向,不能交互式读取密码
	IsTerminal = term.IsTerminal(int(os.Stdin.Fd()))
	// IsStderrTerminal 标准错误是否为终端,决定是否显示进度条
	IsStderrTerminal = term.IsTerminal(int(os.Stderr.Fd()))
)
