package main

import (
	"github.com/wentf9/mirrorup/cmd"

	_ "github.com/wentf9/mirrorup/pkg/session/ftp"
	_ "github.com/wentf9/mirrorup/pkg/session/local"
	_ "github.com/wentf9/mirrorup/pkg/session/sftp"
)

func main() {
	cmd.Execute()
}
