package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wentf9/mirrorup/cmd/utils"
	"github.com/wentf9/mirrorup/global"
	"github.com/wentf9/mirrorup/pkg/config"
	"github.com/wentf9/mirrorup/pkg/models"
	"github.com/wentf9/mirrorup/pkg/runner"
)

// ConnOptions 覆盖端点连接参数的命令行选项
type ConnOptions struct {
	User        string
	Password    string
	KeyFile     string
	KeyPass     string
	KnownHosts  string
	SystemType  string
	Encrypt     bool
	DisableEPSV bool
	Timeout     time.Duration
}

func (o *ConnOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.User, "user", "u", "", "登录用户名")
	cmd.Flags().StringVarP(&o.Password, "password", "P", "", "登录密码")
	cmd.Flags().StringVarP(&o.KeyFile, "key", "i", "", "SFTP 私钥文件路径")
	cmd.Flags().StringVarP(&o.KeyPass, "key_pass", "w", "", "SFTP 私钥密码")
	cmd.Flags().StringVar(&o.KnownHosts, "known-hosts", "", "SFTP known_hosts 文件,为空时不校验主机密钥")
	cmd.Flags().StringVar(&o.SystemType, "system-type", "", "覆盖服务端系统类型,影响目录列表方式")
	cmd.Flags().BoolVarP(&o.Encrypt, "encrypt", "e", false, "FTP 使用隐式 TLS")
	cmd.Flags().BoolVar(&o.DisableEPSV, "disable-epsv", false, "FTP 被动模式只使用 PASV")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", 0, "连接和数据通道超时 (默认 2m)")
	cmd.MarkFlagsMutuallyExclusive("password", "key")
}

// Apply 命令行中显式设置的选项覆盖端点配置
func (o *ConnOptions) Apply(cmd *cobra.Command, ep *models.Endpoint) {
	changed := cmd.Flags().Changed
	if changed("user") {
		ep.User = o.User
	}
	if changed("password") {
		ep.Password = o.Password
	}
	if changed("key") {
		ep.KeyPath = o.KeyFile
	}
	if changed("key_pass") {
		ep.Passphrase = o.KeyPass
	}
	if changed("known-hosts") {
		ep.KnownHosts = o.KnownHosts
	}
	if changed("system-type") {
		ep.SystemType = o.SystemType
	}
	if changed("encrypt") {
		ep.Encrypt = o.Encrypt
	}
	if changed("disable-epsv") {
		ep.DisableEPSV = o.DisableEPSV
	}
	if changed("timeout") {
		ep.Timeout = o.Timeout
	}
}

// resolveTarget input 可以是已保存的端点名称、[user@]host[:port] 或完整地址
func resolveTarget(provider *config.Provider, input string) (runner.Target, error) {
	if name := provider.Find(input); name != "" {
		ep, _ := provider.Get(name)
		return runner.Target{Name: name, Endpoint: ep}, nil
	}
	ep, err := utils.ParseTarget(input)
	if err != nil {
		return runner.Target{}, err
	}
	return runner.Target{Name: input, Endpoint: ep}, nil
}

// fillCredentials 补全缺省用户名,interactive 且在终端下时提示输入密码
func fillCredentials(ep *models.Endpoint, interactive bool) error {
	switch ep.Scheme {
	case models.SchemeLocal:
		return nil
	case models.SchemeFTP:
		if ep.User == "" {
			ep.User, ep.Password = "anonymous", "anonymous@"
			return nil
		}
	case models.SchemeSFTP:
		if ep.User == "" {
			ep.User = utils.GetCurrentUser()
		}
		if ep.KeyPath != "" {
			return nil
		}
	}
	if ep.Password != "" || !interactive || !global.IsTerminal {
		return nil
	}
	pass, err := utils.ReadPasswordFromTerminal(fmt.Sprintf("请输入 %s@%s 的密码: ", ep.User, ep.Host))
	if err != nil {
		return err
	}
	ep.Password = pass
	return nil
}
