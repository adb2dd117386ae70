package models

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	SchemeFTP   = "ftp"
	SchemeSFTP  = "sftp"
	SchemeLocal = "file"
)

// DefaultTimeout 控制连接、控制通道和数据通道的超时
const DefaultTimeout = 2 * time.Minute

// Endpoint 定义一个上传目标
type Endpoint struct {
	Scheme     string `yaml:"scheme"` // "ftp", "sftp", "file"
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	User       string `yaml:"user,omitempty"`
	Password   string `yaml:"password,omitempty"`
	KeyPath    string `yaml:"key_path,omitempty"`   // sftp 私钥
	Passphrase string `yaml:"passphrase,omitempty"` // 私钥密码
	KnownHosts string `yaml:"known_hosts,omitempty"` // sftp 主机密钥校验文件
	RemotePath string `yaml:"remote_path,omitempty"`
	Encrypt    bool   `yaml:"encrypt,omitempty"` // ftp 下为隐式 TLS

	// 覆盖服务端 SYST 返回的系统类型,影响目录列表策略
	SystemType  string        `yaml:"system_type,omitempty"`
	DisableEPSV bool          `yaml:"disable_epsv,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// Address 返回 host:port,端口为 0 时使用协议默认端口
func (e Endpoint) Address() string {
	port := e.Port
	if port == 0 {
		switch e.Scheme {
		case SchemeSFTP:
			port = 22
		case SchemeFTP:
			if e.Encrypt {
				port = 990
			} else {
				port = 21
			}
		}
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// DialTimeout 返回生效的超时时间
func (e Endpoint) DialTimeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultTimeout
}

func (e Endpoint) String() string {
	if e.Scheme == SchemeLocal {
		return fmt.Sprintf("%s://%s", e.Scheme, e.RemotePath)
	}
	if e.User != "" {
		return fmt.Sprintf("%s://%s@%s%s", e.Scheme, e.User, e.Address(), e.RemotePath)
	}
	return fmt.Sprintf("%s://%s%s", e.Scheme, e.Address(), e.RemotePath)
}

// TransferSettings 传输引擎的可调参数
type TransferSettings struct {
	ChunkSize         int           `yaml:"chunk_size,omitempty"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay,omitempty"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay,omitempty"`
	OversizePolicy    string        `yaml:"oversize_policy,omitempty"` // "reupload", "fail"
	// 完成应答误报的匹配片段,为空时使用默认值
	BenignCompletion        []string `yaml:"benign_completion,omitempty"`
	DisableBenignCompletion bool     `yaml:"disable_benign_completion,omitempty"`
}
