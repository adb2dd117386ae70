// Package sftp 基于 github.com/pkg/sftp 实现远程会话
//
// SFTP 协议没有服务端工作目录,这里在客户端维护 cwd,
// 断点续传通过对远程句柄 Seek 实现。
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"

	"github.com/pkg/sftp"
	"github.com/wentf9/mirrorup/pkg/models"
	"github.com/wentf9/mirrorup/pkg/session"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// 认证失败时对齐 FTP 的 530 应答
const replyNotLoggedIn = 530

func init() {
	session.Register(models.SchemeSFTP, New)
}

type Session struct {
	ep        models.Endpoint
	conn      net.Conn
	sshClient *ssh.Client
	client    *sftp.Client
	cwd       string
	restart   uint64
	pending   *sftp.File
}

// New 加密是 SSH 的固有属性,encrypt 开关在这里不产生影响
func New(ep models.Endpoint) (session.Session, error) {
	if ep.Host == "" {
		return nil, errors.New("sftp: host is required")
	}
	return &Session{ep: ep}, nil
}

// Connect 只建立 TCP 连接,SSH 握手放在 Login 中完成
func (s *Session) Connect(ctx context.Context) error {
	d := &net.Dialer{Timeout: s.ep.DialTimeout()}
	conn, err := d.DialContext(ctx, "tcp", s.ep.Address())
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.ep.Address(), err)
	}
	s.conn = conn
	return nil
}

func (s *Session) Login(user, password string) error {
	if s.conn == nil {
		return errors.New("sftp: not connected")
	}
	cfg, err := s.clientConfig(user, password)
	if err != nil {
		return err
	}
	addr := s.ep.Address()
	ncc, chans, reqs, err := ssh.NewClientConn(s.conn, addr, cfg)
	if err != nil {
		if strings.Contains(err.Error(), "unable to authenticate") {
			return &session.ReplyError{Code: replyNotLoggedIn, Msg: "ssh authentication failed", Err: err}
		}
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	s.sshClient = ssh.NewClient(ncc, chans, reqs)

	client, err := sftp.NewClient(s.sshClient)
	if err != nil {
		s.sshClient.Close()
		s.sshClient = nil
		return fmt.Errorf("failed to create sftp subsystem: %w", err)
	}
	s.client = client
	if s.cwd, err = client.Getwd(); err != nil || s.cwd == "" {
		s.cwd = "/"
	}
	return nil
}

func (s *Session) clientConfig(user, password string) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	if s.ep.KeyPath != "" {
		keyBytes, err := os.ReadFile(expandHomeDir(s.ep.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		var signer ssh.Signer
		if s.ep.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(s.ep.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if password != "" {
		methods = append(methods, ssh.Password(password))
	}
	if len(methods) == 0 {
		return nil, errors.New("sftp: neither password nor key_path configured")
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if s.ep.KnownHosts != "" {
		cb, err := knownhosts.New(expandHomeDir(s.ep.KnownHosts))
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKey = cb
	}
	return &ssh.ClientConfig{
		User:            user,
		Auth:            methods,
		HostKeyCallback: hostKey,
		Timeout:         s.ep.DialTimeout(),
	}, nil
}

func (s *Session) SystemType() string { return "UNIX" }

func (s *Session) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(s.cwd, p)
}

func (s *Session) ChangeDir(p string) error {
	target := s.resolve(p)
	info, err := s.client.Stat(target)
	if err != nil {
		return fmt.Errorf("cd %s: %w", target, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cd %s: not a directory", target)
	}
	s.cwd = target
	return nil
}

func (s *Session) ChangeDirToParent() error {
	s.cwd = path.Dir(s.cwd)
	return nil
}

func (s *Session) MakeDir(name string) error {
	return s.client.Mkdir(s.resolve(name))
}

// List SFTP 返回结构化属性,两种模式结果相同
func (s *Session) List(session.ListMode) ([]session.Entry, error) {
	infos, err := s.client.ReadDir(s.cwd)
	if err != nil {
		return nil, err
	}
	out := make([]session.Entry, 0, len(infos))
	for _, fi := range infos {
		out = append(out, session.Entry{Name: fi.Name(), Size: uint64(fi.Size()), IsDir: fi.IsDir()})
	}
	return out, nil
}

func (s *Session) SetRestartOffset(offset uint64) {
	s.restart = offset
}

func (s *Session) OpenWriteStream(name string) (io.Writer, error) {
	if s.pending != nil {
		return nil, session.ErrTransferInProgress
	}
	offset := s.restart
	s.restart = 0

	flags := os.O_WRONLY | os.O_CREATE
	if offset == 0 {
		flags |= os.O_TRUNC
	}
	f, err := s.client.OpenFile(s.resolve(name), flags)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek remote %s to %d: %w", name, offset, err)
		}
	}
	s.pending = f
	return f, nil
}

func (s *Session) CompletePendingTransfer() error {
	f := s.pending
	if f == nil {
		return session.ErrNoPendingTransfer
	}
	s.pending = nil
	return f.Close()
}

func (s *Session) AbortPendingTransfer() error {
	f := s.pending
	if f == nil {
		return nil
	}
	s.pending = nil
	return f.Close()
}

func (s *Session) Disconnect() error {
	_ = s.AbortPendingTransfer()
	var err error
	if s.client != nil {
		err = s.client.Close()
		s.client = nil
	}
	if s.sshClient != nil {
		if cerr := s.sshClient.Close(); err == nil {
			err = cerr
		}
		s.sshClient = nil
	} else if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	s.conn = nil
	return err
}

func expandHomeDir(p string) string {
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + p[1:]
		}
	}
	return p
}
