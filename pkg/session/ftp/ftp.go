// Package ftp 基于 github.com/jlaffaye/ftp 实现远程会话
package ftp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"strings"

	"github.com/jlaffaye/ftp"
	"github.com/wentf9/mirrorup/pkg/models"
	"github.com/wentf9/mirrorup/pkg/session"
)

// DefaultSystemType 客户端库不暴露 SYST,未配置时按 UNIX 处理
const DefaultSystemType = "UNIX"

func init() {
	session.Register(models.SchemeFTP, New)
}

type pendingStore struct {
	name string
	pw   *io.PipeWriter
	done chan error
}

// Session 单个 FTP 控制连接
type Session struct {
	ep      models.Endpoint
	conn    *ftp.ServerConn
	restart uint64
	pending *pendingStore
}

func New(ep models.Endpoint) (session.Session, error) {
	if ep.Host == "" {
		return nil, errors.New("ftp: host is required")
	}
	return &Session{ep: ep}, nil
}

// Connect 建立控制连接,数据连接固定使用被动模式
func (s *Session) Connect(ctx context.Context) error {
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(s.ep.DialTimeout()),
	}
	if s.ep.Encrypt {
		opts = append(opts, ftp.DialWithTLS(&tls.Config{ServerName: s.ep.Host}))
	}
	if s.ep.DisableEPSV {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}
	conn, err := ftp.Dial(s.ep.Address(), opts...)
	if err != nil {
		return translate(err)
	}
	s.conn = conn
	return nil
}

// Login 登录成功后客户端库会切换到二进制传输模式
func (s *Session) Login(user, password string) error {
	if s.conn == nil {
		return errors.New("ftp: not connected")
	}
	return translate(s.conn.Login(user, password))
}

func (s *Session) SystemType() string {
	if s.ep.SystemType != "" {
		return s.ep.SystemType
	}
	return DefaultSystemType
}

func (s *Session) ChangeDir(p string) error {
	return translate(s.conn.ChangeDir(p))
}

func (s *Session) ChangeDirToParent() error {
	return translate(s.conn.ChangeDirToParent())
}

func (s *Session) MakeDir(name string) error {
	return translate(s.conn.MakeDir(name))
}

// List 严格模式解析 LIST/MLSD 输出,宽松模式使用 NLST 加逐个 SIZE
func (s *Session) List(mode session.ListMode) ([]session.Entry, error) {
	if mode == session.ListStrict {
		return s.listParsed()
	}
	return s.listNames()
}

func (s *Session) listParsed() ([]session.Entry, error) {
	entries, err := s.conn.List("")
	if err != nil {
		return nil, translate(err)
	}
	out := make([]session.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, session.Entry{
			Name:  e.Name,
			Size:  e.Size,
			IsDir: e.Type == ftp.EntryTypeFolder,
		})
	}
	return out, nil
}

func (s *Session) listNames() ([]session.Entry, error) {
	names, err := s.conn.NameList("")
	if err != nil {
		return nil, translate(err)
	}
	out := make([]session.Entry, 0, len(names))
	for _, n := range names {
		name := path.Base(strings.TrimSpace(n))
		if name == "." || name == ".." || name == "/" || name == "" {
			continue
		}
		entry := session.Entry{Name: name}
		// SIZE 失败时大小未知(目录、服务端不支持 SIZE),按 0 处理,
		// NLST 无法区分文件和目录
		if size, err := s.conn.FileSize(name); err == nil && size > 0 {
			entry.Size = uint64(size)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Session) SetRestartOffset(offset uint64) {
	s.restart = offset
}

// OpenWriteStream 通过管道把写入转交给 STOR(带 REST 偏移)
func (s *Session) OpenWriteStream(name string) (io.Writer, error) {
	if s.pending != nil {
		return nil, session.ErrTransferInProgress
	}
	offset := s.restart
	s.restart = 0

	pr, pw := io.Pipe()
	p := &pendingStore{name: name, pw: pw, done: make(chan error, 1)}
	go func() {
		err := s.conn.StorFrom(name, pr, offset)
		if err != nil {
			pr.CloseWithError(err)
		} else {
			pr.Close()
		}
		p.done <- err
	}()
	s.pending = p
	return pw, nil
}

func (s *Session) CompletePendingTransfer() error {
	p := s.pending
	if p == nil {
		return session.ErrNoPendingTransfer
	}
	s.pending = nil
	p.pw.Close()
	if err := <-p.done; err != nil {
		return fmt.Errorf("stor %s: %w", p.name, translate(err))
	}
	return nil
}

var errAborted = errors.New("transfer aborted by client")

// AbortPendingTransfer 等待 STOR 返回,保证控制连接仍可继续使用
func (s *Session) AbortPendingTransfer() error {
	p := s.pending
	if p == nil {
		return nil
	}
	s.pending = nil
	p.pw.CloseWithError(errAborted)
	<-p.done
	return nil
}

func (s *Session) Disconnect() error {
	if s.conn == nil {
		return nil
	}
	_ = s.AbortPendingTransfer()
	err := s.conn.Quit()
	s.conn = nil
	return err
}

// translate 把客户端库的应答错误转换为 session 包的错误类型
func translate(err error) error {
	if err == nil {
		return nil
	}
	var te *textproto.Error
	if errors.As(err, &te) {
		return &session.ReplyError{Code: te.Code, Msg: te.Msg, Err: err}
	}
	var pe textproto.ProtocolError
	if errors.As(err, &pe) {
		return &session.MalformedReplyError{Reply: string(pe)}
	}
	return err
}
