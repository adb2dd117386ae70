// Package local 把本地目录(如挂载的网络存储)当作远程端使用
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/wentf9/mirrorup/pkg/models"
	"github.com/wentf9/mirrorup/pkg/session"
)

func init() {
	session.Register(models.SchemeLocal, New)
}

type Session struct {
	ep      models.Endpoint
	cwd     string
	restart uint64
	pending *os.File
}

func New(ep models.Endpoint) (session.Session, error) {
	if ep.Encrypt {
		return nil, session.ErrEncryptionUnsupported
	}
	return &Session{ep: ep}, nil
}

func (s *Session) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	s.cwd = wd
	return nil
}

// Login 本地目录没有认证
func (s *Session) Login(user, password string) error { return nil }

func (s *Session) SystemType() string {
	if runtime.GOOS == "windows" {
		return "Windows_NT"
	}
	return "UNIX"
}

func (s *Session) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.cwd, p)
}

func (s *Session) ChangeDir(p string) error {
	target := s.resolve(p)
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("cd %s: not a directory", target)
	}
	s.cwd = target
	return nil
}

func (s *Session) ChangeDirToParent() error {
	s.cwd = filepath.Dir(s.cwd)
	return nil
}

func (s *Session) MakeDir(name string) error {
	return os.Mkdir(s.resolve(name), 0o755)
}

func (s *Session) List(session.ListMode) ([]session.Entry, error) {
	des, err := os.ReadDir(s.cwd)
	if err != nil {
		return nil, err
	}
	out := make([]session.Entry, 0, len(des))
	for _, de := range des {
		info, err := de.Info()
		if err != nil {
			// 列目录与 stat 之间被删除
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, session.Entry{Name: de.Name(), Size: uint64(info.Size()), IsDir: de.IsDir()})
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
	f, err := os.OpenFile(s.resolve(name), flags, 0o644)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
			f.Close()
			return nil, err
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
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
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
	return s.AbortPendingTransfer()
}
