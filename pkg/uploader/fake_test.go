package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wentf9/mirrorup/pkg/models"
	"github.com/wentf9/mirrorup/pkg/retry"
	"github.com/wentf9/mirrorup/pkg/session"
)

// fakeNode 内存中的远程文件或目录
type fakeNode struct {
	dir      bool
	data     []byte
	children map[string]*fakeNode
}

func newDir() *fakeNode { return &fakeNode{dir: true, children: map[string]*fakeNode{}} }

// fakeSession 内存实现的 session.Session,记录调用并可注入错误
type fakeSession struct {
	root    *fakeNode
	cwd     []string
	sys     string
	restart uint64
	pending *fakeWriter

	connectErr  error
	loginErr    error
	completeErr error
	// listFailures 接下来多少次 List 调用失败
	listFailures int
	// mkdirRace MakeDir 返回错误,但目录已被"别人"创建
	mkdirRace bool
	// mkdirDenied MakeDir 返回错误且不创建目录
	mkdirDenied bool
	// writeHook 每次写入前调用,可用来阻塞传输
	writeHook func()

	ops         []string
	listCalls   []string
	modes       []session.ListMode
	written     uint64
	aborts      int
	disconnects int
}

func newFakeSession() *fakeSession {
	root := newDir()
	root.children["base"] = newDir()
	return &fakeSession{root: root, sys: "UNIX Type: L8"}
}

func (s *fakeSession) cwdPath() string { return "/" + strings.Join(s.cwd, "/") }

func (s *fakeSession) node(parts []string) *fakeNode {
	n := s.root
	for _, p := range parts {
		if n == nil || !n.dir {
			return nil
		}
		n = n.children[p]
	}
	return n
}

func (s *fakeSession) current() *fakeNode { return s.node(s.cwd) }

// put 在 /base 下放置文件,路径用 / 分隔
func (s *fakeSession) put(p string, data []byte) {
	parts := strings.Split(p, "/")
	n := s.root.children["base"]
	for _, d := range parts[:len(parts)-1] {
		child, ok := n.children[d]
		if !ok {
			child = newDir()
			n.children[d] = child
		}
		n = child
	}
	n.children[parts[len(parts)-1]] = &fakeNode{data: append([]byte(nil), data...)}
}

// get 读取 /base 下的文件
func (s *fakeSession) get(p string) ([]byte, bool) {
	n := s.node(append([]string{"base"}, strings.Split(p, "/")...))
	if n == nil || n.dir {
		return nil, false
	}
	return n.data, true
}

func (s *fakeSession) Connect(ctx context.Context) error { return s.connectErr }

func (s *fakeSession) Login(user, password string) error { return s.loginErr }

func (s *fakeSession) SystemType() string { return s.sys }

func (s *fakeSession) ChangeDir(p string) error {
	target := append([]string(nil), s.cwd...)
	if strings.HasPrefix(p, "/") {
		target = nil
	}
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
		case "..":
			if len(target) > 0 {
				target = target[:len(target)-1]
			}
		default:
			target = append(target, part)
		}
	}
	n := s.node(target)
	if n == nil || !n.dir {
		return &session.ReplyError{Code: 550, Msg: p + ": No such file or directory"}
	}
	s.ops = append(s.ops, "cd "+p)
	s.cwd = target
	return nil
}

func (s *fakeSession) ChangeDirToParent() error {
	s.ops = append(s.ops, "cd ..")
	if len(s.cwd) > 0 {
		s.cwd = s.cwd[:len(s.cwd)-1]
	}
	return nil
}

func (s *fakeSession) MakeDir(name string) error {
	cur := s.current()
	switch {
	case s.mkdirDenied:
		return &session.ReplyError{Code: 550, Msg: "Permission denied"}
	case s.mkdirRace:
		cur.children[name] = newDir()
		return &session.ReplyError{Code: 550, Msg: "File exists"}
	}
	if _, ok := cur.children[name]; ok {
		return &session.ReplyError{Code: 550, Msg: "File exists"}
	}
	s.ops = append(s.ops, "mkdir "+name)
	cur.children[name] = newDir()
	return nil
}

func (s *fakeSession) List(mode session.ListMode) ([]session.Entry, error) {
	s.listCalls = append(s.listCalls, s.cwdPath())
	s.modes = append(s.modes, mode)
	if s.listFailures > 0 {
		s.listFailures--
		return nil, errors.New("425 can't open data connection")
	}
	var out []session.Entry
	for name, n := range s.current().children {
		out = append(out, session.Entry{Name: name, Size: uint64(len(n.data)), IsDir: n.dir})
	}
	return out, nil
}

func (s *fakeSession) SetRestartOffset(offset uint64) { s.restart = offset }

func (s *fakeSession) OpenWriteStream(name string) (io.Writer, error) {
	if s.pending != nil {
		return nil, session.ErrTransferInProgress
	}
	cur := s.current()
	n, ok := cur.children[name]
	if !ok {
		n = &fakeNode{}
		cur.children[name] = n
	}
	if n.dir {
		return nil, &session.ReplyError{Code: 553, Msg: "is a directory"}
	}
	offset := s.restart
	s.restart = 0
	if offset > uint64(len(n.data)) {
		return nil, fmt.Errorf("restart offset %d beyond end of file", offset)
	}
	n.data = n.data[:offset]
	s.ops = append(s.ops, "stor "+name)
	s.pending = &fakeWriter{s: s, n: n}
	return s.pending, nil
}

func (s *fakeSession) CompletePendingTransfer() error {
	if s.pending == nil {
		return session.ErrNoPendingTransfer
	}
	s.pending = nil
	return s.completeErr
}

func (s *fakeSession) AbortPendingTransfer() error {
	s.pending = nil
	s.aborts++
	return nil
}

func (s *fakeSession) Disconnect() error {
	s.disconnects++
	return nil
}

type fakeWriter struct {
	s *fakeSession
	n *fakeNode
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	if w.s.writeHook != nil {
		w.s.writeHook()
	}
	w.n.data = append(w.n.data, p...)
	w.s.written += uint64(len(p))
	return len(p), nil
}

var testEndpoint = models.Endpoint{Scheme: "fake", Host: "seedbox", User: "u", Password: "p", RemotePath: "/base"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newConnected 返回已连接到 fs 的上传器,块大小 16 字节,重试无等待
func newConnected(t *testing.T, fs *fakeSession, opts ...Option) *Uploader {
	t.Helper()
	base := []Option{
		WithSessionFactory(func(models.Endpoint) (session.Session, error) { return fs, nil }),
		WithRetry(retry.Config{}),
		WithChunkSize(16),
		WithLogger(quietLogger()),
	}
	u := New(append(base, opts...)...)
	if err := u.Configure(testEndpoint); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := u.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return u
}

func content(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i%251)
	}
	return b
}

// writeTree 在临时目录下创建文件,键为相对路径
func writeTree(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for rel, data := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// recorder 记录进度回调
type recorder struct {
	calls   [][3]uint64
	resumes map[string]uint64
	files   []string
	onChunk func()
}

func (r *recorder) OnBytesTransferred(total, chunk, streamSize uint64) {
	r.calls = append(r.calls, [3]uint64{total, chunk, streamSize})
	if r.onChunk != nil {
		r.onChunk()
	}
}

func (r *recorder) OnResume(remotePath string, offset uint64) {
	if r.resumes == nil {
		r.resumes = map[string]uint64{}
	}
	r.resumes[remotePath] = offset
}

func (r *recorder) OnFile(remotePath string, size uint64) {
	r.files = append(r.files, remotePath)
}

func (r *recorder) chunkSum() uint64 {
	var sum uint64
	for _, c := range r.calls {
		sum += c[1]
	}
	return sum
}
