package ftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/wentf9/mirrorup/pkg/models"
)

// testServer 单连接的内存 FTP 服务端,只实现会话用到的命令
type testServer struct {
	ln net.Listener

	mu       sync.Mutex
	ctrl     net.Conn
	cwd      string
	files    map[string][]byte
	dirs     map[string]bool
	commands []string
	rest     int
	data     net.Listener
	// noSize 为 true 时 SIZE 返回 502
	noSize bool
	// storReply 指定文件 STOR 完成后的应答行,默认 226
	storReply map[string]string
	done      chan struct{}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &testServer{
		ln:        ln,
		cwd:       "/",
		files:     make(map[string][]byte),
		dirs:      map[string]bool{"/": true},
		storReply: make(map[string]string),
		done:      make(chan struct{}),
	}
	go s.serve()
	t.Cleanup(func() {
		ln.Close()
		s.mu.Lock()
		if s.ctrl != nil {
			s.ctrl.Close()
		}
		s.mu.Unlock()
		<-s.done
	})
	return s
}

func (s *testServer) put(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path.Join("/", name)] = data
}

func (s *testServer) mkdir(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[path.Join("/", name)] = true
}

func (s *testServer) disableSize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noSize = true
}

func (s *testServer) replyAfterStor(name, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storReply[name] = line
}

func (s *testServer) file(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[path.Join("/", name)]
	return b, ok
}

// received 返回按顺序收到的命令行
func (s *testServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// dial 返回已登录的会话
func (s *testServer) dial(t *testing.T) *Session {
	t.Helper()
	host, port, _ := net.SplitHostPort(s.ln.Addr().String())
	p, _ := strconv.Atoi(port)
	sess, err := New(models.Endpoint{Scheme: models.SchemeFTP, Host: host, Port: p, User: "agent", Password: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fs := sess.(*Session)
	if err := fs.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := fs.Login("agent", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	t.Cleanup(func() { fs.Disconnect() })
	return fs
}

func (s *testServer) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.ctrl = conn
	s.mu.Unlock()
	defer conn.Close()

	tp := textproto.NewConn(conn)
	reply := func(format string, args ...any) {
		tp.PrintfLine(format, args...)
	}
	reply("220 test server ready")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd, arg, _ := strings.Cut(line, " ")
		cmd = strings.ToUpper(cmd)
		s.mu.Lock()
		s.commands = append(s.commands, line)
		s.mu.Unlock()

		switch cmd {
		case "USER":
			reply("331 password required")
		case "PASS":
			reply("230 logged in")
		case "FEAT":
			reply("502 FEAT not implemented")
		case "TYPE":
			reply("200 type set")
		case "EPSV":
			port, err := s.listenData()
			if err != nil {
				reply("425 %v", err)
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", port)
		case "REST":
			n, err := strconv.Atoi(arg)
			if err != nil {
				reply("501 bad offset")
				continue
			}
			s.mu.Lock()
			s.rest = n
			s.mu.Unlock()
			reply("350 restarting at %d", n)
		case "STOR":
			s.stor(arg, reply)
		case "LIST", "NLST":
			s.list(cmd == "LIST", reply)
		case "SIZE":
			s.size(arg, reply)
		case "CWD":
			s.mu.Lock()
			p := s.resolve(arg)
			ok := s.dirs[p]
			if ok {
				s.cwd = p
			}
			s.mu.Unlock()
			if ok {
				reply("250 directory changed")
			} else {
				reply("550 %s: no such directory", arg)
			}
		case "CDUP":
			s.mu.Lock()
			s.cwd = path.Dir(s.cwd)
			s.mu.Unlock()
			reply("250 directory changed")
		case "MKD":
			s.mu.Lock()
			p := s.resolve(arg)
			exists := s.dirs[p]
			s.dirs[p] = true
			s.mu.Unlock()
			if exists {
				reply("550 %s: file exists", arg)
			} else {
				reply("257 %q created", p)
			}
		case "NOOP":
			reply("200 ok")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("500 %s not understood", cmd)
		}
	}
}

func (s *testServer) resolve(name string) string {
	if strings.HasPrefix(name, "/") {
		return path.Clean(name)
	}
	return path.Join(s.cwd, name)
}

func (s *testServer) listenData() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.data = ln
	s.mu.Unlock()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// acceptData 接受客户端预先建立的数据连接
func (s *testServer) acceptData() (net.Conn, error) {
	s.mu.Lock()
	ln := s.data
	s.data = nil
	s.mu.Unlock()
	if ln == nil {
		return nil, fmt.Errorf("no data connection")
	}
	defer ln.Close()
	return ln.Accept()
}

func (s *testServer) stor(name string, reply func(string, ...any)) {
	reply("150 ok to send data")
	conn, err := s.acceptData()
	if err != nil {
		reply("425 %v", err)
		return
	}
	data, _ := io.ReadAll(conn)
	conn.Close()

	s.mu.Lock()
	p := s.resolve(name)
	old := s.files[p]
	if s.rest > 0 && s.rest <= len(old) {
		data = append(append([]byte(nil), old[:s.rest]...), data...)
	}
	s.rest = 0
	s.files[p] = data
	r, custom := s.storReply[path.Base(p)]
	s.mu.Unlock()

	if custom {
		reply("%s", r)
		return
	}
	reply("226 transfer complete")
}

func (s *testServer) list(long bool, reply func(string, ...any)) {
	s.mu.Lock()
	var lines []string
	if long {
		lines = append(lines, "drwxr-xr-x    2 ftp      ftp          4096 Jan 29 10:29 .")
		lines = append(lines, "drwxr-xr-x    2 ftp      ftp          4096 Jan 29 10:29 ..")
	}
	for p := range s.dirs {
		if p != "/" && path.Dir(p) == s.cwd {
			if long {
				lines = append(lines, fmt.Sprintf("drwxr-xr-x    2 ftp      ftp          4096 Jan 29 10:29 %s", path.Base(p)))
			} else {
				lines = append(lines, path.Base(p))
			}
		}
	}
	for p, b := range s.files {
		if path.Dir(p) == s.cwd {
			if long {
				lines = append(lines, fmt.Sprintf("-rw-r--r--    1 ftp      ftp      %8d Jan 29 10:29 %s", len(b), path.Base(p)))
			} else {
				lines = append(lines, path.Base(p))
			}
		}
	}
	s.mu.Unlock()
	sort.Strings(lines)

	reply("150 here comes the listing")
	conn, err := s.acceptData()
	if err != nil {
		reply("425 %v", err)
		return
	}
	for _, l := range lines {
		io.WriteString(conn, l+"\r\n")
	}
	conn.Close()
	reply("226 directory send ok")
}

func (s *testServer) size(name string, reply func(string, ...any)) {
	s.mu.Lock()
	noSize := s.noSize
	b, ok := s.files[s.resolve(name)]
	s.mu.Unlock()
	switch {
	case noSize:
		reply("502 SIZE not implemented")
	case !ok:
		reply("550 could not get file size")
	default:
		reply("213 %d", len(b))
	}
}
