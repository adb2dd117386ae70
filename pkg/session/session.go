// Package session 定义上传引擎依赖的远程会话能力。
//
// 会话是有状态的单连接:同一时刻只允许一个命令或一个写入流在途,
// 调用方负责串行化访问。
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/wentf9/mirrorup/pkg/models"
)

var (
	// ErrMalformedReply 服务端应答无法解析
	ErrMalformedReply = errors.New("malformed server reply")
	// ErrEncryptionUnsupported 该协议不支持加密开关
	ErrEncryptionUnsupported = errors.New("encryption is not supported by this scheme")
	ErrNoPendingTransfer     = errors.New("no pending transfer")
	ErrTransferInProgress    = errors.New("a transfer is already in progress")
	ErrUnknownScheme         = errors.New("unknown scheme")
)

// Entry 远程目录快照中的一行
type Entry struct {
	Name  string
	Size  uint64
	IsDir bool
}

// ListMode 目录列表策略
type ListMode int

const (
	// ListLenient 通用兜底策略
	ListLenient ListMode = iota
	// ListStrict 按 UNIX 风格严格解析
	ListStrict
)

func (m ListMode) String() string {
	if m == ListStrict {
		return "strict"
	}
	return "lenient"
}

// Session 远程会话
type Session interface {
	Connect(ctx context.Context) error
	Login(user, password string) error
	// SystemType 登录后可用的服务端系统类型提示,如 "UNIX Type: L8"
	SystemType() string
	ChangeDir(path string) error
	ChangeDirToParent() error
	MakeDir(name string) error
	List(mode ListMode) ([]Entry, error)
	// SetRestartOffset 只作用于下一次 OpenWriteStream
	SetRestartOffset(offset uint64)
	OpenWriteStream(name string) (io.Writer, error)
	// CompletePendingTransfer 关闭写入流并等待服务端确认
	CompletePendingTransfer() error
	// AbortPendingTransfer 关闭写入流,不做完成确认
	AbortPendingTransfer() error
	Disconnect() error
}

// ReplyError 控制通道的应答码
type ReplyError struct {
	Code int
	Msg  string
	Err  error
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("server replied %d: %s", e.Code, strings.TrimSpace(e.Msg))
}

func (e *ReplyError) Unwrap() error { return e.Err }

// PositiveCompletion 对应 2xx 应答
func (e *ReplyError) PositiveCompletion() bool {
	return e.Code >= 200 && e.Code < 300
}

// MalformedReplyError 携带无法解析的原始应答文本
type MalformedReplyError struct {
	Reply string
}

func (e *MalformedReplyError) Error() string {
	return ErrMalformedReply.Error() + ": " + e.Reply
}

func (e *MalformedReplyError) Is(target error) bool { return target == ErrMalformedReply }

// ReplyCode 提取错误链中的应答码
func ReplyCode(err error) (int, bool) {
	var re *ReplyError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return 0, false
}

// Factory 根据端点创建会话,不得进行网络 I/O
type Factory func(ep models.Endpoint) (Session, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register 在 init 中注册协议实现
func Register(scheme string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if f == nil {
		panic("session: Register factory is nil")
	}
	if _, dup := factories[scheme]; dup {
		panic("session: Register called twice for scheme " + scheme)
	}
	factories[scheme] = f
}

func New(ep models.Endpoint) (Session, error) {
	mu.RLock()
	f, ok := factories[ep.Scheme]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, ep.Scheme)
	}
	return f(ep)
}

// Schemes 返回已注册的协议
func Schemes() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for s := range factories {
		out = append(out, s)
	}
	return out
}
