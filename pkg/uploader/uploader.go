// Package uploader 把本地文件或目录树同步到远程会话,支持断点续传和协作式中止。
//
// Uploader 同一时刻只允许一个 Upload 在执行,Abort 可以从任意 goroutine 调用。
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wentf9/mirrorup/pkg/logger"
	"github.com/wentf9/mirrorup/pkg/models"
	"github.com/wentf9/mirrorup/pkg/retry"
	"github.com/wentf9/mirrorup/pkg/session"
)

const DefaultChunkSize = 32 * 1024

// State 控制器生命周期
type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateConnected
	StateUploading
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateConnected:
		return "connected"
	case StateUploading:
		return "uploading"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// OversizePolicy 远程文件比本地文件大时的处理方式
type OversizePolicy int

const (
	// OversizeReupload 从 0 开始重新上传并覆盖远程文件
	OversizeReupload OversizePolicy = iota
	// OversizeFail 返回 ErrSizeMismatch
	OversizeFail
)

func (p OversizePolicy) String() string {
	if p == OversizeFail {
		return "fail"
	}
	return "reupload"
}

func ParseOversizePolicy(s string) (OversizePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reupload":
		return OversizeReupload, nil
	case "fail":
		return OversizeFail, nil
	}
	return OversizeReupload, fmt.Errorf("unknown oversize policy %q", s)
}

var (
	errNotConnected = errors.New("not connected")
	errBusy         = errors.New("another upload is in progress")
)

type Uploader struct {
	mu       sync.Mutex
	state    State
	endpoint models.Endpoint
	sess     session.Session

	abort abortFlag

	// 上传进行中时有效,Disconnect 用它停止上传
	cancelJob         context.CancelFunc
	disconnectPending bool

	factory   session.Factory
	chunkSize int
	retry     retry.Config
	oversize  OversizePolicy
	benign    BenignCompletion
	reporter  Reporter
	log       *slog.Logger
}

type Option func(*Uploader)

func WithChunkSize(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.chunkSize = n
		}
	}
}

// WithRetry 设置目录列表的重试策略,Attempts 固定为 4
func WithRetry(cfg retry.Config) Option {
	return func(u *Uploader) {
		cfg.Attempts = listAttempts
		u.retry = cfg
	}
}

func WithOversizePolicy(p OversizePolicy) Option {
	return func(u *Uploader) { u.oversize = p }
}

// WithBenignCompletion 替换完成误报的匹配片段,不传参数表示关闭
func WithBenignCompletion(markers ...string) Option {
	return func(u *Uploader) { u.benign = NewBenignCompletion(markers...) }
}

func WithSessionFactory(f session.Factory) Option {
	return func(u *Uploader) {
		if f != nil {
			u.factory = f
		}
	}
}

func WithReporter(r Reporter) Option {
	return func(u *Uploader) {
		if r != nil {
			u.reporter = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(u *Uploader) { u.log = l }
}

// WithSettings 应用配置文件中的传输参数
func WithSettings(s models.TransferSettings) Option {
	return func(u *Uploader) {
		WithChunkSize(s.ChunkSize)(u)
		if s.RetryInitialDelay > 0 {
			u.retry.InitialDelay = s.RetryInitialDelay
		}
		if s.RetryMaxDelay > 0 {
			u.retry.MaxDelay = s.RetryMaxDelay
		}
		if p, err := ParseOversizePolicy(s.OversizePolicy); err == nil {
			u.oversize = p
		}
		switch {
		case s.DisableBenignCompletion:
			u.benign = BenignCompletion{}
		case len(s.BenignCompletion) > 0:
			u.benign = NewBenignCompletion(s.BenignCompletion...)
		}
	}
}

func New(opts ...Option) *Uploader {
	u := &Uploader{
		factory:   session.New,
		chunkSize: DefaultChunkSize,
		retry:     retry.DefaultConfig(),
		benign:    NewBenignCompletion(DefaultBenignMarkers...),
		reporter:  nopReporter{},
	}
	u.retry.Attempts = listAttempts
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *Uploader) logger() *slog.Logger {
	if u.log != nil {
		return u.log
	}
	return logger.Logger.Logger
}

func (u *Uploader) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Configure 记录端点,不做任何网络 I/O
func (u *Uploader) Configure(ep models.Endpoint) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == StateConnected || u.state == StateUploading {
		return newError(ErrConfig, "configure", ep.String(), errors.New("disconnect before reconfiguring"))
	}
	if ep.Scheme == "" {
		return newError(ErrConfig, "configure", "", errors.New("scheme is required"))
	}
	sess, err := u.factory(ep)
	if err != nil {
		return newError(ErrConfig, "configure", ep.String(), err)
	}
	u.endpoint = ep
	u.sess = sess
	u.state = StateConfigured
	return nil
}

// Connect 建立会话、登录并进入远程根目录,失败时会先拆除会话
func (u *Uploader) Connect(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch u.state {
	case StateUnconfigured:
		return newError(ErrConfig, "connect", "", errors.New("not configured"))
	case StateConnected:
		return nil
	case StateUploading:
		return newError(ErrConnection, "connect", u.endpoint.String(), errBusy)
	}

	ep := u.endpoint
	if u.sess == nil {
		sess, err := u.factory(ep)
		if err != nil {
			return newError(ErrConfig, "connect", ep.String(), err)
		}
		u.sess = sess
	}
	sess := u.sess
	log := u.logger().With("endpoint", ep.String())

	fail := func(kind error, err error) error {
		if derr := sess.Disconnect(); derr != nil {
			log.Debug("teardown after failed connect", "error", derr)
		}
		u.sess = nil
		u.state = StateDisconnected
		return newError(kind, "connect", ep.String(), err)
	}

	log.Debug("connecting")
	if err := sess.Connect(ctx); err != nil {
		return fail(ErrConnection, err)
	}
	if err := sess.Login(ep.User, ep.Password); err != nil {
		var re *session.ReplyError
		if errors.As(err, &re) && !re.PositiveCompletion() {
			return fail(ErrInvalidLogin, err)
		}
		return fail(ErrConnection, err)
	}
	if ep.RemotePath != "" {
		if err := sess.ChangeDir(ep.RemotePath); err != nil {
			return fail(ErrConnection, fmt.Errorf("change to base path %s: %w", ep.RemotePath, err))
		}
	}
	log.Info("connected", "system", sess.SystemType())
	u.state = StateConnected
	return nil
}

// Disconnect 尽力断开,错误只记录日志。
// 上传进行中时会取消上传并立即返回,会话在 Upload 返回前关闭。
func (u *Uploader) Disconnect() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == StateUploading {
		u.disconnectPending = true
		u.cancelJob()
		return
	}
	u.closeSession()
}

// closeSession 调用方必须持有 u.mu
func (u *Uploader) closeSession() {
	if u.sess != nil {
		if err := u.sess.Disconnect(); err != nil {
			u.logger().Debug("disconnect", "endpoint", u.endpoint.String(), "error", err)
		}
		u.sess = nil
	}
	if u.state != StateUnconfigured {
		u.state = StateDisconnected
	}
}

// Abort 请求中止当前文件的传输,不等待传输真正停止
func (u *Uploader) Abort() {
	u.abort.request()
	u.logger().Info("abort requested")
}

// Upload 上传文件或目录。目录会在远程根目录下创建同名目录;
// 路径以分隔符结尾时只上传目录内容,与 rsync 的约定一致。
func (u *Uploader) Upload(ctx context.Context, localPath string, l Listener) error {
	u.mu.Lock()
	switch u.state {
	case StateConnected:
	case StateUploading:
		u.mu.Unlock()
		return newError(ErrTransfer, "upload", localPath, errBusy)
	default:
		u.mu.Unlock()
		return newError(ErrTransfer, "upload", localPath, errNotConnected)
	}
	u.state = StateUploading
	ctx, cancel := context.WithCancel(ctx)
	u.cancelJob = cancel
	j := &job{
		u:    u,
		sess: u.sess,
		l:    l,
		log:  u.logger().With("endpoint", u.endpoint.String()),
	}
	if j.l == nil {
		j.l = nopListener{}
	}
	base := u.endpoint.RemotePath
	if base == "" {
		base = "."
	}
	u.mu.Unlock()

	defer func() {
		cancel()
		u.mu.Lock()
		u.cancelJob = nil
		if u.disconnectPending {
			u.disconnectPending = false
			u.closeSession()
		} else if u.state == StateUploading {
			u.state = StateConnected
		}
		u.mu.Unlock()
	}()

	start := time.Now()
	err := asTransferError("upload", localPath, j.run(ctx, localPath, base))
	u.reporter.UploadDone(err, time.Since(start))
	if err != nil {
		j.log.Error("upload failed", "path", localPath, "kind", KindOf(err), "error", err)
		return err
	}
	j.log.Info("upload finished", "path", localPath, "elapsed", time.Since(start))
	return nil
}

// job 一次 Upload 调用的上下文
type job struct {
	u    *Uploader
	sess session.Session
	l    Listener
	log  *slog.Logger
}

func (j *job) run(ctx context.Context, localPath, base string) error {
	contentsOnly := strings.HasSuffix(localPath, "/") || strings.HasSuffix(localPath, string(os.PathSeparator))
	// "."、".." 这类相对路径要换成真实的目录名
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return newError(ErrTransfer, "stat", localPath, err)
	}
	// 根目录没有名字,只能上传其内容
	if filepath.Dir(abs) == abs {
		contentsOnly = true
	}
	info, err := os.Stat(abs)
	if err != nil {
		return newError(ErrTransfer, "stat", localPath, err)
	}
	remote, err := j.list(ctx, base)
	if err != nil {
		return err
	}
	switch {
	case !info.IsDir():
		return j.transferFile(ctx, abs, info, remote, base)
	case contentsOnly:
		return j.syncChildren(ctx, abs, remote, base)
	default:
		return j.syncDirectory(ctx, abs, remote, base)
	}
}

func joinRemote(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return path.Join(dir, name)
}
