package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/wentf9/mirrorup/cmd/version"
	"github.com/wentf9/mirrorup/pkg/config"
	"github.com/wentf9/mirrorup/pkg/logger"
	"github.com/wentf9/mirrorup/pkg/metrics"
	"github.com/wentf9/mirrorup/pkg/session"
	"github.com/wentf9/mirrorup/pkg/uploader"
	"github.com/wentf9/mirrorup/pkg/utils/concurrent"
)

func NewCmdMCP() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "以 MCP 服务端方式运行 (stdio)",
		Long: `以 Model Context Protocol 服务端方式运行,通过标准输入输出通信。
提供 list_endpoints、upload、abort 三个工具,只能使用配置文件中保存的端点。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := openConfig()
			if err != nil {
				return err
			}
			svc := newMCPService(config.NewProvider(cfg))

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				svc.metrics = metrics.New("mirrorup")
				svc.metrics.MustRegister(reg)
				g.Go(func() error { return metrics.Serve(gctx, metricsAddr, reg) })
			}
			g.Go(func() error {
				// 客户端断开后停止指标服务
				defer cancel()
				defer svc.stopAll()
				return svc.server().Run(gctx, &mcp.StdioTransport{})
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "在该地址提供 Prometheus 指标")
	return cmd
}

type endpointInfo struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

type listEndpointsInput struct{}

type listEndpointsOutput struct {
	Endpoints []endpointInfo `json:"endpoints"`
}

type uploadInput struct {
	Endpoint string `json:"endpoint" jsonschema:"name of a saved endpoint"`
	Path     string `json:"path" jsonschema:"local file or directory; a trailing slash uploads only the directory contents"`
}

type uploadOutput struct {
	Endpoint  string `json:"endpoint"`
	Path      string `json:"path"`
	Sent      int    `json:"sent"`
	Resumed   int    `json:"resumed"`
	Skipped   int    `json:"skipped"`
	Bytes     uint64 `json:"bytes"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

type abortInput struct {
	Endpoint string `json:"endpoint" jsonschema:"name of the endpoint whose uploads should stop"`
}

type abortOutput struct {
	Aborted int `json:"aborted"`
}

// mcpService 保存的端点上的上传任务,同一端点同一路径的并发请求合并为一次
type mcpService struct {
	provider *config.Provider
	metrics  *metrics.Metrics
	sf       singleflight.Group
	active   *concurrent.Map[string, *uploader.Uploader]
	// factory 为空时按端点协议创建会话
	factory  session.Factory
}

func newMCPService(p *config.Provider) *mcpService {
	return &mcpService{
		provider: p,
		active:   concurrent.NewMap[string, *uploader.Uploader](concurrent.HashString, 0),
	}
}

func (s *mcpService) server() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "mirrorup", Version: version.Version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_endpoints",
		Description: "List the saved upload endpoints",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in listEndpointsInput) (*mcp.CallToolResult, listEndpointsOutput, error) {
		return nil, s.listEndpoints(), nil
	})
	mcp.AddTool(server, &mcp.Tool{
		Name:        "upload",
		Description: "Upload a local file or directory to a saved endpoint, resuming partial files and skipping complete ones",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in uploadInput) (*mcp.CallToolResult, uploadOutput, error) {
		out, err := s.upload(ctx, in)
		return nil, out, err
	})
	mcp.AddTool(server, &mcp.Tool{
		Name:        "abort",
		Description: "Abort the file currently being uploaded to an endpoint",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in abortInput) (*mcp.CallToolResult, abortOutput, error) {
		return nil, abortOutput{Aborted: s.abort(in.Endpoint)}, nil
	})
	return server
}

func (s *mcpService) listEndpoints() listEndpointsOutput {
	out := listEndpointsOutput{Endpoints: []endpointInfo{}}
	for _, name := range s.provider.Names() {
		ep, _ := s.provider.Get(name)
		out.Endpoints = append(out.Endpoints, endpointInfo{Name: name, Target: ep.String()})
	}
	return out
}

func jobKey(endpoint, path string) string { return endpoint + "\x00" + path }

func (s *mcpService) upload(ctx context.Context, in uploadInput) (uploadOutput, error) {
	ep, ok := s.provider.Get(in.Endpoint)
	if !ok {
		return uploadOutput{}, fmt.Errorf("unknown endpoint %q", in.Endpoint)
	}
	if in.Path == "" {
		return uploadOutput{}, fmt.Errorf("path is required")
	}
	if err := fillCredentials(&ep, false); err != nil {
		return uploadOutput{}, err
	}

	// 合并后的上传由所有调用方共享,不跟随某一个调用方取消,停止上传需要 abort 工具
	jobCtx := context.WithoutCancel(ctx)
	key := jobKey(in.Endpoint, in.Path)
	ch := s.sf.DoChan(key, func() (any, error) {
		stats := &statsReporter{}
		opts := []uploader.Option{
			uploader.WithSettings(s.provider.Transfer()),
			uploader.WithSessionFactory(s.factory),
			uploader.WithLogger(logger.Logger.With("endpoint", in.Endpoint)),
		}
		if s.metrics != nil {
			stats.next = s.metrics.Reporter(in.Endpoint)
		}
		opts = append(opts, uploader.WithReporter(stats))

		u := uploader.New(opts...)
		s.active.Set(key, u)
		defer s.active.Pop(key)

		start := time.Now()
		if err := u.Configure(ep); err != nil {
			return nil, err
		}
		if err := u.Connect(jobCtx); err != nil {
			return nil, err
		}
		defer u.Disconnect()
		if err := u.Upload(jobCtx, in.Path, nil); err != nil {
			return nil, err
		}
		out := stats.output()
		out.Endpoint, out.Path = in.Endpoint, in.Path
		out.ElapsedMS = time.Since(start).Milliseconds()
		return out, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return uploadOutput{}, r.Err
		}
		return r.Val.(uploadOutput), nil
	case <-ctx.Done():
		return uploadOutput{}, ctx.Err()
	}
}

// abort 中止该端点上所有进行中的上传,返回中止的数量
func (s *mcpService) abort(endpoint string) int {
	prefix := jobKey(endpoint, "")
	n := 0
	s.active.Range(func(key string, u *uploader.Uploader) bool {
		if strings.HasPrefix(key, prefix) {
			u.Abort()
			n++
		}
		return true
	})
	return n
}

// stopAll 服务退出时停止所有上传
func (s *mcpService) stopAll() {
	s.active.Range(func(_ string, u *uploader.Uploader) bool {
		u.Disconnect()
		return true
	})
}

// statsReporter 统计一次上传的结果,并转发给可选的下一个 Reporter
type statsReporter struct {
	mu    sync.Mutex
	files map[uploader.Outcome]int
	bytes uint64
	next  uploader.Reporter
}

func (r *statsReporter) FileDone(o uploader.Outcome, n uint64) {
	r.mu.Lock()
	if r.files == nil {
		r.files = make(map[uploader.Outcome]int)
	}
	r.files[o]++
	r.bytes += n
	r.mu.Unlock()
	if r.next != nil {
		r.next.FileDone(o, n)
	}
}

func (r *statsReporter) ListingRetried() {
	if r.next != nil {
		r.next.ListingRetried()
	}
}

func (r *statsReporter) UploadDone(err error, elapsed time.Duration) {
	if r.next != nil {
		r.next.UploadDone(err, elapsed)
	}
}

func (r *statsReporter) output() uploadOutput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uploadOutput{
		Sent:    r.files[uploader.OutcomeSent],
		Resumed: r.files[uploader.OutcomeResumed],
		Skipped: r.files[uploader.OutcomeSkipped],
		Bytes:   r.bytes,
	}
}

func init() {
	rootCmd.AddCommand(NewCmdMCP())
}
