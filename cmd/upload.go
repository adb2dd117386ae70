package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wentf9/mirrorup/cmd/utils"
	"github.com/wentf9/mirrorup/global"
	"github.com/wentf9/mirrorup/pkg/config"
	"github.com/wentf9/mirrorup/pkg/logger"
	"github.com/wentf9/mirrorup/pkg/metrics"
	"github.com/wentf9/mirrorup/pkg/runner"
	"github.com/wentf9/mirrorup/pkg/uploader"
	"github.com/wentf9/mirrorup/pkg/utils/concurrent"
)

type UploadOptions struct {
	ConnOptions
	Targets     []string
	TargetFile  string
	Save        string
	ChunkSize   int
	Oversize    string
	TaskCount   uint
	MetricsAddr string
	NoProgress  bool
	Paths       []string
}

func NewUploadOptions() *UploadOptions {
	return &UploadOptions{TaskCount: 3}
}

func NewCmdUpload() *cobra.Command {
	o := NewUploadOptions()
	cmd := &cobra.Command{
		Use:   "upload [flags] <local_path>...",
		Short: "上传文件或目录,支持断点续传",
		Long: `上传一个或多个本地文件/目录到一个或多个端点。
用法示例:
mirrorup upload -t seedbox ./album
mirrorup upload -t ftps://bob@example.com/incoming ./a.iso ./b.iso
mirrorup upload -t seedbox -t sftp://nas/backup ./photos/
mirrorup upload -T targets.txt --task 5 ./release

目录会在远程创建同名目录;路径以 / 结尾时只上传目录里的内容。
端点可以是已保存的名称 (见 endpoint 命令),也可以是 [scheme://][user@]host[:port][/path]。
Ctrl+C 会中止正在传输的文件,再次执行同一命令即可从断点继续。`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Paths = args
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	o.ConnOptions.AddFlags(cmd)
	cmd.Flags().StringArrayVarP(&o.Targets, "to", "t", nil, "目标端点,可重复指定")
	cmd.Flags().StringVarP(&o.TargetFile, "ifile", "T", "", "目标端点列表文件,每行一个")
	cmd.Flags().StringVar(&o.Save, "save", "", "把目标端点以该名称保存到配置文件")
	cmd.Flags().IntVar(&o.ChunkSize, "chunk", 0, "写入块大小(字节)")
	cmd.Flags().StringVar(&o.Oversize, "oversize", "", "远程文件比本地大时: reupload 或 fail")
	cmd.Flags().UintVar(&o.TaskCount, "task", 3, "同时上传的端点数")
	cmd.Flags().StringVar(&o.MetricsAddr, "metrics-addr", "", "在该地址提供 Prometheus 指标,如 :9120")
	cmd.Flags().BoolVar(&o.NoProgress, "no-progress", false, "不显示进度条")
	cmd.MarkFlagsMutuallyExclusive("to", "ifile")
	return cmd
}

func (o *UploadOptions) Validate() error {
	if len(o.Targets) == 0 && o.TargetFile == "" {
		return fmt.Errorf("必须通过 --to 或 --ifile 指定目标端点")
	}
	if o.Oversize != "" {
		if _, err := uploader.ParseOversizePolicy(o.Oversize); err != nil {
			return err
		}
	}
	for _, p := range o.Paths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("本地路径不可用: %w", err)
		}
	}
	return nil
}

func (o *UploadOptions) Run(cmd *cobra.Command) error {
	store, cfg, err := openConfig()
	if err != nil {
		return err
	}
	provider := config.NewProvider(cfg)

	inputs := o.Targets
	if o.TargetFile != "" {
		if inputs, err = utils.ReadTargetFile(o.TargetFile); err != nil {
			return fmt.Errorf("读取目标列表失败: %w", err)
		}
	}
	if o.Save != "" && len(inputs) != 1 {
		return fmt.Errorf("--save 只能和单个目标一起使用")
	}

	// 密码提示必须在并发开始前完成
	var targets []runner.Target
	for _, in := range inputs {
		t, err := resolveTarget(provider, in)
		if err != nil {
			return err
		}
		o.ConnOptions.Apply(cmd, &t.Endpoint)
		if err := fillCredentials(&t.Endpoint, true); err != nil {
			return err
		}
		targets = append(targets, t)
	}
	if o.Save != "" {
		provider.Add(o.Save, targets[0].Endpoint)
		if err := store.Save(cfg); err != nil {
			return fmt.Errorf("保存配置文件失败: %w", err)
		}
		fmt.Printf("端点已保存为 %s\n", o.Save)
	}

	opts := []uploader.Option{uploader.WithSettings(provider.Transfer())}
	if o.ChunkSize > 0 {
		opts = append(opts, uploader.WithChunkSize(o.ChunkSize))
	}
	if o.Oversize != "" {
		p, _ := uploader.ParseOversizePolicy(o.Oversize)
		opts = append(opts, uploader.WithOversizePolicy(p))
	}

	var m *metrics.Metrics
	reg := prometheus.NewRegistry()
	if o.MetricsAddr != "" {
		m = metrics.New("mirrorup")
		m.MustRegister(reg)
	}

	var listener uploader.Listener
	var bar *progressbar.ProgressBar
	if !o.NoProgress && global.IsStderrTerminal {
		total, err := localSize(o.Paths)
		if err != nil {
			return err
		}
		bar = progressbar.DefaultBytes(total*int64(len(targets)), "上传")
		listener = &barListener{bar: bar}
	}

	active := concurrent.NewMap[string, *uploader.Uploader](concurrent.HashString, 0)
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if m != nil {
		g.Go(func() error { return metrics.Serve(gctx, o.MetricsAddr, reg) })
	}
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)
		select {
		case s := <-sig:
			fmt.Fprintf(os.Stderr, "\n收到信号 %v,正在中止上传...\n", s)
			active.Range(func(_ string, u *uploader.Uploader) bool {
				u.Abort()
				return true
			})
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		failed := 0
		results := runner.RunParallel(gctx, targets, o.TaskCount, func(ctx context.Context, t runner.Target) error {
			taskOpts := opts
			if m != nil {
				taskOpts = append(taskOpts[:len(taskOpts):len(taskOpts)], uploader.WithReporter(m.Reporter(t.Name)))
			}
			return o.uploadTo(ctx, t, active, listener, taskOpts)
		})
		for r := range results {
			if r.Err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "[%s] 上传失败: %v\n", r.Target.Name, r.Err)
				continue
			}
			fmt.Fprintf(os.Stderr, "[%s] 上传完成\n", r.Target.Name)
		}
		if bar != nil {
			bar.Finish()
		}
		if failed > 0 {
			return fmt.Errorf("%d/%d 个端点上传失败", failed, len(targets))
		}
		return nil
	})
	return g.Wait()
}

func (o *UploadOptions) uploadTo(ctx context.Context, t runner.Target, active *concurrent.Map[string, *uploader.Uploader], l uploader.Listener, opts []uploader.Option) error {
	u := uploader.New(append(opts, uploader.WithLogger(logger.Logger.With("target", t.Name)))...)
	active.Set(t.Name, u)
	defer active.Pop(t.Name)

	if err := u.Configure(t.Endpoint); err != nil {
		return err
	}
	if err := u.Connect(ctx); err != nil {
		return err
	}
	defer u.Disconnect()

	for _, p := range o.Paths {
		if err := u.Upload(ctx, p, l); err != nil {
			return err
		}
	}
	return nil
}

// barListener 把进度回调汇总到一个进度条,续传和跳过的字节也计入
type barListener struct {
	bar *progressbar.ProgressBar
}

func (l *barListener) OnBytesTransferred(total, chunk, streamSize uint64) {
	l.bar.Add64(int64(chunk))
}

func (l *barListener) OnResume(remotePath string, offset uint64) {
	l.bar.Add64(int64(offset))
}

func (l *barListener) OnFile(remotePath string, size uint64) {
	l.bar.Describe("上传 " + path.Base(remotePath))
}

// localSize 统计将要上传的普通文件总大小
func localSize(paths []string) (int64, error) {
	var total int64
	for _, p := range paths {
		err := filepath.WalkDir(p, func(name string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := os.Stat(name)
			if err != nil {
				return nil
			}
			if info.Mode().IsRegular() {
				total += info.Size()
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

func init() {
	rootCmd.AddCommand(NewCmdUpload())
}
