package cmd

import (
	"context"
	"fmt"
	"net"
	"time"

	ping "github.com/prometheus-community/pro-bing"
	"github.com/spf13/cobra"

	"github.com/wentf9/mirrorup/cmd/utils"
	"github.com/wentf9/mirrorup/pkg/config"
	"github.com/wentf9/mirrorup/pkg/models"
	"github.com/wentf9/mirrorup/pkg/uploader"
)

type ProbeOptions struct {
	ConnOptions
	ICMP       bool
	Login      bool
	Count      int
	Privileged bool
}

func NewCmdProbe() *cobra.Command {
	o := &ProbeOptions{Count: 4}
	cmd := &cobra.Command{
		Use:   "probe <endpoint|target>",
		Short: "检查端点是否可达",
		Long: `检查端点是否可达。默认只测试 TCP 端口是否开放。
--icmp 额外发送 ICMP 请求 (Linux/macOS 上可能需要 root 权限);
--login 额外完成一次登录并进入远程目录,可以用来验证账号密码。
用法示例:
mirrorup probe seedbox
mirrorup probe ftp://example.com --icmp
mirrorup probe sftp://bob@nas.lan --login`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := openConfig()
			if err != nil {
				return err
			}
			t, err := resolveTarget(config.NewProvider(cfg), args[0])
			if err != nil {
				return err
			}
			o.ConnOptions.Apply(cmd, &t.Endpoint)
			return o.Run(cmd.Context(), t.Endpoint)
		},
	}
	o.ConnOptions.AddFlags(cmd)
	cmd.Flags().BoolVar(&o.ICMP, "icmp", false, "发送 ICMP 请求")
	cmd.Flags().BoolVar(&o.Login, "login", false, "尝试登录")
	cmd.Flags().IntVarP(&o.Count, "count", "c", 4, "ICMP 请求次数")
	cmd.Flags().BoolVar(&o.Privileged, "privileged", true, "使用 raw socket 发送 ICMP")
	return cmd
}

func (o *ProbeOptions) Run(ctx context.Context, ep models.Endpoint) error {
	if ep.Scheme == models.SchemeLocal {
		fmt.Printf("%s 是本地目录,跳过网络检查\n", ep.RemotePath)
		return o.login(ctx, ep)
	}
	if !utils.IsValidHost(ep.Host) {
		return fmt.Errorf("无法解析主机 %s", ep.Host)
	}

	address := ep.Address()
	fmt.Printf("正在测试到 %s 的TCP连接...\n", address)
	start := time.Now()
	conn, err := net.DialTimeout("tcp", address, 5*time.Second)
	if err != nil {
		return fmt.Errorf("端口 %s 已关闭或被过滤: %w", address, err)
	}
	conn.Close()
	fmt.Printf("端口 %s 是开放的 (%v)\n", address, time.Since(start).Round(time.Millisecond))

	if o.ICMP {
		if err := o.icmp(ctx, ep.Host); err != nil {
			return err
		}
	}
	return o.login(ctx, ep)
}

func (o *ProbeOptions) icmp(ctx context.Context, host string) error {
	fmt.Printf("正在通过ICMP Ping %s...\n", host)
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return fmt.Errorf("创建pinger失败: %w", err)
	}
	pinger.SetPrivileged(o.Privileged)
	pinger.Count = o.Count
	pinger.Interval = time.Second
	pinger.Timeout = time.Duration(o.Count+1) * time.Second
	pinger.OnFinish = func(stats *ping.Statistics) {
		fmt.Printf("--- %s 的 ping 统计信息 ---\n", stats.Addr)
		fmt.Printf("%d 个包已发送, %d 个包已接收, %v%% 包丢失\n",
			stats.PacketsSent, stats.PacketsRecv, stats.PacketLoss)
		fmt.Printf("往返行程 最小/平均/最大/标准差 = %v/%v/%v/%v\n",
			stats.MinRtt, stats.AvgRtt, stats.MaxRtt, stats.StdDevRtt)
	}
	return pinger.RunWithContext(ctx)
}

func (o *ProbeOptions) login(ctx context.Context, ep models.Endpoint) error {
	if !o.Login {
		return nil
	}
	if err := fillCredentials(&ep, true); err != nil {
		return err
	}
	u := uploader.New()
	if err := u.Configure(ep); err != nil {
		return err
	}
	if err := u.Connect(ctx); err != nil {
		return fmt.Errorf("登录失败: %w", err)
	}
	u.Disconnect()
	fmt.Printf("成功登录 %s\n", ep)
	return nil
}

func init() {
	rootCmd.AddCommand(NewCmdProbe())
}
