package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wentf9/mirrorup/cmd/utils"
	"github.com/wentf9/mirrorup/pkg/config"
	"github.com/wentf9/mirrorup/pkg/models"
	"github.com/wentf9/mirrorup/pkg/session"
)

func NewCmdEndpoint() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "endpoint",
		Aliases: []string{"endpoints", "ep"},
		Short:   "管理保存的上传端点",
		Long:    `管理保存在配置文件中的上传端点。密码使用本机密钥加密后保存。`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.AddCommand(NewCmdEndpointList())
	cmd.AddCommand(NewCmdEndpointAdd())
	cmd.AddCommand(NewCmdEndpointRemove())
	return cmd
}

func NewCmdEndpointAdd() *cobra.Command {
	o := &ConnOptions{}
	var force bool
	cmd := &cobra.Command{
		Use:   "add <name> <target>",
		Short: "添加或更新一个端点",
		Long: `添加或更新一个端点。target 格式为 [scheme://][user@]host[:port][/path]。
用法示例:
mirrorup endpoint add seedbox ftps://bob@seedbox.example.com/incoming
mirrorup endpoint add nas sftp://admin@nas.lan/volume1/backup -i ~/.ssh/id_ed25519
mirrorup endpoint add usb file:///media/usb/mirror`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ep, err := utils.ParseTarget(args[1])
			if err != nil {
				return err
			}
			o.Apply(cmd, &ep)
			// 只校验参数组合,不连接
			if _, err := session.New(ep); err != nil {
				return fmt.Errorf("端点参数无效: %w", err)
			}

			store, cfg, err := openConfig()
			if err != nil {
				return err
			}
			provider := config.NewProvider(cfg)
			if _, exists := provider.Get(name); exists && !force {
				return fmt.Errorf("端点 %s 已存在,使用 --force 覆盖", name)
			}
			if err := fillCredentials(&ep, true); err != nil {
				return err
			}
			provider.Add(name, ep)
			if err := store.Save(cfg); err != nil {
				return fmt.Errorf("保存配置文件失败: %w", err)
			}
			fmt.Printf("成功保存端点: %s (%s)\n", name, ep)
			return nil
		},
	}
	o.AddFlags(cmd)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "覆盖同名端点")
	return cmd
}

func NewCmdEndpointList() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "列出保存的端点",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := openConfig()
			if err != nil {
				return err
			}
			provider := config.NewProvider(cfg)
			names := provider.Names()
			if len(names) == 0 {
				fmt.Println("没有找到已保存的端点。")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "名称\t协议\t地址\t用户\t远程目录\t认证方式")
			for _, name := range names {
				ep, _ := provider.Get(name)
				addr := ep.Address()
				if ep.Scheme == models.SchemeLocal {
					addr = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					name, schemeLabel(ep), addr, ep.User, ep.RemotePath, authLabel(ep))
			}
			return w.Flush()
		},
	}
}

func NewCmdEndpointRemove() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm", "delete"},
		Short:   "删除一个端点",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			store, cfg, err := openConfig()
			if err != nil {
				return err
			}
			provider := config.NewProvider(cfg)
			if !provider.Delete(name) {
				return fmt.Errorf("端点 %s 不存在", name)
			}
			if err := store.Save(cfg); err != nil {
				return fmt.Errorf("保存配置文件失败: %w", err)
			}
			fmt.Printf("成功删除端点: %s\n", name)
			return nil
		},
	}
}

func schemeLabel(ep models.Endpoint) string {
	if ep.Scheme == models.SchemeFTP && ep.Encrypt {
		return "ftps"
	}
	return ep.Scheme
}

func authLabel(ep models.Endpoint) string {
	switch {
	case ep.Scheme == models.SchemeLocal:
		return "-"
	case ep.KeyPath != "":
		return "key"
	case ep.Password != "":
		return "password"
	}
	return "none"
}

func init() {
	rootCmd.AddCommand(NewCmdEndpoint())
}
