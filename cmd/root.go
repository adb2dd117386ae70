package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wentf9/mirrorup/cmd/utils"
	"github.com/wentf9/mirrorup/cmd/version"
	"github.com/wentf9/mirrorup/pkg/config"
	"github.com/wentf9/mirrorup/pkg/logger"
)

var (
	cfgFile  string
	logLevel string
	debug    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mirrorup [command] [flags]",
	Short: "mirrorup 是一个支持断点续传的目录上传工具",
	Long: `mirrorup 把本地文件或目录树上传到 FTP/FTPS、SFTP 服务器或本地挂载目录。
已上传完整的文件会被跳过,上传了一部分的文件从断点继续,
中断(Ctrl+C)后再次执行同一命令即可续传。`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			version.PrintFullVersion()
			return
		}
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case debug:
			logger.Logger.SetLogLevel("debug")
		case logLevel != "":
			if !logger.Logger.SetLogLevel(logLevel) {
				return fmt.Errorf("无法识别的日志级别: %s", logLevel)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openConfig 加载配置文件,命令行没有指定日志级别时使用配置文件中的级别
func openConfig() (config.Store, *config.Configuration, error) {
	configPath, keyPath := utils.GetConfigFilePath()
	if cfgFile != "" {
		configPath, keyPath = cfgFile, utils.KeyPathFor(cfgFile)
	}
	store := config.NewDefaultStore(configPath, keyPath)
	cfg, err := store.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置文件失败: %w", err)
	}
	if !debug && logLevel == "" && cfg.LogLevel != "" {
		logger.Logger.SetLogLevel(cfg.LogLevel)
	}
	return store, cfg, nil
}

func newCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			version.PrintFullVersion()
		},
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "显示版本信息")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "开启调试日志")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 debug/info/warn/error")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认 ~/.mirrorup/config.yaml)")
	rootCmd.AddCommand(newCmdVersion())
}
