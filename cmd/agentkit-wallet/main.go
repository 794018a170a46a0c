package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jojomensah89/agentkit/internal/config"
	"github.com/jojomensah89/agentkit/pkg/logger"
)

// main 是钱包服务与命令行工具的入口。
func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "agentkit-wallet 运行失败: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                 "agentkit-wallet",
		Usage:                "EVM wallet provider service and command line tools",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the JSON config file",
				EnvVars: []string{config.EnvConfigPath},
			},
			&cli.StringFlag{
				Name:  "chain",
				Usage: "chain name from the chain definitions, defaults to web3.default_chain",
			},
		},
		Commands: []*cli.Command{
			serveCmd,
			addressCmd,
			networkCmd,
			signMessageCmd,
			sendCmd,
			receiptCmd,
		},
	}
}

// prepare 加载配置并初始化日志。
func prepare(cctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(config.ResolvePath(cctx.String("config")))
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}
