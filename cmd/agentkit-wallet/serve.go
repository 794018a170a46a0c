package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jojomensah89/agentkit/internal/api"
	"github.com/jojomensah89/agentkit/internal/auth"
	"github.com/jojomensah89/agentkit/internal/config"
	"github.com/jojomensah89/agentkit/internal/journal"
	"github.com/jojomensah89/agentkit/internal/receipts"
	"github.com/jojomensah89/agentkit/internal/storage/mysql"
	"github.com/jojomensah89/agentkit/internal/web3"
	"github.com/jojomensah89/agentkit/internal/web3/provider"
	"github.com/jojomensah89/agentkit/pkg/logger"
)

// resumeLimit 限制启动时重新投递的 pending 交易数量。
const resumeLimit = 200

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the wallet API and the receipt tracker",
	Action: func(cctx *cli.Context) error {
		cfg, err := prepare(cctx)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Named("serve")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer registry.Close()

	store, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("关闭操作记录存储失败", "error", err)
		}
	}()

	queue, err := openQueue(ctx, cfg.Receipts)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			log.Warn("关闭回执队列失败", "error", err)
		}
	}()

	registry.Decorate(func(name string, p web3.EvmWalletProvider) web3.EvmWalletProvider {
		return journal.NewRecorder(name, p, store, journal.WithPublisher(queue))
	})

	tracker := receipts.NewTracker(store, registry, queue, queue,
		receipts.WithWorkerCount(cfg.Receipts.Workers),
		receipts.WithWaitTimeout(cfg.Receipts.WaitTimeout()),
		receipts.WithMaxAttempts(cfg.Receipts.MaxAttempts),
	)
	if resumed, err := tracker.Resume(ctx, resumeLimit); err != nil {
		log.Warn("恢复 pending 交易失败", "error", err)
	} else if resumed > 0 {
		log.Info("已重新投递 pending 交易", "count", resumed)
	}

	trackerCtx, trackerCancel := context.WithCancel(ctx)
	defer trackerCancel()
	go func() {
		if err := tracker.Start(trackerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("回执跟踪器异常退出", "error", err)
		}
	}()

	authSvc, err := auth.NewService(cfg.Auth.ResolveTokens())
	if err != nil {
		return err
	}
	if !authSvc.Enabled() {
		log.Warn("未配置 API 令牌，接口不做认证")
	}

	server := api.NewServer(cfg.Server.Address, registry,
		api.WithJournal(store),
		api.WithAuth(authSvc),
		api.WithMaxReceiptWait(cfg.Server.MaxReceiptWait()),
	)
	log.Info("钱包服务已就绪",
		"chains", registry.Chains(),
		"default_chain", registry.DefaultChain(),
		"journal", cfg.Journal.Driver,
		"queue", cfg.Receipts.Driver,
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (journal.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return journal.NewMemoryStore(cfg.Capacity), nil
	case "mysql":
		return mysql.NewJournalRepository(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的操作记录驱动: %s", cfg.Driver)
	}
}

func openQueue(ctx context.Context, cfg config.ReceiptsConfig) (receipts.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return receipts.NewMemoryQueue(1024), nil
	case "redis":
		return receipts.NewRedisQueue(ctx, receipts.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return receipts.NewRabbitMQQueue(receipts.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}
