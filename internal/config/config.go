package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jojomensah89/agentkit/pkg/logger"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "AGENTKIT_CONFIG"

// Config 描述了钱包服务在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Auth     AuthConfig     `json:"auth"`
	Logging  logger.Config  `json:"logging"`
	Web3     Web3Config     `json:"web3"`
	Journal  JournalConfig  `json:"journal"`
	Receipts ReceiptsConfig `json:"receipts"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
	// MaxReceiptWaitSeconds 限制回执查询接口允许的最长等待时间。
	MaxReceiptWaitSeconds int `json:"max_receipt_wait_seconds"`
}

// MaxReceiptWait 返回回执等待上限。
func (s ServerConfig) MaxReceiptWait() time.Duration {
	return time.Duration(s.MaxReceiptWaitSeconds) * time.Second
}

// AuthConfig 配置 API 的静态令牌。为空时不启用认证。
type AuthConfig struct {
	Tokens    []string `json:"tokens"`
	TokensEnv string   `json:"tokens_env"`
}

// ResolveTokens 合并配置文件与环境变量中的令牌，环境变量使用逗号分隔。
func (a AuthConfig) ResolveTokens() []string {
	tokens := make([]string, 0, len(a.Tokens))
	for _, token := range a.Tokens {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	if a.TokensEnv != "" {
		for _, token := range strings.Split(os.Getenv(a.TokensEnv), ",") {
			if token = strings.TrimSpace(token); token != "" {
				tokens = append(tokens, token)
			}
		}
	}
	return tokens
}

// Web3Config 描述链定义与签名账户。
type Web3Config struct {
	ChainConfig               string       `json:"chain_config"`
	DefaultChain              string       `json:"default_chain"`
	RPCURL                    string       `json:"rpc_url"`
	ChainID                   string       `json:"chain_id"`
	Signer                    SignerConfig `json:"signer"`
	ReceiptPollIntervalMillis int          `json:"receipt_poll_interval_ms"`
}

// SignerConfig 选择签名实现：none、private_key 或 keystore。
type SignerConfig struct {
	Type          string `json:"type"`
	PrivateKey    string `json:"private_key"`
	PrivateKeyEnv string `json:"private_key_env"`
	KeystoreDir   string `json:"keystore_dir"`
	Address       string `json:"address"`
	PassphraseEnv string `json:"passphrase_env"`
}

// JournalConfig 描述操作日志的存储后端。
type JournalConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	Capacity               int    `json:"capacity"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// ReceiptsConfig 控制交易回执跟踪队列与工作协程。
type ReceiptsConfig struct {
	Driver             string         `json:"driver"`
	Workers            int            `json:"workers"`
	MaxAttempts        int            `json:"max_attempts"`
	WaitTimeoutSeconds int            `json:"wait_timeout_seconds"`
	Redis              RedisConfig    `json:"redis"`
	RabbitMQ           RabbitMQConfig `json:"rabbitmq"`
}

// WaitTimeout 返回单次等待回执的超时时间。
func (r ReceiptsConfig) WaitTimeout() time.Duration {
	return time.Duration(r.WaitTimeoutSeconds) * time.Second
}

// RedisConfig 描述 Redis 队列连接。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列连接。
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// ResolvePath 依次使用显式路径、环境变量与默认路径。
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return filepath.Join("configs", "agentkit.json")
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.MaxReceiptWaitSeconds <= 0 {
		c.Server.MaxReceiptWaitSeconds = 120
	}

	if c.Web3.Signer.Type == "" {
		c.Web3.Signer.Type = "none"
	}
	c.Web3.ChainConfig = resolve(baseDir, c.Web3.ChainConfig)
	c.Web3.Signer.KeystoreDir = resolve(baseDir, c.Web3.Signer.KeystoreDir)

	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}
	if c.Journal.Capacity <= 0 {
		c.Journal.Capacity = 1024
	}

	if c.Receipts.Driver == "" {
		c.Receipts.Driver = "memory"
	}
	if c.Receipts.Workers <= 0 {
		c.Receipts.Workers = 4
	}
	if c.Receipts.MaxAttempts <= 0 {
		c.Receipts.MaxAttempts = 3
	}
	if c.Receipts.WaitTimeoutSeconds <= 0 {
		c.Receipts.WaitTimeoutSeconds = 60
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else {
		c.Runtime.DataDir = resolve(baseDir, c.Runtime.DataDir)
	}

	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
