package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jojomensah89/agentkit/internal/auth"
	"github.com/jojomensah89/agentkit/internal/journal"
	"github.com/jojomensah89/agentkit/internal/observability/metrics"
	"github.com/jojomensah89/agentkit/internal/web3"
	"github.com/jojomensah89/agentkit/pkg/logger"
)

// WalletSource 提供按链名称查找的钱包提供者，provider.Registry 满足该接口。
type WalletSource interface {
	Default() (web3.EvmWalletProvider, error)
	DefaultChain() string
	Provider(name string) (web3.EvmWalletProvider, bool)
	Chains() []string
}

// Server 负责暴露钱包操作的 REST 接口。
type Server struct {
	addr           string
	wallets        WalletSource
	journal        journal.Store
	auth           *auth.Service
	maxReceiptWait time.Duration
}

// Option 定义可选配置。
type Option func(*Server)

// WithJournal 启用操作记录查询接口。
func WithJournal(store journal.Store) Option {
	return func(s *Server) {
		s.journal = store
	}
}

// WithAuth 为 /api 路由启用令牌认证。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) {
		s.auth = svc
	}
}

// WithMaxReceiptWait 限制回执接口允许的最长等待时间。
func WithMaxReceiptWait(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.maxReceiptWait = d
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, wallets WalletSource, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		wallets:        wallets,
		maxReceiptWait: 2 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回注册了全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /healthz", "healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	s.route(mux, "GET /api/v1/chains", "chains", s.handleChains)
	s.route(mux, "GET /api/v1/wallet", "wallet", s.handleWallet)
	s.route(mux, "POST /api/v1/wallet/sign-message", "sign_message", s.handleSignMessage)
	s.route(mux, "POST /api/v1/wallet/sign-typed-data", "sign_typed_data", s.handleSignTypedData)
	s.route(mux, "POST /api/v1/wallet/sign-transaction", "sign_transaction", s.handleSignTransaction)
	s.route(mux, "POST /api/v1/wallet/send-transaction", "send_transaction", s.handleSendTransaction)
	s.route(mux, "GET /api/v1/wallet/receipts/{hash}", "receipt", s.handleReceipt)
	s.route(mux, "GET /api/v1/journal", "journal_list", s.handleJournalList)
	s.route(mux, "GET /api/v1/journal/{id}", "journal_detail", s.handleJournalDetail)

	var handler http.Handler = mux
	if s.auth != nil {
		handler = s.auth.Middleware(auth.MiddlewareConfig{
			AuditEvent: "wallet_api",
			Public:     map[string]bool{"/healthz": true, "/metrics": true},
		})(handler)
	}
	return handler
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("API 服务启动", "address", s.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// route 注册处理函数并记录请求指标。
func (s *Server) route(mux *http.ServeMux, pattern, name string, fn http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		fn(sw, r)
		metrics.ObserveHTTPRequest(name, r.Method, sw.status, time.Since(start))
	}))
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
