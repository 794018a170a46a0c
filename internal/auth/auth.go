package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jojomensah89/agentkit/pkg/logger"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Subject 表示通过认证的调用方。
type Subject struct {
	Name string
}

type credential struct {
	name   string
	digest [sha256.Size]byte
}

// Service 使用静态 Bearer 令牌保护 HTTP 接口。未配置令牌时不做认证。
type Service struct {
	credentials []credential
	audit       *slog.Logger
}

// NewService 根据令牌列表构造认证服务。令牌可以写成 "name:secret" 以便在审计日志中
// 区分调用方，否则使用序号命名。
func NewService(tokens []string) (*Service, error) {
	svc := &Service{audit: logger.Audit()}
	seen := make(map[[sha256.Size]byte]struct{}, len(tokens))
	for i, raw := range tokens {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name := fmt.Sprintf("token-%d", i+1)
		secret := raw
		if idx := strings.IndexByte(raw, ':'); idx > 0 && idx < len(raw)-1 {
			name, secret = raw[:idx], raw[idx+1:]
		}
		digest := sha256.Sum256([]byte(secret))
		if _, dup := seen[digest]; dup {
			return nil, fmt.Errorf("duplicate api token for %s", name)
		}
		seen[digest] = struct{}{}
		svc.credentials = append(svc.credentials, credential{name: name, digest: digest})
	}
	return svc, nil
}

// Enabled 表示是否启用了认证。
func (s *Service) Enabled() bool {
	return s != nil && len(s.credentials) > 0
}

// Authenticate 校验 Authorization 头。
func (s *Service) Authenticate(header string) (*Subject, error) {
	if !s.Enabled() {
		return &Subject{Name: "anonymous"}, nil
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	digest := sha256.Sum256([]byte(strings.TrimSpace(token)))
	var matched *credential
	for i := range s.credentials {
		if subtle.ConstantTimeCompare(digest[:], s.credentials[i].digest[:]) == 1 {
			matched = &s.credentials[i]
		}
	}
	if matched == nil {
		return nil, ErrInvalidToken
	}
	return &Subject{Name: matched.name}, nil
}
