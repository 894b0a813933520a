// Package identity 外部身份服务客户端。
// 评审引擎只保存不透明的 user_id，邮箱在发送通知时按需解析。
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"contest-review/config"
	"contest-review/pkg/retry"
)

// ErrUserNotFound 身份服务中不存在该用户
var ErrUserNotFound = errors.New("身份服务中不存在该用户")

// User 身份服务返回的用户信息
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Provider 用户身份查询接口
type Provider interface {
	GetUser(ctx context.Context, id string) (*User, error)
}

// HTTPProvider 通过 HTTP 调用身份服务
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	policy  retry.Policy
	logger  *zap.Logger
}

// NewHTTPProvider 创建身份服务客户端
func NewHTTPProvider(cfg *config.IdentityConfig, policy retry.Policy, logger *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		policy:  policy.WithRetryable(retry.Unless(ErrUserNotFound)),
		logger:  logger,
	}
}

// GetUser 按 id 查询用户；404 映射为 ErrUserNotFound，429/5xx 按策略重试
func (p *HTTPProvider) GetUser(ctx context.Context, id string) (*User, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s", p.baseURL, url.PathEscape(id))

	var user User
	policy := p.policy.WithOnRetry(func(err error, wait time.Duration) {
		p.logger.Warn("身份服务调用失败，准备重试",
			zap.String("user_id", id), zap.Duration("wait", wait), zap.Error(err))
	})
	err := policy.Do(ctx, func(ctx context.Context) error {
		return p.fetch(ctx, endpoint, &user)
	})
	if err != nil {
		return nil, err
	}
	if user.Email == "" {
		return nil, fmt.Errorf("身份服务返回的用户 %s 缺少邮箱", id)
	}
	return &user, nil
}

func (p *HTTPProvider) fetch(ctx context.Context, endpoint string, out *User) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &retry.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
