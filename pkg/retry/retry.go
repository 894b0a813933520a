// Package retry 提供统一的重试策略：有限次数、指数退避加抖动、可注入的可重试判定。
// 所有外部调用（数据库写入、身份服务、SMTP）共用同一策略，不在调用点各自实现。
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"time"

	"github.com/cenkalti/backoff/v4"

	"contest-review/config"
)

// StatusError 外部 HTTP 服务返回的非 2xx 响应
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("外部服务返回 HTTP %d: %s", e.StatusCode, e.Body)
}

// Policy 重试策略
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
	// Retryable 为 nil 时使用 IsRetryable
	Retryable func(error) bool
	// OnRetry 每次退避等待前回调，可用于记录日志
	OnRetry func(err error, wait time.Duration)
}

// NewPolicy 根据配置构造默认策略
func NewPolicy(cfg *config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
	}
}

// WithRetryable 返回替换了可重试判定的副本
func (p Policy) WithRetryable(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

// WithOnRetry 返回设置了重试回调的副本
func (p Policy) WithOnRetry(fn func(err error, wait time.Duration)) Policy {
	p.OnRetry = fn
	return p
}

// Do 执行 op，失败时按策略重试；返回最后一次错误
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.RandomizationFactor = p.Jitter
	eb.Multiplier = 2
	if p.MaxDelay > 0 {
		eb.MaxInterval = p.MaxDelay
	}
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	operation := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = p.OnRetry
	}

	return backoff.RetryNotify(operation, b, notify)
}

// IsRetryable 默认可重试判定
//   - context 取消/超时：不重试
//   - HTTP 429 与 5xx：重试；其余 4xx：不重试
//   - SMTP 4xx（临时失败）：重试；SMTP 5xx（永久失败）：不重试
//   - 网络错误、连接重置、意外 EOF 及其他未知错误：重试（次数有上限）
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 429 || se.StatusCode >= 500
	}

	var tpe *textproto.Error
	if errors.As(err, &tpe) {
		return tpe.Code >= 400 && tpe.Code < 500
	}

	// 网络错误（连接重置、意外 EOF 等）与其他未知错误一律视为暂时性
	return true
}

// Unless 在默认判定基础上排除指定的业务错误（例如唯一约束冲突）
func Unless(permanent ...error) func(error) bool {
	return func(err error) bool {
		for _, p := range permanent {
			if errors.Is(err, p) {
				return false
			}
		}
		return IsRetryable(err)
	}
}
