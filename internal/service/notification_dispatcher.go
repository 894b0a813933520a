package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"

	"contest-review/internal/dto"
	"contest-review/internal/model"
	"contest-review/internal/repository"
	"contest-review/pkg/identity"
	"contest-review/pkg/mailer"
	"contest-review/pkg/retry"
)

// NotificationDispatcher 发件箱投递接口
type NotificationDispatcher interface {
	// Dispatch 处理一批到期任务：解析邮箱 → 渲染 → SMTP 发送
	// 暂时性失败按指数间隔重新排队，超过最大次数或永久性失败标记为 failed
	Dispatch(ctx context.Context) (*dto.DispatchResponse, error)
}

// DispatcherOptions 投递参数
type DispatcherOptions struct {
	BatchSize  int
	MaxAttempt int
	Lease      time.Duration
	RetryBase  time.Duration
	RetryMax   time.Duration
}

type notificationDispatcher struct {
	repo     *repository.Repository
	identity identity.Provider
	sender   mailer.Sender
	policy   retry.Policy
	opts     DispatcherOptions
	now      func() time.Time
	logger   *zap.Logger
}

// NewNotificationDispatcher 创建 NotificationDispatcher
func NewNotificationDispatcher(
	repo *repository.Repository,
	idp identity.Provider,
	sender mailer.Sender,
	policy retry.Policy,
	opts DispatcherOptions,
	logger *zap.Logger,
) NotificationDispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAttempt <= 0 {
		opts.MaxAttempt = 5
	}
	if opts.Lease <= 0 {
		opts.Lease = 5 * time.Minute
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Minute
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = time.Hour
	}
	return &notificationDispatcher{
		repo:     repo,
		identity: idp,
		sender:   sender,
		policy:   policy,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
	}
}

func (d *notificationDispatcher) Dispatch(ctx context.Context) (*dto.DispatchResponse, error) {
	tasks, err := d.repo.Notification.ClaimDue(ctx, d.now(), d.opts.Lease, d.opts.BatchSize)
	if err != nil {
		d.logger.Error("领取通知任务失败", zap.Error(err))
		return nil, err
	}

	resp := &dto.DispatchResponse{Claimed: len(tasks)}
	for i := range tasks {
		task := &tasks[i]
		sendErr := d.deliver(ctx, task)
		if sendErr == nil {
			if err := d.repo.Notification.MarkSent(ctx, task.TaskID, d.now()); err != nil {
				d.logger.Error("标记通知已发送失败", zap.String("task_id", task.TaskID), zap.Error(err))
			}
			resp.Sent++
			continue
		}

		attempts := task.Attempts + 1
		if d.permanent(sendErr) || attempts >= d.opts.MaxAttempt {
			d.logger.Warn("通知投递失败，不再重试",
				zap.String("task_id", task.TaskID), zap.String("kind", task.Kind),
				zap.Int("attempts", attempts), zap.Error(sendErr))
			if err := d.repo.Notification.MarkFailed(ctx, task.TaskID, attempts, sendErr.Error()); err != nil {
				d.logger.Error("标记通知失败状态失败", zap.String("task_id", task.TaskID), zap.Error(err))
			}
			resp.Failed++
			continue
		}

		next := d.now().Add(d.requeueDelay(attempts))
		if err := d.repo.Notification.MarkRetry(ctx, task.TaskID, attempts, sendErr.Error(), next); err != nil {
			d.logger.Error("通知重新排队失败", zap.String("task_id", task.TaskID), zap.Error(err))
		}
		resp.Retried++
	}

	if resp.Claimed > 0 {
		d.logger.Info("通知派发完成",
			zap.Int("claimed", resp.Claimed), zap.Int("sent", resp.Sent),
			zap.Int("retried", resp.Retried), zap.Int("failed", resp.Failed))
	}
	return resp, nil
}

func (d *notificationDispatcher) deliver(ctx context.Context, task *model.NotificationTask) error {
	user, err := d.identity.GetUser(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("解析收件人失败: %w", err)
	}

	subject, body, err := renderNotification(task)
	if err != nil {
		return err
	}

	policy := d.policy.WithRetryable(retry.Unless(mailer.ErrNotConfigured)).WithOnRetry(func(err error, wait time.Duration) {
		d.logger.Warn("邮件发送失败，准备重试",
			zap.String("task_id", task.TaskID), zap.Duration("wait", wait), zap.Error(err))
	})
	return policy.Do(ctx, func(ctx context.Context) error {
		return d.sender.Send(ctx, user.Email, subject, body)
	})
}

func (d *notificationDispatcher) permanent(err error) bool {
	if errors.Is(err, identity.ErrUserNotFound) ||
		errors.Is(err, mailer.ErrNotConfigured) ||
		errors.Is(err, errUnknownNotification) {
		return true
	}
	return !retry.IsRetryable(err)
}

// requeueDelay 任务级重新排队间隔：base * 2^(attempts-1)，不超过 RetryMax
func (d *notificationDispatcher) requeueDelay(attempts int) time.Duration {
	delay := d.opts.RetryBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.opts.RetryMax {
			return d.opts.RetryMax
		}
	}
	return delay
}

// ── 邮件模板 ──

var errUnknownNotification = errors.New("未知的通知类型")

type mailTemplate struct {
	subject string
	body    *template.Template
}

var mailTemplates = map[string]mailTemplate{
	model.NotifyAssignment: {
		subject: "您有新的评审任务",
		body: mustMailBody("assignment",
			`<p>您被分配了 {{.Count}} 项评审任务，请在 {{fmtTime .Deadline}} 前完成。</p>`),
	},
	model.NotifyDeadlineWarning: {
		subject: "评审任务即将截止",
		body: mustMailBody("warning",
			`<p>您还有 {{.Count}} 项评审任务未完成，最早将于 {{fmtTime .Deadline}} 截止。逾期未完成将影响诚信分。</p>`),
	},
	model.NotifyDisqualified: {
		subject: "参赛资格已被取消",
		body: mustMailBody("disqualified",
			`<p>由于未完成评审义务，您在本次比赛中的参赛资格已被取消。</p><p>原因：{{.Reason}}</p>`),
	},
	model.NotifyResults: {
		subject: "评审结果已公布",
		body: mustMailBody("results",
			`<p>同行评审阶段已结束，比赛已进入公开投票阶段，您可以查看评审结果。</p>`),
	},
	model.NotifyVerification: {
		subject: "同行复核结果",
		body: mustMailBody("verification",
			`<p>您的作品同行复核已完成，结果：{{if eq .Outcome "reinstated"}}恢复参赛{{else}}维持淘汰{{end}}。</p>`),
	},
}

func mustMailBody(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(template.FuncMap{"fmtTime": fmtTime}).Parse(text))
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func renderNotification(task *model.NotificationTask) (string, string, error) {
	tpl, ok := mailTemplates[task.Kind]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", errUnknownNotification, task.Kind)
	}
	var payload notificationPayload
	if len(task.Payload) > 0 {
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return "", "", fmt.Errorf("%w: 负载解析失败: %v", errUnknownNotification, err)
		}
	}
	var buf bytes.Buffer
	if err := tpl.body.Execute(&buf, payload); err != nil {
		return "", "", err
	}
	return tpl.subject, buf.String(), nil
}
