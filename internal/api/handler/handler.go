package handler

import "contest-review/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Webhook    *WebhookHandler
	Assignment *AssignmentHandler
	Contest    *ContestHandler
	Score      *ScoreHandler
	Sweep      *SweepHandler
	Settings   *SettingsHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Webhook:    NewWebhookHandler(svc.Assignment),
		Assignment: NewAssignmentHandler(svc.Assignment),
		Contest:    NewContestHandler(svc.Assignment, svc.Phase),
		Score:      NewScoreHandler(svc.Score),
		Sweep:      NewSweepHandler(svc.Sweep),
		Settings:   NewSettingsHandler(svc.ReviewSettings),
	}
}
