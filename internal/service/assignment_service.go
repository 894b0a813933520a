package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"contest-review/internal/dto"
	"contest-review/internal/model"
	"contest-review/internal/repository"
	pkgerrors "contest-review/pkg/errors"
)

// ── 分配模块业务错误 ──

var (
	ErrSubmissionNotEliminated = errors.New("作品不处于可申请复核的淘汰状态")
	ErrPhaseTransitionInvalid  = errors.New("比赛当前阶段不允许开启同行评审")
	ErrPhaseConflict           = errors.New("比赛阶段已被其他操作变更")
	ErrAssignmentNotFound      = errors.New("评审分配不存在")
	ErrAssignmentNotOwned      = errors.New("无权提交该评审分配")
	ErrAssignmentNotPending    = errors.New("评审分配已完成或已过期")
	ErrAssignmentPastDeadline  = errors.New("评审分配已超过截止时间")
	ErrInvalidReviewShape      = errors.New("评审内容与评审模式不匹配")
)

// AssignmentService 评审分配业务接口
type AssignmentService interface {
	// HandlePaymentConfirmed 支付确认回调：复核申请付款后组建复核评审团，重复投递幂等
	HandlePaymentConfirmed(ctx context.Context, req *dto.PaymentConfirmedRequest) (*dto.PaymentConfirmedResponse, error)
	// StartPeerReview 进入 peer_review 阶段并为所有合格作品分配评审；已处于该阶段时补足评审团
	StartPeerReview(ctx context.Context, contestID string) (*dto.StartPeerReviewResponse, error)
	// SubmitReview 提交评审：pending → done 与评审写入在同一事务中
	SubmitReview(ctx context.Context, assignmentID, reviewerID string, req *dto.SubmitReviewRequest) (*dto.SubmitReviewResponse, error)
	// ListMyAssignments 评审人的待办列表（盲审视图）
	ListMyAssignments(ctx context.Context, reviewerID string) ([]dto.MyAssignmentResponse, error)
	// MyDeadlineCalendar 评审人待办截止时间的 iCalendar 订阅
	MyDeadlineCalendar(ctx context.Context, reviewerID string) (string, error)
}

type assignmentService struct {
	*engine
}

// NewAssignmentService 创建 AssignmentService 实例
func NewAssignmentService(repo *repository.Repository, deps EngineDeps, logger *zap.Logger) AssignmentService {
	return &assignmentService{engine: newEngine(repo, deps, logger)}
}

// ════════════════════════════════════════════════════════════
// HandlePaymentConfirmed — 付费复核
// ════════════════════════════════════════════════════════════

func (s *assignmentService) HandlePaymentConfirmed(ctx context.Context, req *dto.PaymentConfirmedRequest) (*dto.PaymentConfirmedResponse, error) {
	resp := &dto.PaymentConfirmedResponse{SubmissionID: req.SubmissionID}

	if req.Purpose != dto.PurposePeerVerification {
		s.logger.Info("忽略未知用途的支付回调",
			zap.String("submission_id", req.SubmissionID), zap.String("purpose", req.Purpose))
		resp.Action = dto.PaymentActionIgnored
		return resp, nil
	}

	sub, err := s.repo.Submission.GetByID(ctx, req.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		s.logger.Error("查询作品失败", zap.String("submission_id", req.SubmissionID), zap.Error(err))
		return nil, err
	}

	switch {
	case sub.Status == model.SubmissionEliminated && sub.VerificationOutcome == nil:
	case sub.Status == model.SubmissionPeerVerificationPending || sub.VerificationOutcome != nil:
		// 已处理过的重复投递
		resp.Action = dto.PaymentActionDuplicate
		return resp, nil
	default:
		return nil, ErrSubmissionNotEliminated
	}

	contest, err := s.repo.Contest.GetByID(ctx, sub.ContestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	cfg, err := s.effectiveSettings(ctx, contest)
	if err != nil {
		s.logger.Error("读取评审参数失败", zap.Error(err))
		return nil, err
	}

	if err := s.repo.Submission.TransitionStatus(ctx, sub.SubmissionID,
		model.SubmissionEliminated, model.SubmissionPeerVerificationPending); err != nil {
		if errors.Is(err, pkgerrors.ErrStatusGuard) {
			resp.Action = dto.PaymentActionDuplicate
			return resp, nil
		}
		s.logger.Error("更新作品状态失败", zap.String("submission_id", sub.SubmissionID), zap.Error(err))
		return nil, err
	}
	sub.Status = model.SubmissionPeerVerificationPending

	panel, created, err := s.assignPanel(ctx, contest, sub, model.ModeVerification, cfg)
	if err != nil {
		// 回滚状态，让支付方重投时重新处理
		if rbErr := s.repo.Submission.TransitionStatus(ctx, sub.SubmissionID,
			model.SubmissionPeerVerificationPending, model.SubmissionEliminated); rbErr != nil {
			s.logger.Error("回滚作品状态失败", zap.String("submission_id", sub.SubmissionID), zap.Error(rbErr))
		}
		s.logger.Error("组建复核评审团失败", zap.String("submission_id", sub.SubmissionID), zap.Error(err))
		return nil, err
	}

	s.notifyAssignments(ctx, created, deadlineFrom(s.now(), cfg))

	resp.Action = dto.PaymentActionAssigned
	resp.Panel = &panel
	return resp, nil
}

// ════════════════════════════════════════════════════════════
// StartPeerReview — 比赛级同行评审
// ════════════════════════════════════════════════════════════

func (s *assignmentService) StartPeerReview(ctx context.Context, contestID string) (*dto.StartPeerReviewResponse, error) {
	contest, err := s.repo.Contest.GetByID(ctx, contestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}

	if contest.Phase != model.PhasePeerReview {
		if !model.CanTransitionPhase(contest.Phase, model.PhasePeerReview) {
			return nil, ErrPhaseTransitionInvalid
		}
		if err := s.repo.Contest.TransitionPhase(ctx, contestID, contest.Phase, model.PhasePeerReview); err != nil {
			if errors.Is(err, pkgerrors.ErrStatusGuard) {
				return nil, ErrPhaseConflict
			}
			return nil, err
		}
		s.logger.Info("比赛进入同行评审阶段", zap.String("contest_id", contestID), zap.String("from", contest.Phase))
		contest.Phase = model.PhasePeerReview
	}

	cfg, err := s.effectiveSettings(ctx, contest)
	if err != nil {
		return nil, err
	}

	subs, err := s.repo.Submission.ListByContestStatuses(ctx, contestID, model.EligibleAuthorStatuses(model.ModeReview))
	if err != nil {
		s.logger.Error("查询参评作品失败", zap.String("contest_id", contestID), zap.Error(err))
		return nil, err
	}

	resp := &dto.StartPeerReviewResponse{
		ContestID:   contestID,
		Phase:       contest.Phase,
		Submissions: len(subs),
		Report:      dto.NewOperationReport(),
	}
	totals := make(map[string]int)

	for i := range subs {
		panel, created, err := s.assignPanel(ctx, contest, &subs[i], model.ModeReview, cfg)
		if err != nil {
			s.logger.Error("作品分配失败", zap.String("submission_id", subs[i].SubmissionID), zap.Error(err))
			resp.Report.Errorf("作品 %s 分配失败: %v", subs[i].SubmissionID, err)
			continue
		}
		resp.Assignments += panel.Assignments
		resp.Report.Merge(panel.Report)
		for reviewerID, n := range created {
			totals[reviewerID] += n
		}
	}

	s.notifyAssignments(ctx, totals, deadlineFrom(s.now(), cfg))

	s.logger.Info("同行评审分配完成",
		zap.String("contest_id", contestID), zap.Int("submissions", len(subs)),
		zap.Int("assignments", resp.Assignments),
		zap.Int("warnings", len(resp.Report.Warnings)), zap.Int("errors", len(resp.Report.Errors)))
	return resp, nil
}

// ════════════════════════════════════════════════════════════
// SubmitReview
// ════════════════════════════════════════════════════════════

func (s *assignmentService) SubmitReview(ctx context.Context, assignmentID, reviewerID string, req *dto.SubmitReviewRequest) (*dto.SubmitReviewResponse, error) {
	a, err := s.repo.Assignment.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	if a.ReviewerID != reviewerID {
		return nil, ErrAssignmentNotOwned
	}
	if a.Status != model.AssignmentPending {
		return nil, ErrAssignmentNotPending
	}
	now := s.now()
	if now.After(a.Deadline) {
		return nil, ErrAssignmentPastDeadline
	}
	if err := validateReviewShape(a.Mode, req); err != nil {
		return nil, err
	}

	review := &model.Review{
		AssignmentID: a.AssignmentID,
		SubmissionID: a.SubmissionID,
		ReviewerID:   reviewerID,
		Mode:         a.Mode,
		Clarity:      req.Clarity,
		Argument:     req.Argument,
		Style:        req.Style,
		MoralDepth:   req.MoralDepth,
		Decision:     req.Decision,
		Comment:      strings.TrimSpace(req.Comment),
		CreatedAt:    now,
	}

	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if err := txRepo.Assignment.Complete(ctx, a.AssignmentID, now); err != nil {
			return err
		}
		return txRepo.Review.Create(ctx, review)
	})
	if err != nil {
		if errors.Is(err, pkgerrors.ErrStatusGuard) {
			return nil, ErrAssignmentNotPending
		}
		s.logger.Error("提交评审失败", zap.String("assignment_id", assignmentID), zap.Error(err))
		return nil, err
	}

	s.afterReview(ctx, a)

	return &dto.SubmitReviewResponse{
		AssignmentID: a.AssignmentID,
		ReviewID:     review.ReviewID,
		Status:       model.AssignmentDone,
		CompletedAt:  now,
	}, nil
}

// afterReview 评审落库后的派生计算，失败只记日志，下一次评审或阶段结束时会重新计算
func (s *assignmentService) afterReview(ctx context.Context, a *model.Assignment) {
	cfg, err := s.deps.Settings.Get(ctx)
	if err != nil {
		s.logger.Warn("读取评审参数失败，跳过派生计算", zap.Error(err))
		return
	}

	switch a.Mode {
	case model.ModeReview:
		reviews, err := s.repo.Review.ListRatings(ctx, a.SubmissionID)
		if err != nil {
			s.logger.Warn("查询评分失败", zap.String("submission_id", a.SubmissionID), zap.Error(err))
			return
		}
		if len(reviews) < cfg.MinReviewsForScore {
			return
		}
		sub := a.Submission
		if sub == nil {
			if sub, err = s.repo.Submission.GetByID(ctx, a.SubmissionID); err != nil {
				s.logger.Warn("查询作品失败", zap.String("submission_id", a.SubmissionID), zap.Error(err))
				return
			}
		}
		if _, err := aggregateSubmission(ctx, s.repo, sub, cfg.TrimThreshold, s.now()); err != nil {
			s.logger.Warn("重算得分失败", zap.String("submission_id", a.SubmissionID), zap.Error(err))
		}

	case model.ModeVerification:
		if err := s.applyControlAccuracy(ctx, a, cfg); err != nil {
			s.logger.Warn("结算对照准确率失败", zap.String("panel_id", a.PanelID), zap.Error(err))
		}
		if a.IsControl {
			return
		}
		if err := s.tryResolveVerification(ctx, a.SubmissionID); err != nil {
			s.logger.Warn("复核裁决失败", zap.String("submission_id", a.SubmissionID), zap.Error(err))
		}
	}
}

// validateReviewShape review 模式四项评分必填且无裁决；verification 模式只填裁决
func validateReviewShape(mode string, req *dto.SubmitReviewRequest) error {
	ratings := []*int{req.Clarity, req.Argument, req.Style, req.MoralDepth}
	switch mode {
	case model.ModeReview:
		if req.Decision != nil {
			return ErrInvalidReviewShape
		}
		for _, r := range ratings {
			if r == nil || *r < 1 || *r > 5 {
				return ErrInvalidReviewShape
			}
		}
	case model.ModeVerification:
		if req.Decision == nil ||
			(*req.Decision != model.DecisionEliminate && *req.Decision != model.DecisionReinstate) {
			return ErrInvalidReviewShape
		}
		for _, r := range ratings {
			if r != nil {
				return ErrInvalidReviewShape
			}
		}
	default:
		return ErrInvalidReviewShape
	}
	if len([]rune(req.Comment)) > 1000 {
		return ErrInvalidReviewShape
	}
	return nil
}

// ════════════════════════════════════════════════════════════
// 评审人视角
// ════════════════════════════════════════════════════════════

func (s *assignmentService) ListMyAssignments(ctx context.Context, reviewerID string) ([]dto.MyAssignmentResponse, error) {
	items, err := s.repo.Assignment.ListPendingByReviewer(ctx, reviewerID)
	if err != nil {
		s.logger.Error("查询待办评审失败", zap.String("reviewer_id", reviewerID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.MyAssignmentResponse, 0, len(items))
	for _, a := range items {
		r := dto.MyAssignmentResponse{
			AssignmentID: a.AssignmentID,
			PanelID:      a.PanelID,
			Mode:         a.Mode,
			AssignedAt:   a.AssignedAt,
			Deadline:     a.Deadline,
		}
		if a.Submission != nil {
			r.SubmissionCode = a.Submission.Code
			r.Title = a.Submission.Title
			r.Body = a.Submission.Body
		}
		result = append(result, r)
	}
	return result, nil
}

func (s *assignmentService) MyDeadlineCalendar(ctx context.Context, reviewerID string) (string, error) {
	items, err := s.repo.Assignment.ListPendingByReviewer(ctx, reviewerID)
	if err != nil {
		return "", err
	}

	// 同一盲审包合并为一个日程
	type group struct {
		deadline time.Time
		codes    []string
	}
	groups := make(map[string]*group)
	for _, a := range items {
		g, ok := groups[a.PanelID]
		if !ok {
			g = &group{deadline: a.Deadline}
			groups[a.PanelID] = g
		}
		if a.Deadline.Before(g.deadline) {
			g.deadline = a.Deadline
		}
		if a.Submission != nil {
			g.codes = append(g.codes, a.Submission.Code)
		}
	}
	panelIDs := make([]string, 0, len(groups))
	for id := range groups {
		panelIDs = append(panelIDs, id)
	}
	sort.Strings(panelIDs)

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//contest-review//review deadlines//ZH")
	cal.SetName("评审截止时间")

	stamp := s.now()
	for _, id := range panelIDs {
		g := groups[id]
		sort.Strings(g.codes)

		event := cal.AddEvent(id + "@contest-review")
		event.SetDtStampTime(stamp)
		event.SetStartAt(g.deadline.Add(-time.Hour))
		event.SetEndAt(g.deadline)
		event.SetSummary(fmt.Sprintf("评审截止（%d 项）", len(g.codes)))
		event.SetDescription("作品编号: " + strings.Join(g.codes, ", "))

		alarm := event.AddAlarm()
		alarm.SetAction(ics.ActionDisplay)
		alarm.SetTrigger("-PT24H")
	}

	return cal.Serialize(), nil
}
