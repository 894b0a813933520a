package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"contest-review/internal/dto"
	"contest-review/internal/model"
	"contest-review/internal/repository"
	pkgerrors "contest-review/pkg/errors"
	"contest-review/pkg/retry"
)

// ── 分配引擎公共错误 ──

var (
	ErrSubmissionNotFound = errors.New("作品不存在")
)

// EngineDeps 分配、清扫与阶段控制共用的依赖
type EngineDeps struct {
	Eligibility      EligibilityResolver
	Settings         SettingsProvider
	Notifier         Notifier
	Retry            retry.Policy
	Rand             Rand
	PanelConcurrency int
	// Now 为 nil 时使用 time.Now
	Now func() time.Time
}

// engine 评审引擎核心：组建评审团、创建盲审包、复核裁决
type engine struct {
	repo   *repository.Repository
	deps   EngineDeps
	logger *zap.Logger
}

func newEngine(repo *repository.Repository, deps EngineDeps, logger *zap.Logger) *engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Rand == nil {
		deps.Rand = NewTimeSeededRand()
	}
	if deps.PanelConcurrency <= 0 {
		deps.PanelConcurrency = 4
	}
	return &engine{repo: repo, deps: deps, logger: logger}
}

func (e *engine) now() time.Time { return e.deps.Now().UTC() }

// effectiveSettings 全局参数叠加比赛级规则
func (e *engine) effectiveSettings(ctx context.Context, contest *model.Contest) (model.ReviewSetting, error) {
	cfg, err := e.deps.Settings.Get(ctx)
	if err != nil {
		return cfg, err
	}
	return cfg.Effective(contest.VotingRules.Data()), nil
}

func panelSizeFor(cfg model.ReviewSetting, mode string) int {
	if mode == model.ModeVerification {
		return cfg.VerificationPanelSize
	}
	return cfg.PanelSize
}

func deadlineFrom(now time.Time, cfg model.ReviewSetting) time.Time {
	return now.Add(time.Duration(cfg.DeadlineDays) * 24 * time.Hour)
}

// controlPools 比赛内可作为对照的作品
type controlPools struct {
	positive []model.Submission
	negative []model.Submission
}

func (e *engine) loadControlPools(ctx context.Context, contestID string, report *dto.OperationReport) (*controlPools, error) {
	positive, err := e.repo.Submission.ListByContestStatuses(ctx, contestID, []string{model.SubmissionSubmitted})
	if err != nil {
		return nil, err
	}
	negative, err := e.repo.Submission.ListByContestStatuses(ctx, contestID, []string{model.SubmissionEliminatedAccepted})
	if err != nil {
		return nil, err
	}
	if len(positive) == 0 {
		report.Warnf("比赛 %s 无可用的正向对照作品，盲审包将缺少该槽位", contestID)
	}
	if len(negative) == 0 {
		report.Warnf("比赛 %s 无可用的负向对照作品，盲审包将缺少该槽位", contestID)
	}
	return &controlPools{positive: positive, negative: negative}, nil
}

// panelSpec 为一名评审人构建盲审包所需的参数
type panelSpec struct {
	contestID  string
	target     *model.Submission
	reviewer   model.User
	mode       string
	controls   *controlPools // review 模式为 nil
	deadline   time.Time
	replacesID *string
}

// buildPanel 组装一名评审人的分配记录
// 对照作品排除目标本身、评审人自己的作品以及评审人已持有有效分配的作品
func (e *engine) buildPanel(ctx context.Context, spec panelSpec) ([]model.Assignment, error) {
	var cs controlSet
	if spec.mode == model.ModeVerification && spec.controls != nil {
		held, err := e.repo.Assignment.ListActiveSubmissionIDsByReviewer(ctx, spec.reviewer.UserID)
		if err != nil {
			return nil, err
		}
		heldSet := make(map[string]bool, len(held))
		for _, id := range held {
			heldSet[id] = true
		}
		accept := func(s *model.Submission) bool {
			return s.SubmissionID != spec.target.SubmissionID &&
				s.AuthorID != spec.reviewer.UserID &&
				!heldSet[s.SubmissionID]
		}
		cs.Positive = pickControl(e.deps.Rand, spec.controls.positive, accept)
		cs.Negative = pickControl(e.deps.Rand, spec.controls.negative, accept)
	}

	now := e.now()
	panelID := uuid.NewString()
	items := buildBlindPanel(e.deps.Rand, *spec.target, cs)

	assignments := make([]model.Assignment, 0, len(items))
	for _, it := range items {
		a := model.Assignment{
			AssignmentID:     uuid.NewString(),
			ContestID:        spec.contestID,
			SubmissionID:     it.Submission.SubmissionID,
			ReviewerID:       spec.reviewer.UserID,
			Mode:             spec.mode,
			PanelID:          panelID,
			IsControl:        it.IsControl,
			ExpectedDecision: it.ExpectedDecision,
			Status:           model.AssignmentPending,
			AssignedAt:       now,
			Deadline:         spec.deadline,
		}
		if !it.IsControl {
			a.ReplacesID = spec.replacesID
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

// createPanel 一名评审人的全部分配在单条 INSERT 中写入，要么全部成功要么全部失败
// 暂时性错误按重试策略重试；唯一约束冲突不重试
func (e *engine) createPanel(ctx context.Context, items []model.Assignment) error {
	policy := e.deps.Retry.
		WithRetryable(retry.Unless(pkgerrors.ErrDuplicateActive)).
		WithOnRetry(func(err error, wait time.Duration) {
			e.logger.Warn("写入评审分配失败，准备重试", zap.Duration("wait", wait), zap.Error(err))
		})
	return policy.Do(ctx, func(ctx context.Context) error {
		return e.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
			return txRepo.Assignment.BulkCreate(ctx, items)
		})
	})
}

// activeTargetCount 作品在指定模式下作为目标的 pending/done 分配数
func (e *engine) activeTargetCount(ctx context.Context, submissionID, mode string) (int, error) {
	pending, err := e.repo.Assignment.CountTargets(ctx, submissionID, mode, model.AssignmentPending)
	if err != nil {
		return 0, err
	}
	done, err := e.repo.Assignment.CountTargets(ctx, submissionID, mode, model.AssignmentDone)
	if err != nil {
		return 0, err
	}
	return int(pending + done), nil
}

// assignPanel 为目标作品补足评审团
// 返回结果报告与每名评审人新建的分配数；只有资格查询等前置读取失败才返回 error
func (e *engine) assignPanel(ctx context.Context, contest *model.Contest, target *model.Submission, mode string, cfg model.ReviewSetting) (dto.PanelAssignment, map[string]int, error) {
	result := dto.PanelAssignment{
		SubmissionID: target.SubmissionID,
		Mode:         mode,
		Report:       dto.NewOperationReport(),
	}
	created := make(map[string]int)

	// 唯一约束不区分模式，所有持有有效分配的人都排除在候选之外；
	// 评审团人数只计同模式的目标行，作为对照被抽中的记录不占名额
	active, err := e.repo.Assignment.ListReviewerIDs(ctx, target.SubmissionID, true)
	if err != nil {
		return result, nil, err
	}
	filled, err := e.activeTargetCount(ctx, target.SubmissionID, mode)
	if err != nil {
		return result, nil, err
	}

	size := panelSizeFor(cfg, mode)
	needed := size - filled
	if needed <= 0 {
		return result, created, nil
	}
	result.Requested = needed

	pool, err := e.deps.Eligibility.ResolveEligibleReviewers(ctx, contest.ContestID, mode, target.AuthorID, active)
	if err != nil {
		return result, nil, err
	}
	if len(pool) == 0 {
		result.Report.Warnf("作品 %s 无可用评审人（需要 %d 名）", target.SubmissionID, needed)
		return result, created, nil
	}
	if len(pool) < needed {
		result.Report.Warnf("作品 %s 仅有 %d/%d 名评审人可用", target.SubmissionID, len(pool), needed)
	}

	reviewers := selectReviewers(e.deps.Rand, pool, needed)

	var pools *controlPools
	if mode == model.ModeVerification {
		pools, err = e.loadControlPools(ctx, contest.ContestID, &result.Report)
		if err != nil {
			return result, nil, err
		}
	}

	deadline := deadlineFrom(e.now(), cfg)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.deps.PanelConcurrency)

	for _, reviewer := range reviewers {
		reviewer := reviewer
		g.Go(func() error {
			items, err := e.buildPanel(gctx, panelSpec{
				contestID: contest.ContestID,
				target:    target,
				reviewer:  reviewer,
				mode:      mode,
				controls:  pools,
				deadline:  deadline,
			})
			if err == nil {
				err = e.createPanel(gctx, items)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Warn("评审人分配失败",
					zap.String("submission_id", target.SubmissionID),
					zap.String("reviewer_id", reviewer.UserID), zap.Error(err))
				result.Report.Errorf("评审人 %s 分配失败: %v", reviewer.UserID, err)
				return nil
			}
			result.Assigned++
			result.Assignments += len(items)
			created[reviewer.UserID] += len(items)
			return nil
		})
	}
	// 单个评审人失败不会中断批次，Wait 只用于汇合
	_ = g.Wait()

	e.logger.Info("评审团分配完成",
		zap.String("submission_id", target.SubmissionID), zap.String("mode", mode),
		zap.Int("requested", needed), zap.Int("assigned", result.Assigned))
	return result, created, nil
}

// notifyAssignments 每名评审人一封汇总通知；失败只记日志
func (e *engine) notifyAssignments(ctx context.Context, created map[string]int, deadline time.Time) {
	for reviewerID, count := range created {
		if count == 0 {
			continue
		}
		if err := e.deps.Notifier.SendAssignmentNotification(ctx, reviewerID, count, deadline); err != nil {
			e.logger.Warn("发送分配通知失败", zap.String("reviewer_id", reviewerID), zap.Error(err))
		}
	}
}

// ── 复核：对照准确率与裁决 ──

// panelControlResult 检查一个盲审包的对照题作答情况
// hasControls=false 表示该包没有对照题或对照题尚未全部作答
func (e *engine) panelControlResult(ctx context.Context, panelID string) (hasControls bool, wrong int, err error) {
	items, err := e.repo.Assignment.ListByPanel(ctx, panelID)
	if err != nil {
		return false, 0, err
	}
	expected := make(map[string]string)
	var ids []string
	for _, a := range items {
		if a.IsControl && a.ExpectedDecision != nil {
			expected[a.AssignmentID] = *a.ExpectedDecision
			ids = append(ids, a.AssignmentID)
		}
	}
	if len(ids) == 0 {
		return false, 0, nil
	}
	reviews, err := e.repo.Review.ListByAssignments(ctx, ids)
	if err != nil {
		return false, 0, err
	}
	if len(reviews) < len(ids) {
		return false, 0, nil
	}
	for _, r := range reviews {
		if r.Decision == nil || *r.Decision != expected[r.AssignmentID] {
			wrong++
		}
	}
	return true, wrong, nil
}

// applyControlAccuracy 盲审包全部完成后结算评审人的对照准确率
// 答错对照题按题扣诚信分；全部答对则标记为合格评审人
// 每个盲审包只结算一次：结算标记与扣分在同一事务中写入，并发的重复结算被条件更新挡下
func (e *engine) applyControlAccuracy(ctx context.Context, a *model.Assignment, cfg model.ReviewSetting) error {
	items, err := e.repo.Assignment.ListByPanel(ctx, a.PanelID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.Status != model.AssignmentDone {
			return nil
		}
	}

	hasControls, wrong, err := e.panelControlResult(ctx, a.PanelID)
	if err != nil || !hasControls {
		return err
	}

	err = e.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.Assignment.MarkControlsSettled(ctx, a.PanelID, e.now()); err != nil {
			return err
		}
		if wrong == 0 {
			return tx.User.SetQualified(ctx, a.ReviewerID)
		}
		if cfg.ControlFailurePenalty > 0 {
			return tx.User.AdjustIntegrity(ctx, a.ReviewerID, -cfg.ControlFailurePenalty*wrong)
		}
		return nil
	})
	if errors.Is(err, pkgerrors.ErrStatusGuard) {
		return nil
	}
	if err != nil {
		return err
	}
	if wrong > 0 {
		e.logger.Info("评审人对照题答错",
			zap.String("reviewer_id", a.ReviewerID), zap.String("panel_id", a.PanelID), zap.Int("wrong", wrong))
	}
	return nil
}

// tryResolveVerification 复核目标满足条件时给出裁决
// 条件：裁决数达到复核评审团规模，或已无待完成的目标分配且至少有一条裁决
// 优先采用对照题全对的评审人的票，没有可信票时使用全部票；平票维持淘汰
func (e *engine) tryResolveVerification(ctx context.Context, submissionID string) error {
	sub, err := e.repo.Submission.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}
	if sub.Status != model.SubmissionPeerVerificationPending {
		return nil
	}
	contest, err := e.repo.Contest.GetByID(ctx, sub.ContestID)
	if err != nil {
		return err
	}
	cfg, err := e.effectiveSettings(ctx, contest)
	if err != nil {
		return err
	}

	decisions, err := e.repo.Review.ListTargetDecisions(ctx, submissionID)
	if err != nil {
		return err
	}
	pending, err := e.repo.Assignment.CountTargets(ctx, submissionID, model.ModeVerification, model.AssignmentPending)
	if err != nil {
		return err
	}
	if len(decisions) == 0 || (len(decisions) < cfg.VerificationPanelSize && pending > 0) {
		return nil
	}

	var trusted []repository.TargetDecision
	for _, d := range decisions {
		hasControls, wrong, err := e.panelControlResult(ctx, d.PanelID)
		if err != nil {
			return err
		}
		if hasControls && wrong == 0 {
			trusted = append(trusted, d)
		}
	}
	votes := trusted
	if len(votes) == 0 {
		votes = decisions
	}

	outcome, status := decideVerification(votes)
	if err := e.repo.Submission.ResolveVerification(ctx, submissionID, status, outcome); err != nil {
		if errors.Is(err, pkgerrors.ErrStatusGuard) {
			return nil
		}
		return err
	}

	e.logger.Info("同行复核完成",
		zap.String("submission_id", submissionID), zap.String("outcome", outcome),
		zap.Int("votes", len(votes)), zap.Int("trusted", len(trusted)))
	if err := e.deps.Notifier.SendVerificationOutcome(ctx, sub.AuthorID, submissionID, outcome); err != nil {
		e.logger.Warn("发送复核结果通知失败", zap.String("submission_id", submissionID), zap.Error(err))
	}
	return nil
}

// decideVerification 多数票决定恢复或维持淘汰，平票维持淘汰
func decideVerification(votes []repository.TargetDecision) (outcome, status string) {
	reinstate := 0
	for _, v := range votes {
		if v.Decision == model.DecisionReinstate {
			reinstate++
		}
	}
	if reinstate*2 > len(votes) {
		return model.SubmissionReinstated, model.SubmissionReinstated
	}
	return model.SubmissionEliminated, model.SubmissionEliminated
}
