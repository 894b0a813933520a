package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"contest-review/internal/dto"
	"contest-review/internal/model"
	"contest-review/internal/repository"
	"contest-review/pkg/redis"
)

const sweepLockName = "review:sweep"

// Locker 分布式锁；*redis.Client 实现该接口
// 返回 (nil, nil) 表示锁已被占用
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (*redis.Lock, error)
}

// SweepService 截止清扫：过期 → 扣分 → 重新分配 → 复核补员 → 截止提醒
type SweepService interface {
	RunSweep(ctx context.Context) (*dto.SweepResponse, error)
	ListRuns(ctx context.Context, limit int) ([]model.SweepRun, error)
}

type sweepService struct {
	*engine
	locker  Locker
	lockTTL time.Duration
}

// NewSweepService 创建 SweepService；locker 为 nil 时不加锁（单实例部署或测试）
func NewSweepService(repo *repository.Repository, deps EngineDeps, locker Locker, lockTTL time.Duration, logger *zap.Logger) SweepService {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &sweepService{
		engine:  newEngine(repo, deps, logger),
		locker:  locker,
		lockTTL: lockTTL,
	}
}

// sweepState 单次清扫内的缓存与汇总
type sweepState struct {
	cfg      model.ReviewSetting
	contests map[string]*model.Contest
	controls map[string]*controlPools
	notify   map[string]*reminder
	// noPool 本轮重新分配时已确认无人可替补的作品，补员时跳过
	noPool map[string]bool
	report dto.OperationReport
}

// reminder 按评审人聚合的通知内容
type reminder struct {
	count    int
	deadline time.Time
	ids      []string
}

func (r *reminder) add(id string, deadline time.Time) {
	if r.count == 0 || deadline.Before(r.deadline) {
		r.deadline = deadline
	}
	r.count++
	if id != "" {
		r.ids = append(r.ids, id)
	}
}

func (s *sweepService) RunSweep(ctx context.Context) (*dto.SweepResponse, error) {
	resp := &dto.SweepResponse{Report: dto.NewOperationReport()}

	if s.locker != nil {
		lock, err := s.locker.TryLock(ctx, sweepLockName, s.lockTTL)
		if err != nil {
			s.logger.Error("获取清扫锁失败", zap.Error(err))
			return nil, err
		}
		if lock == nil {
			s.logger.Info("上一轮清扫仍在运行，跳过本次")
			resp.Skipped = true
			return resp, nil
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				s.logger.Warn("释放清扫锁失败", zap.Error(err))
			}
		}()
	}

	cfg, err := s.deps.Settings.Get(ctx)
	if err != nil {
		s.logger.Error("读取评审参数失败", zap.Error(err))
		return nil, err
	}

	now := s.now()
	run := &model.SweepRun{
		RunID:     uuid.NewString(),
		StartedAt: now,
		Warnings:  datatypes.JSON("[]"),
		Errors:    datatypes.JSON("[]"),
	}
	if err := s.repo.SweepRun.Create(ctx, run); err != nil {
		// 运行记录只用于审计，写入失败不阻止清扫
		s.logger.Warn("写入清扫记录失败", zap.Error(err))
		run.RunID = ""
	}
	resp.RunID = run.RunID

	st := &sweepState{
		cfg:      cfg,
		contests: make(map[string]*model.Contest),
		controls: make(map[string]*controlPools),
		notify:   make(map[string]*reminder),
		noPool:   make(map[string]bool),
		report:   dto.NewOperationReport(),
	}

	// 1. 过期：先完成全部过期迁移再做重新分配
	expired, err := s.repo.Assignment.ExpireLapsed(ctx, now)
	if err != nil {
		s.logger.Error("过期迁移失败", zap.Error(err))
		st.report.Errorf("过期迁移失败: %v", err)
	}
	resp.Expired = len(expired)

	// 2. 扣分：每条过期记录扣一次
	s.penalizeLapsed(ctx, st, expired)

	// 3. 重新分配
	sort.Slice(expired, func(i, j int) bool { return expired[i].AssignmentID < expired[j].AssignmentID })
	for i := range expired {
		if s.reassign(ctx, st, &expired[i]) {
			resp.Reassigned++
		}
	}

	// 4. 复核补员：没有任何有效目标分配的复核作品重新组建评审团
	resp.Restaffed = s.restaffStranded(ctx, st)

	for reviewerID, r := range st.notify {
		if err := s.deps.Notifier.SendAssignmentNotification(ctx, reviewerID, r.count, r.deadline); err != nil {
			s.logger.Warn("发送分配通知失败", zap.String("reviewer_id", reviewerID), zap.Error(err))
		}
	}

	// 5. 截止提醒
	resp.Reminded = s.sendWarnings(ctx, st, now)

	resp.Report = st.report
	s.finishRun(ctx, run, resp)

	s.logger.Info("清扫完成",
		zap.String("run_id", resp.RunID), zap.Int("expired", resp.Expired),
		zap.Int("reassigned", resp.Reassigned), zap.Int("restaffed", resp.Restaffed),
		zap.Int("reminded", resp.Reminded),
		zap.Int("warnings", len(resp.Report.Warnings)), zap.Int("errors", len(resp.Report.Errors)))
	return resp, nil
}

func (s *sweepService) ListRuns(ctx context.Context, limit int) ([]model.SweepRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.SweepRun.ListRecent(ctx, limit)
}

func (s *sweepService) penalizeLapsed(ctx context.Context, st *sweepState, expired []model.Assignment) {
	if st.cfg.MissedReviewPenalty <= 0 {
		return
	}
	missed := make(map[string]int)
	for _, a := range expired {
		missed[a.ReviewerID]++
	}
	for reviewerID, n := range missed {
		if err := s.repo.User.AdjustIntegrity(ctx, reviewerID, -st.cfg.MissedReviewPenalty*n); err != nil {
			s.logger.Warn("扣减诚信分失败", zap.String("reviewer_id", reviewerID), zap.Error(err))
			st.report.Errorf("评审人 %s 扣分失败: %v", reviewerID, err)
		}
	}
}

func (s *sweepService) contest(ctx context.Context, st *sweepState, id string) (*model.Contest, error) {
	if c, ok := st.contests[id]; ok {
		return c, nil
	}
	c, err := s.repo.Contest.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	st.contests[id] = c
	return c, nil
}

// reassign 为一条过期的目标分配补一名新评审人，返回是否成功创建
// 对照记录不补；新评审人排除作者与该作品历史上的全部评审人
func (s *sweepService) reassign(ctx context.Context, st *sweepState, expired *model.Assignment) bool {
	if expired.IsControl {
		return false
	}
	log := s.logger.With(zap.String("assignment_id", expired.AssignmentID), zap.String("submission_id", expired.SubmissionID))

	sub, err := s.repo.Submission.GetByID(ctx, expired.SubmissionID)
	if err != nil {
		log.Warn("查询作品失败", zap.Error(err))
		st.report.Errorf("分配 %s 重新分配失败: %v", expired.AssignmentID, err)
		return false
	}
	contest, err := s.contest(ctx, st, sub.ContestID)
	if err != nil {
		log.Warn("查询比赛失败", zap.Error(err))
		st.report.Errorf("分配 %s 重新分配失败: %v", expired.AssignmentID, err)
		return false
	}

	switch expired.Mode {
	case model.ModeVerification:
		if sub.Status != model.SubmissionPeerVerificationPending {
			return false
		}
	case model.ModeReview:
		if contest.Phase != model.PhasePeerReview {
			return false
		}
	}

	history, err := s.repo.Assignment.ListReviewerIDs(ctx, sub.SubmissionID, false)
	if err != nil {
		st.report.Errorf("分配 %s 重新分配失败: %v", expired.AssignmentID, err)
		return false
	}
	pool, err := s.deps.Eligibility.ResolveEligibleReviewers(ctx, contest.ContestID, expired.Mode, sub.AuthorID, history)
	if err != nil {
		st.report.Errorf("分配 %s 重新分配失败: %v", expired.AssignmentID, err)
		return false
	}
	if len(pool) == 0 {
		st.noPool[sub.SubmissionID] = true
		st.report.Warnf("作品 %s 无可替补的评审人，需人工处理", sub.SubmissionID)
		if expired.Mode == model.ModeVerification {
			if err := s.tryResolveVerification(ctx, sub.SubmissionID); err != nil {
				log.Warn("复核裁决失败", zap.Error(err))
			}
		}
		return false
	}

	cfg := st.cfg.Effective(contest.VotingRules.Data())
	var controls *controlPools
	if expired.Mode == model.ModeVerification {
		controls = st.controls[contest.ContestID]
		if controls == nil {
			if controls, err = s.loadControlPools(ctx, contest.ContestID, &st.report); err != nil {
				st.report.Errorf("分配 %s 重新分配失败: %v", expired.AssignmentID, err)
				return false
			}
			st.controls[contest.ContestID] = controls
		}
	}

	reviewer := selectReviewers(s.deps.Rand, pool, 1)[0]
	deadline := deadlineFrom(s.now(), cfg)
	replaces := expired.AssignmentID
	items, err := s.buildPanel(ctx, panelSpec{
		contestID:  contest.ContestID,
		target:     sub,
		reviewer:   reviewer,
		mode:       expired.Mode,
		controls:   controls,
		deadline:   deadline,
		replacesID: &replaces,
	})
	if err == nil {
		err = s.createPanel(ctx, items)
	}
	if err != nil {
		log.Warn("重新分配失败", zap.String("reviewer_id", reviewer.UserID), zap.Error(err))
		st.report.Errorf("分配 %s 重新分配给 %s 失败: %v", expired.AssignmentID, reviewer.UserID, err)
		return false
	}

	r := st.notify[reviewer.UserID]
	if r == nil {
		r = &reminder{}
		st.notify[reviewer.UserID] = r
	}
	for range items {
		r.add("", deadline)
	}
	log.Info("已重新分配", zap.String("reviewer_id", reviewer.UserID), zap.Int("items", len(items)))
	return true
}

// restaffStranded 为复核待决但没有 pending/done 目标分配的作品重新分配评审团
// 付费时候选池为空，或全部目标分配过期且无人可替补时会出现这种作品；返回成功补员的作品数
func (s *sweepService) restaffStranded(ctx context.Context, st *sweepState) int {
	subs, err := s.repo.Submission.ListByStatus(ctx, model.SubmissionPeerVerificationPending)
	if err != nil {
		s.logger.Error("查询待复核作品失败", zap.Error(err))
		st.report.Errorf("查询待复核作品失败: %v", err)
		return 0
	}

	restaffed := 0
	for i := range subs {
		sub := &subs[i]
		if st.noPool[sub.SubmissionID] {
			continue
		}
		filled, err := s.activeTargetCount(ctx, sub.SubmissionID, model.ModeVerification)
		if err != nil {
			st.report.Errorf("作品 %s 补员失败: %v", sub.SubmissionID, err)
			continue
		}
		if filled > 0 {
			continue
		}
		contest, err := s.contest(ctx, st, sub.ContestID)
		if err != nil {
			st.report.Errorf("作品 %s 补员失败: %v", sub.SubmissionID, err)
			continue
		}

		cfg := st.cfg.Effective(contest.VotingRules.Data())
		panel, created, err := s.assignPanel(ctx, contest, sub, model.ModeVerification, cfg)
		if err != nil {
			s.logger.Warn("复核补员失败", zap.String("submission_id", sub.SubmissionID), zap.Error(err))
			st.report.Errorf("作品 %s 补员失败: %v", sub.SubmissionID, err)
			continue
		}
		st.report.Merge(panel.Report)
		if panel.Assigned == 0 {
			continue
		}
		restaffed++

		deadline := deadlineFrom(s.now(), cfg)
		for reviewerID, n := range created {
			r := st.notify[reviewerID]
			if r == nil {
				r = &reminder{}
				st.notify[reviewerID] = r
			}
			for j := 0; j < n; j++ {
				r.add("", deadline)
			}
		}
		s.logger.Info("复核作品已补员",
			zap.String("submission_id", sub.SubmissionID), zap.Int("reviewers", panel.Assigned))
	}
	return restaffed
}

// sendWarnings 截止时间落在提醒窗口内的待办，每名评审人一封，返回提醒的评审人数
func (s *sweepService) sendWarnings(ctx context.Context, st *sweepState, now time.Time) int {
	from := now.Add(time.Duration(st.cfg.WarningWindowStartHours) * time.Hour)
	to := now.Add(time.Duration(st.cfg.WarningWindowEndHours) * time.Hour)

	due, err := s.repo.Assignment.ListDueForWarning(ctx, from, to)
	if err != nil {
		s.logger.Error("查询待提醒分配失败", zap.Error(err))
		st.report.Errorf("查询待提醒分配失败: %v", err)
		return 0
	}

	grouped := make(map[string]*reminder)
	for _, a := range due {
		r := grouped[a.ReviewerID]
		if r == nil {
			r = &reminder{}
			grouped[a.ReviewerID] = r
		}
		r.add(a.AssignmentID, a.Deadline)
	}

	reminded := 0
	for reviewerID, r := range grouped {
		if err := s.deps.Notifier.SendDeadlineWarning(ctx, reviewerID, r.count, r.deadline); err != nil {
			s.logger.Warn("发送截止提醒失败", zap.String("reviewer_id", reviewerID), zap.Error(err))
			continue
		}
		if err := s.repo.Assignment.MarkReminded(ctx, r.ids, now); err != nil {
			s.logger.Warn("标记已提醒失败", zap.String("reviewer_id", reviewerID), zap.Error(err))
		}
		reminded++
	}
	return reminded
}

func (s *sweepService) finishRun(ctx context.Context, run *model.SweepRun, resp *dto.SweepResponse) {
	if run.RunID == "" {
		return
	}
	finished := s.now()
	run.FinishedAt = &finished
	run.Expired = resp.Expired
	run.Reassigned = resp.Reassigned
	run.Reminded = resp.Reminded
	run.Warnings = mustJSON(resp.Report.Warnings)
	run.Errors = mustJSON(resp.Report.Errors)
	if err := s.repo.SweepRun.Finish(ctx, run); err != nil {
		s.logger.Warn("更新清扫记录失败", zap.String("run_id", run.RunID), zap.Error(err))
	}
}

func mustJSON(v []string) datatypes.JSON {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}
