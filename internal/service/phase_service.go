package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"contest-review/internal/dto"
	"contest-review/internal/model"
	"contest-review/internal/repository"
	pkgerrors "contest-review/pkg/errors"
)

// ── 阶段控制业务错误 ──

var (
	ErrPhaseNotPeerReview = errors.New("比赛不处于同行评审阶段")
	ErrNoAssignments      = errors.New("比赛尚未产生任何评审分配")
)

// PhaseService 比赛阶段控制：只负责 peer_review → public_voting
type PhaseService interface {
	// EndPeerReview 结束同行评审：定稿得分、处理未完成评审、选出决赛作品、推进阶段
	// 前三步与阶段推进在同一事务中，任何一步失败阶段都不会推进
	EndPeerReview(ctx context.Context, contestID string) (*dto.EndPeerReviewResponse, error)
}

type phaseService struct {
	*engine
}

// NewPhaseService 创建 PhaseService 实例
func NewPhaseService(repo *repository.Repository, deps EngineDeps, logger *zap.Logger) PhaseService {
	return &phaseService{engine: newEngine(repo, deps, logger)}
}

// disqualification 事务提交后才发送的取消资格通知
type disqualification struct {
	userID string
	reason string
}

func (s *phaseService) EndPeerReview(ctx context.Context, contestID string) (*dto.EndPeerReviewResponse, error) {
	contest, err := s.repo.Contest.GetByID(ctx, contestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}
	if contest.Phase != model.PhasePeerReview {
		return nil, ErrPhaseNotPeerReview
	}
	count, err := s.repo.Assignment.CountByContest(ctx, contestID, model.ModeReview)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNoAssignments
	}

	cfg, err := s.effectiveSettings(ctx, contest)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resp := &dto.EndPeerReviewResponse{
		ContestID: contestID,
		Finalists: []string{},
		Report:    dto.NewOperationReport(),
	}
	var disqualified []disqualification

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		// (a) 定稿得分
		ids, err := tx.Review.ListRatedSubmissionIDs(ctx, contestID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			sub := &model.Submission{SubmissionID: id, ContestID: contestID}
			if _, err := aggregateSubmission(ctx, tx, sub, cfg.TrimThreshold, now); err != nil {
				if errors.Is(err, ErrNoReviews) {
					continue
				}
				return fmt.Errorf("计算作品 %s 得分: %w", id, err)
			}
			resp.Scored++
		}

		// (b) 未完成评审：pending 扣分，expired 已在清扫时扣过
		outstanding, err := tx.Assignment.ListOutstanding(ctx, contestID, model.ModeReview)
		if err != nil {
			return err
		}
		pending := make(map[string]int)
		missed := make(map[string]int)
		for _, a := range outstanding {
			missed[a.ReviewerID]++
			if a.Status == model.AssignmentPending {
				pending[a.ReviewerID]++
			}
		}
		reviewers := make([]string, 0, len(missed))
		for id := range missed {
			reviewers = append(reviewers, id)
		}
		sort.Strings(reviewers)

		for _, reviewerID := range reviewers {
			if n := pending[reviewerID]; n > 0 && cfg.MissedReviewPenalty > 0 {
				if err := tx.User.AdjustIntegrity(ctx, reviewerID, -cfg.MissedReviewPenalty*n); err != nil {
					return fmt.Errorf("扣减评审人 %s 诚信分: %w", reviewerID, err)
				}
				resp.Penalized++
			}
			if !cfg.DisqualifyOnMiss {
				continue
			}
			done, err := tx.Assignment.CountByReviewer(ctx, contestID, model.ModeReview, reviewerID, model.AssignmentDone)
			if err != nil {
				return err
			}
			reason := fmt.Sprintf("完成了 %d/%d 项必需评审", done, done+int64(missed[reviewerID]))
			rows, err := tx.Submission.Disqualify(ctx, contestID, reviewerID, reason)
			if err != nil {
				return fmt.Errorf("取消评审人 %s 的参赛资格: %w", reviewerID, err)
			}
			if rows > 0 {
				resp.Disqualified++
				disqualified = append(disqualified, disqualification{userID: reviewerID, reason: reason})
			}
		}
		// 截止关闭：剩余 pending 在此置为 expired，清扫不会再为它们扣分或补派
		if resp.Expired, err = tx.Assignment.CloseAtPhaseCutoff(ctx, contestID, model.ModeReview, now); err != nil {
			return err
		}

		// (c) 排名与决赛作品
		snaps, err := tx.Score.ListByContest(ctx, contestID)
		if err != nil {
			return err
		}
		rankSnapshots(snaps)
		for _, snap := range snaps {
			if err := tx.Score.UpdateRank(ctx, snap.SubmissionID, *snap.Rank); err != nil {
				return err
			}
		}
		excluded, err := tx.Submission.ListByContestStatuses(ctx, contestID, []string{model.SubmissionDisqualified})
		if err != nil {
			return err
		}
		skip := make(map[string]bool, len(excluded))
		for _, sub := range excluded {
			skip[sub.SubmissionID] = true
		}
		for _, snap := range snaps {
			if len(resp.Finalists) >= cfg.FinalistCount {
				break
			}
			if skip[snap.SubmissionID] {
				continue
			}
			resp.Finalists = append(resp.Finalists, snap.SubmissionID)
		}
		if len(resp.Finalists) < cfg.FinalistCount {
			resp.Report.Warnf("仅有 %d/%d 篇作品入围决赛", len(resp.Finalists), cfg.FinalistCount)
		}
		if err := tx.Submission.MarkFinalists(ctx, contestID, resp.Finalists); err != nil {
			return err
		}

		// (d) 推进阶段
		if err := tx.Contest.TransitionPhase(ctx, contestID, model.PhasePeerReview, model.PhasePublicVoting); err != nil {
			if errors.Is(err, pkgerrors.ErrStatusGuard) {
				return ErrPhaseConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		s.logger.Error("结束同行评审失败", zap.String("contest_id", contestID), zap.Error(err))
		return nil, err
	}
	resp.Phase = model.PhasePublicVoting

	s.notifyPhaseEnd(ctx, contestID, disqualified)

	s.logger.Info("同行评审阶段结束",
		zap.String("contest_id", contestID), zap.Int("scored", resp.Scored),
		zap.Int("finalists", len(resp.Finalists)), zap.Int("penalized", resp.Penalized),
		zap.Int("disqualified", resp.Disqualified), zap.Int64("expired", resp.Expired))
	return resp, nil
}

// notifyPhaseEnd 取消资格通知与结果通知；失败只记日志
func (s *phaseService) notifyPhaseEnd(ctx context.Context, contestID string, disqualified []disqualification) {
	for _, d := range disqualified {
		if err := s.deps.Notifier.SendDisqualification(ctx, d.userID, contestID, d.reason); err != nil {
			s.logger.Warn("发送取消资格通知失败", zap.String("user_id", d.userID), zap.Error(err))
		}
	}

	subs, err := s.repo.Submission.ListByContestStatuses(ctx, contestID, []string{
		model.SubmissionSubmitted, model.SubmissionReinstated, model.SubmissionDisqualified,
	})
	if err != nil {
		s.logger.Warn("查询作者失败，跳过结果通知", zap.String("contest_id", contestID), zap.Error(err))
		return
	}
	seen := make(map[string]bool, len(subs))
	for _, sub := range subs {
		if seen[sub.AuthorID] {
			continue
		}
		seen[sub.AuthorID] = true
		if err := s.deps.Notifier.SendResultsAvailable(ctx, sub.AuthorID, contestID); err != nil {
			s.logger.Warn("发送结果通知失败", zap.String("user_id", sub.AuthorID), zap.Error(err))
		}
	}
}
