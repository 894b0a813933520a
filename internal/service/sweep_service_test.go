package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"contest-review/internal/model"
	"contest-review/pkg/redis"
)

// ── 测试辅助 ──

// fakeLocker held=true 时模拟锁已被其他实例持有
type fakeLocker struct {
	held  bool
	calls int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (*redis.Lock, error) {
	l.calls++
	if l.held {
		return nil, nil
	}
	return &redis.Lock{}, nil
}

func setupTestSweepService() (SweepService, *engineFixture, *fakeLocker) {
	f := newEngineFixture()
	locker := &fakeLocker{}
	return NewSweepService(f.repo, f.deps, locker, time.Minute, zap.NewNop()), f, locker
}

// seedLapsedReview r1 在第 0 天被分配、第 7 天截止的 review 分配
func seedLapsedReview(f *engineFixture, reviewers ...string) *model.Assignment {
	f.store.addContest("c1", model.PhasePeerReview)
	f.store.addSubmission("s-target", "c1", "author", model.SubmissionSubmitted)
	for _, r := range reviewers {
		f.store.addSubmission("s-"+r, "c1", r, model.SubmissionSubmitted)
	}
	return f.store.addAssignment(model.Assignment{
		ContestID:    "c1",
		SubmissionID: "s-target",
		ReviewerID:   "r1",
		Mode:         model.ModeReview,
		AssignedAt:   testStart,
		Deadline:     testStart.Add(7 * 24 * time.Hour),
	})
}

// ── RunSweep 测试 ──

func TestRunSweep_ExpireAndReassignOnDayEight(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	orig := seedLapsedReview(f, "r1", "r2")
	f.now = testStart.Add(8 * 24 * time.Hour)

	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep 应成功: %v", err)
	}
	if resp.Expired != 1 || resp.Reassigned != 1 {
		t.Fatalf("期望过期 1 条、重新分配 1 条，实际 %d/%d", resp.Expired, resp.Reassigned)
	}
	if f.store.assignments[orig.AssignmentID].Status != model.AssignmentExpired {
		t.Error("原分配应被置为 expired")
	}

	pending := f.store.listAssignments(func(a *model.Assignment) bool {
		return a.SubmissionID == "s-target" && a.Status == model.AssignmentPending
	})
	if len(pending) != 1 {
		t.Fatalf("期望恰好 1 条新的 pending 分配，实际 %d", len(pending))
	}
	next := pending[0]
	if next.ReviewerID == "r1" {
		t.Error("重新分配不应选回原评审人")
	}
	if !next.Deadline.Equal(f.now.Add(7 * 24 * time.Hour)) {
		t.Errorf("新截止时间应为重新分配时刻 + 7 天，实际 %v", next.Deadline)
	}
	if next.ReplacesID == nil || *next.ReplacesID != orig.AssignmentID {
		t.Errorf("新分配应关联被替换的分配，实际 %v", next.ReplacesID)
	}
	if got := f.store.users["r1"].IntegrityScore; got != -1 {
		t.Errorf("逾期评审人应扣 1 分，实际 %d", got)
	}
	if f.notifier.assignments[next.ReviewerID] != 1 {
		t.Errorf("新评审人应收到分配通知，实际 %d", f.notifier.assignments[next.ReviewerID])
	}
}

func TestRunSweep_ExpiryIsIdempotent(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	seedLapsedReview(f, "r1", "r2")
	f.now = testStart.Add(8 * 24 * time.Hour)

	if _, err := svc.RunSweep(context.Background()); err != nil {
		t.Fatalf("首次清扫应成功: %v", err)
	}
	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("第二次清扫应成功: %v", err)
	}
	if resp.Expired != 0 || resp.Reassigned != 0 {
		t.Errorf("第二次清扫不应再过期或分配，实际 %d/%d", resp.Expired, resp.Reassigned)
	}
	if got := f.store.users["r1"].IntegrityScore; got != -1 {
		t.Errorf("同一条逾期只应扣一次分，实际 %d", got)
	}
}

func TestRunSweep_ReassignExcludesHistoricalReviewers(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	seedLapsedReview(f, "r1", "r2", "r3")
	// r2 曾经持有该作品的分配（已过期）
	f.store.addAssignment(model.Assignment{
		ContestID: "c1", SubmissionID: "s-target", ReviewerID: "r2", Mode: model.ModeReview,
		Status: model.AssignmentExpired, AssignedAt: testStart, Deadline: testStart,
	})
	f.now = testStart.Add(8 * 24 * time.Hour)

	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep 应成功: %v", err)
	}
	if resp.Reassigned != 1 {
		t.Fatalf("期望重新分配 1 条，实际 %d", resp.Reassigned)
	}
	pending := f.store.listAssignments(func(a *model.Assignment) bool {
		return a.SubmissionID == "s-target" && a.Status == model.AssignmentPending
	})
	if len(pending) != 1 || pending[0].ReviewerID != "r3" {
		t.Errorf("只有 r3 从未评审过该作品，实际: %+v", pending)
	}
}

func TestRunSweep_EmptyPoolRecordsWarning(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	seedLapsedReview(f, "r1")
	f.now = testStart.Add(8 * 24 * time.Hour)

	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("无替补评审人不应中断清扫: %v", err)
	}
	if resp.Expired != 1 || resp.Reassigned != 0 {
		t.Errorf("期望过期 1 条、重新分配 0 条，实际 %d/%d", resp.Expired, resp.Reassigned)
	}
	if len(resp.Report.Warnings) != 1 {
		t.Errorf("期望 1 条需人工处理的警告，实际: %v", resp.Report.Warnings)
	}
}

func TestRunSweep_SkipsControlsAndClosedPhase(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	f.store.addContest("c1", model.PhasePublicVoting)
	f.store.addSubmission("s-target", "c1", "author", model.SubmissionSubmitted)
	f.store.addSubmission("s-r1", "c1", "r1", model.SubmissionSubmitted)
	f.store.addSubmission("s-r2", "c1", "r2", model.SubmissionSubmitted)
	deadline := testStart.Add(7 * 24 * time.Hour)
	f.store.addAssignment(model.Assignment{
		ContestID: "c1", SubmissionID: "s-target", ReviewerID: "r1", Mode: model.ModeReview,
		AssignedAt: testStart, Deadline: deadline,
	})
	f.store.addAssignment(model.Assignment{
		ContestID: "c1", SubmissionID: "s-r2", ReviewerID: "r1", Mode: model.ModeVerification,
		IsControl: true, ExpectedDecision: strPtr(model.DecisionReinstate), AssignedAt: testStart, Deadline: deadline,
	})
	f.now = testStart.Add(8 * 24 * time.Hour)

	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep 应成功: %v", err)
	}
	if resp.Expired != 2 || resp.Reassigned != 0 {
		t.Errorf("对照题与已结束阶段的分配不应补派，实际过期 %d 重新分配 %d", resp.Expired, resp.Reassigned)
	}
	if got := f.store.users["r1"].IntegrityScore; got != -2 {
		t.Errorf("两条逾期应扣 2 分，实际 %d", got)
	}
}

func TestRunSweep_VerificationReassignGetsFreshPanel(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	f.store.addContest("c1", model.PhaseAIFiltering)
	f.store.addSubmission("s-target", "c1", "author", model.SubmissionPeerVerificationPending)
	f.store.addSubmission("s-r1", "c1", "r1", model.SubmissionSubmitted)
	f.store.addSubmission("s-r2", "c1", "r2", model.SubmissionSubmitted)
	f.store.addSubmission("s-neg", "c1", "x-neg", model.SubmissionEliminatedAccepted)
	orig := f.store.addAssignment(model.Assignment{
		ContestID: "c1", SubmissionID: "s-target", ReviewerID: "r1", Mode: model.ModeVerification,
		AssignedAt: testStart, Deadline: testStart.Add(7 * 24 * time.Hour),
	})
	f.now = testStart.Add(8 * 24 * time.Hour)

	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep 应成功: %v", err)
	}
	if resp.Reassigned != 1 {
		t.Fatalf("期望重新分配 1 条，实际 %d", resp.Reassigned)
	}
	fresh := f.store.listAssignments(func(a *model.Assignment) bool {
		return a.ReviewerID == "r2" && a.Status == model.AssignmentPending
	})
	if len(fresh) != 3 {
		t.Fatalf("替补评审人应拿到完整盲审包（目标 + 两类对照），实际 %d 项", len(fresh))
	}
	for _, a := range fresh {
		if a.IsControl && a.ReplacesID != nil {
			t.Error("对照项不应关联被替换的分配")
		}
		if !a.IsControl && (a.ReplacesID == nil || *a.ReplacesID != orig.AssignmentID) {
			t.Error("目标项应关联被替换的分配")
		}
	}
}

func TestRunSweep_EmptyPoolResolvesVerification(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	f.store.addContest("c1", model.PhaseAIFiltering)
	f.store.addSubmission("s-target", "c1", "author", model.SubmissionPeerVerificationPending)
	f.store.addSubmission("s-r1", "c1", "r1", model.SubmissionSubmitted)
	f.store.addSubmission("s-r2", "c1", "r2", model.SubmissionSubmitted)
	deadline := testStart.Add(7 * 24 * time.Hour)
	done := f.store.addAssignment(model.Assignment{
		ContestID: "c1", SubmissionID: "s-target", ReviewerID: "r2", Mode: model.ModeVerification,
		Status: model.AssignmentDone, AssignedAt: testStart, Deadline: deadline,
	})
	f.store.reviews = append(f.store.reviews, model.Review{
		ReviewID: "rev-r2", AssignmentID: done.AssignmentID, SubmissionID: "s-target",
		ReviewerID: "r2", Mode: model.ModeVerification, Decision: strPtr(model.DecisionReinstate),
	})
	f.store.addAssignment(model.Assignment{
		ContestID: "c1", SubmissionID: "s-target", ReviewerID: "r1", Mode: model.ModeVerification,
		AssignedAt: testStart, Deadline: deadline,
	})
	f.now = testStart.Add(8 * 24 * time.Hour)

	if _, err := svc.RunSweep(context.Background()); err != nil {
		t.Fatalf("RunSweep 应成功: %v", err)
	}
	if got := f.store.submissions["s-target"].Status; got != model.SubmissionReinstated {
		t.Errorf("无法补派且已无待完成分配时应按现有票数裁决，实际 %s", got)
	}
}

func TestRunSweep_DeadlineWarningsGroupedPerReviewer(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	f.store.addContest("c1", model.PhasePeerReview)
	for _, sub := range []string{"s-a", "s-b", "s-c"} {
		f.store.addSubmission(sub, "c1", "author-"+sub, model.SubmissionSubmitted)
	}
	f.store.addUser("r1")
	soon := testStart.Add(23*time.Hour + 30*time.Minute)
	later := testStart.Add(48 * time.Hour)
	for _, sub := range []string{"s-a", "s-b"} {
		f.store.addAssignment(model.Assignment{
			ContestID: "c1", SubmissionID: sub, ReviewerID: "r1", Mode: model.ModeReview,
			AssignedAt: testStart, Deadline: soon,
		})
	}
	f.store.addAssignment(model.Assignment{
		ContestID: "c1", SubmissionID: "s-c", ReviewerID: "r1", Mode: model.ModeReview,
		AssignedAt: testStart, Deadline: later,
	})

	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep 应成功: %v", err)
	}
	if resp.Reminded != 1 {
		t.Errorf("期望提醒 1 名评审人，实际 %d", resp.Reminded)
	}
	if f.notifier.warnings["r1"] != 2 {
		t.Errorf("一封提醒应汇总 2 项待办，实际 %d", f.notifier.warnings["r1"])
	}

	resp, _ = svc.RunSweep(context.Background())
	if resp.Reminded != 0 || f.notifier.warnings["r1"] != 2 {
		t.Errorf("已提醒的分配不应重复提醒，实际 %d / %d", resp.Reminded, f.notifier.warnings["r1"])
	}
}

func TestRunSweep_SkipsWhenLockHeld(t *testing.T) {
	svc, f, locker := setupTestSweepService()
	seedLapsedReview(f, "r1", "r2")
	f.now = testStart.Add(8 * 24 * time.Hour)
	locker.held = true

	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("锁被占用时不应报错: %v", err)
	}
	if !resp.Skipped || resp.Expired != 0 {
		t.Errorf("锁被占用时应跳过，实际: %+v", resp)
	}
	if len(f.store.runs) != 0 {
		t.Error("跳过的清扫不应写入运行记录")
	}
}

func TestRunSweep_RecordsRun(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	seedLapsedReview(f, "r1")
	f.now = testStart.Add(8 * 24 * time.Hour)

	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep 应成功: %v", err)
	}
	runs, err := svc.ListRuns(context.Background(), 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("期望 1 条运行记录，实际 %d / %v", len(runs), err)
	}
	run := runs[0]
	if run.RunID != resp.RunID || run.FinishedAt == nil || run.Expired != 1 {
		t.Errorf("运行记录内容错误: %+v", run)
	}
	var warnings []string
	if err := json.Unmarshal(run.Warnings, &warnings); err != nil || len(warnings) != 1 {
		t.Errorf("运行记录应包含 1 条警告，实际 %s", string(run.Warnings))
	}
}

func TestRunSweep_RestaffsStrandedVerification(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	f.store.addContest("c1", model.PhaseAIFiltering)
	// 付费时候选池为空，作品停留在待复核且没有任何分配
	f.store.addSubmission("s-target", "c1", "author", model.SubmissionPeerVerificationPending)
	f.store.addSubmission("s-r1", "c1", "r1", model.SubmissionSubmitted)
	f.store.addSubmission("s-r2", "c1", "r2", model.SubmissionSubmitted)
	f.store.addSubmission("s-neg", "c1", "x-neg", model.SubmissionEliminatedAccepted)

	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep 应成功: %v", err)
	}
	if resp.Restaffed != 1 {
		t.Errorf("期望补员 1 件作品，实际 %d", resp.Restaffed)
	}
	targets := f.store.listAssignments(func(a *model.Assignment) bool {
		return a.SubmissionID == "s-target" && !a.IsControl && a.Status == model.AssignmentPending
	})
	if len(targets) != 2 {
		t.Fatalf("候选池内的 2 名评审人都应拿到目标分配，实际 %d", len(targets))
	}
	if f.notifier.assignments["r1"] == 0 || f.notifier.assignments["r2"] == 0 {
		t.Errorf("补员的评审人应收到分配通知，实际 %v", f.notifier.assignments)
	}

	// 已有有效目标分配时不再重复补员
	resp, _ = svc.RunSweep(context.Background())
	if resp.Restaffed != 0 {
		t.Errorf("已补员的作品不应再次补员，实际 %d", resp.Restaffed)
	}
}

func TestRunSweep_StrandedWithoutPoolRecordedInRun(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	f.store.addContest("c1", model.PhaseAIFiltering)
	f.store.addSubmission("s-target", "c1", "author", model.SubmissionPeerVerificationPending)

	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep 应成功: %v", err)
	}
	if resp.Restaffed != 0 {
		t.Errorf("无候选时不应补员，实际 %d", resp.Restaffed)
	}
	var warnings []string
	if err := json.Unmarshal(f.store.runs[0].Warnings, &warnings); err != nil {
		t.Fatalf("运行记录警告应为 JSON: %v", err)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "s-target") {
			found = true
		}
	}
	if !found {
		t.Errorf("无人可分配的待复核作品应写入运行记录警告，实际 %v", warnings)
	}
}

func TestRunSweep_NoDuplicateWarningAfterFailedReassign(t *testing.T) {
	svc, f, _ := setupTestSweepService()
	f.store.addContest("c1", model.PhaseAIFiltering)
	f.store.addSubmission("s-target", "c1", "author", model.SubmissionPeerVerificationPending)
	f.store.addSubmission("s-r1", "c1", "r1", model.SubmissionSubmitted)
	f.store.addAssignment(model.Assignment{
		ContestID: "c1", SubmissionID: "s-target", ReviewerID: "r1", Mode: model.ModeVerification,
		AssignedAt: testStart, Deadline: testStart.Add(7 * 24 * time.Hour),
	})
	f.now = testStart.Add(8 * 24 * time.Hour)

	resp, err := svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("RunSweep 应成功: %v", err)
	}
	mentions := 0
	for _, w := range resp.Report.Warnings {
		if strings.Contains(w, "s-target") {
			mentions++
		}
	}
	if mentions != 1 || resp.Restaffed != 0 {
		t.Errorf("同一作品本轮只应警告一次，实际 %d 条、补员 %d: %v", mentions, resp.Restaffed, resp.Report.Warnings)
	}
}
