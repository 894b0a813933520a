package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"syscall"
	"time"

	"gorm.io/gorm"

	"contest-review/internal/model"
	"contest-review/internal/repository"
	pkgerrors "contest-review/pkg/errors"
)

// ── 共享内存存储 ──
//
// 各 mock repo 共用同一份数据，以便跨表查询（资格、裁决、评分作品）。
// 分配引擎会并发调用 repo，所有方法都持有 mu。

type mockStore struct {
	mu sync.Mutex

	users       map[string]*model.User
	contests    map[string]*model.Contest
	submissions map[string]*model.Submission
	assignments map[string]*model.Assignment
	reviews     []model.Review
	scores      map[string]*model.ScoreSnapshot
	setting     *model.ReviewSetting
	tasks       []model.NotificationTask
	runs        []model.SweepRun

	// bulkFailures 评审人 → 剩余的暂时性写入失败次数
	bulkFailures map[string]int
	bulkCalls    int
	settingsGets int
	seq          int
}

func newMockStore() *mockStore {
	s := model.DefaultReviewSetting()
	return &mockStore{
		users:        make(map[string]*model.User),
		contests:     make(map[string]*model.Contest),
		submissions:  make(map[string]*model.Submission),
		assignments:  make(map[string]*model.Assignment),
		scores:       make(map[string]*model.ScoreSnapshot),
		setting:      &s,
		bulkFailures: make(map[string]int),
	}
}

func (s *mockStore) toRepository() *repository.Repository {
	return &repository.Repository{
		User:         &mockUserRepo{s},
		Contest:      &mockContestRepo{s},
		Submission:   &mockSubmissionRepo{s},
		Assignment:   &mockAssignmentRepo{s},
		Review:       &mockReviewRepo{s},
		Score:        &mockScoreRepo{s},
		Settings:     &mockSettingsRepo{s: s},
		Notification: &mockNotificationRepo{s},
		SweepRun:     &mockSweepRunRepo{s},
	}
}

func (s *mockStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

// ── seed 辅助 ──

func (s *mockStore) addUser(id string) *model.User {
	u := &model.User{UserID: id, DisplayID: id}
	s.users[id] = u
	return u
}

func (s *mockStore) addContest(id, phase string) *model.Contest {
	c := &model.Contest{ContestID: id, Title: "比赛 " + id, Phase: phase}
	s.contests[id] = c
	return c
}

func (s *mockStore) addSubmission(id, contestID, authorID, status string) *model.Submission {
	sub := &model.Submission{
		SubmissionID: id,
		ContestID:    contestID,
		AuthorID:     authorID,
		Status:       status,
		Title:        "作品 " + id,
		Body:         "正文",
		Code:         "C-" + id,
	}
	s.submissions[id] = sub
	if _, ok := s.users[authorID]; !ok {
		s.addUser(authorID)
	}
	return sub
}

func (s *mockStore) addAssignment(a model.Assignment) *model.Assignment {
	if a.AssignmentID == "" {
		a.AssignmentID = s.nextID("asg")
	}
	if a.PanelID == "" {
		a.PanelID = "panel-" + a.AssignmentID
	}
	if a.Status == "" {
		a.Status = model.AssignmentPending
	}
	s.assignments[a.AssignmentID] = &a
	return &a
}

// listAssignments 按条件过滤的快照（调用方已持锁或单线程）
func (s *mockStore) listAssignments(match func(*model.Assignment) bool) []model.Assignment {
	var out []model.Assignment
	for _, a := range s.assignments {
		if match(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignmentID < out[j].AssignmentID })
	return out
}

func isActive(status string) bool {
	return status == model.AssignmentPending || status == model.AssignmentDone
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// ── Mock UserRepository ──

type mockUserRepo struct{ s *mockStore }

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) ListEligibleReviewers(_ context.Context, contestID string, authorStatuses []string, exclude []string) ([]model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.User
	for _, u := range m.s.users {
		if u.IsBanned || contains(exclude, u.UserID) {
			continue
		}
		for _, sub := range m.s.submissions {
			if sub.AuthorID == u.UserID && sub.ContestID == contestID && contains(authorStatuses, sub.Status) {
				out = append(out, *u)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *mockUserRepo) AdjustIntegrity(_ context.Context, userID string, delta int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[userID]; ok {
		u.IntegrityScore += delta
	}
	return nil
}

func (m *mockUserRepo) SetQualified(_ context.Context, userID string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[userID]; ok {
		u.QualifiedEvaluator = true
	}
	return nil
}

// ── Mock ContestRepository ──

type mockContestRepo struct{ s *mockStore }

func (m *mockContestRepo) GetByID(_ context.Context, id string) (*model.Contest, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if c, ok := m.s.contests[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockContestRepo) TransitionPhase(_ context.Context, id, from, to string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.contests[id]
	if !ok || c.Phase != from {
		return pkgerrors.ErrStatusGuard
	}
	c.Phase = to
	return nil
}

// ── Mock SubmissionRepository ──

type mockSubmissionRepo struct{ s *mockStore }

func (m *mockSubmissionRepo) GetByID(_ context.Context, id string) (*model.Submission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if sub, ok := m.s.submissions[id]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSubmissionRepo) ListByContestStatuses(_ context.Context, contestID string, statuses []string) ([]model.Submission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.Submission
	for _, sub := range m.s.submissions {
		if sub.ContestID == contestID && contains(statuses, sub.Status) {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmissionID < out[j].SubmissionID })
	return out, nil
}

func (m *mockSubmissionRepo) ListByStatus(_ context.Context, status string) ([]model.Submission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.Submission
	for _, sub := range m.s.submissions {
		if sub.Status == status {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmissionID < out[j].SubmissionID })
	return out, nil
}

func (m *mockSubmissionRepo) ListByAuthor(_ context.Context, contestID, authorID string) ([]model.Submission, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.Submission
	for _, sub := range m.s.submissions {
		if sub.ContestID == contestID && sub.AuthorID == authorID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (m *mockSubmissionRepo) TransitionStatus(_ context.Context, id, from, to string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sub, ok := m.s.submissions[id]
	if !ok || sub.Status != from {
		return pkgerrors.ErrStatusGuard
	}
	sub.Status = to
	return nil
}

func (m *mockSubmissionRepo) ResolveVerification(_ context.Context, id, to, outcome string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sub, ok := m.s.submissions[id]
	if !ok || sub.Status != model.SubmissionPeerVerificationPending {
		return pkgerrors.ErrStatusGuard
	}
	sub.Status = to
	sub.VerificationOutcome = &outcome
	return nil
}

func (m *mockSubmissionRepo) Disqualify(_ context.Context, contestID, authorID, reason string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, sub := range m.s.submissions {
		if sub.ContestID == contestID && sub.AuthorID == authorID && sub.Status != model.SubmissionDisqualified {
			r := reason
			sub.Status = model.SubmissionDisqualified
			sub.DisqualifyReason = &r
			sub.IsFinalist = false
			n++
		}
	}
	return n, nil
}

func (m *mockSubmissionRepo) MarkFinalists(_ context.Context, contestID string, ids []string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, id := range ids {
		if sub, ok := m.s.submissions[id]; ok && sub.ContestID == contestID && sub.Status != model.SubmissionDisqualified {
			sub.IsFinalist = true
		}
	}
	return nil
}

// ── Mock AssignmentRepository ──

type mockAssignmentRepo struct{ s *mockStore }

func (m *mockAssignmentRepo) BulkCreate(_ context.Context, items []model.Assignment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.bulkCalls++
	if len(items) == 0 {
		return nil
	}
	if n := m.s.bulkFailures[items[0].ReviewerID]; n > 0 {
		m.s.bulkFailures[items[0].ReviewerID] = n - 1
		return syscall.ECONNRESET
	}

	seen := make(map[string]bool)
	for _, it := range items {
		key := it.SubmissionID + "|" + it.ReviewerID
		if seen[key] {
			return pkgerrors.ErrDuplicateActive
		}
		seen[key] = true
		for _, a := range m.s.assignments {
			if a.SubmissionID == it.SubmissionID && a.ReviewerID == it.ReviewerID && isActive(a.Status) {
				return pkgerrors.ErrDuplicateActive
			}
		}
	}
	for _, it := range items {
		cp := it
		m.s.assignments[cp.AssignmentID] = &cp
	}
	return nil
}

func (m *mockAssignmentRepo) GetByID(_ context.Context, id string) (*model.Assignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.assignments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	if sub, ok := m.s.submissions[a.SubmissionID]; ok {
		sc := *sub
		cp.Submission = &sc
	}
	return &cp, nil
}

func (m *mockAssignmentRepo) Complete(_ context.Context, id string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.assignments[id]
	if !ok || a.Status != model.AssignmentPending || a.Deadline.Before(at) {
		return pkgerrors.ErrStatusGuard
	}
	a.Status = model.AssignmentDone
	a.CompletedAt = &at
	return nil
}

func (m *mockAssignmentRepo) ExpireLapsed(_ context.Context, now time.Time) ([]model.Assignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.Assignment
	for _, a := range m.s.assignments {
		if a.Status == model.AssignmentPending && a.Deadline.Before(now) {
			a.Status = model.AssignmentExpired
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) ListReviewerIDs(_ context.Context, submissionID string, activeOnly bool) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	set := make(map[string]bool)
	for _, a := range m.s.assignments {
		if a.SubmissionID == submissionID && (!activeOnly || isActive(a.Status)) {
			set[a.ReviewerID] = true
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockAssignmentRepo) ListPendingByReviewer(_ context.Context, reviewerID string) ([]model.Assignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	items := m.s.listAssignments(func(a *model.Assignment) bool {
		return a.ReviewerID == reviewerID && a.Status == model.AssignmentPending
	})
	for i := range items {
		if sub, ok := m.s.submissions[items[i].SubmissionID]; ok {
			sc := *sub
			items[i].Submission = &sc
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Deadline.Before(items[j].Deadline) })
	return items, nil
}

func (m *mockAssignmentRepo) ListActiveSubmissionIDsByReviewer(_ context.Context, reviewerID string) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var ids []string
	for _, a := range m.s.assignments {
		if a.ReviewerID == reviewerID && isActive(a.Status) {
			ids = append(ids, a.SubmissionID)
		}
	}
	return ids, nil
}

func (m *mockAssignmentRepo) CountTargets(_ context.Context, submissionID, mode, status string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, a := range m.s.assignments {
		if a.SubmissionID == submissionID && a.Mode == mode && a.Status == status && !a.IsControl {
			n++
		}
	}
	return n, nil
}

func (m *mockAssignmentRepo) ListDueForWarning(_ context.Context, from, to time.Time) ([]model.Assignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.listAssignments(func(a *model.Assignment) bool {
		return a.Status == model.AssignmentPending && a.RemindedAt == nil &&
			!a.Deadline.Before(from) && a.Deadline.Before(to)
	}), nil
}

func (m *mockAssignmentRepo) MarkReminded(_ context.Context, ids []string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, id := range ids {
		if a, ok := m.s.assignments[id]; ok && a.RemindedAt == nil {
			t := at
			a.RemindedAt = &t
		}
	}
	return nil
}

func (m *mockAssignmentRepo) ListByPanel(_ context.Context, panelID string) ([]model.Assignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.listAssignments(func(a *model.Assignment) bool { return a.PanelID == panelID }), nil
}

func (m *mockAssignmentRepo) MarkControlsSettled(_ context.Context, panelID string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	settled := false
	for _, a := range m.s.assignments {
		if a.PanelID == panelID && !a.IsControl && a.ControlsSettledAt == nil {
			t := at
			a.ControlsSettledAt = &t
			settled = true
		}
	}
	if !settled {
		return pkgerrors.ErrStatusGuard
	}
	return nil
}

func (m *mockAssignmentRepo) CountByContest(_ context.Context, contestID, mode string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return int64(len(m.s.listAssignments(func(a *model.Assignment) bool {
		return a.ContestID == contestID && a.Mode == mode
	}))), nil
}

func (m *mockAssignmentRepo) CountByReviewer(_ context.Context, contestID, mode, reviewerID, status string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return int64(len(m.s.listAssignments(func(a *model.Assignment) bool {
		return a.ContestID == contestID && a.Mode == mode && a.ReviewerID == reviewerID && a.Status == status
	}))), nil
}

func (m *mockAssignmentRepo) ListOutstanding(_ context.Context, contestID, mode string) ([]model.Assignment, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.listAssignments(func(a *model.Assignment) bool {
		return a.ContestID == contestID && a.Mode == mode &&
			(a.Status == model.AssignmentPending || a.Status == model.AssignmentExpired)
	}), nil
}

func (m *mockAssignmentRepo) CloseAtPhaseCutoff(_ context.Context, contestID, mode string, _ time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, a := range m.s.assignments {
		if a.ContestID == contestID && a.Mode == mode && a.Status == model.AssignmentPending {
			a.Status = model.AssignmentExpired
			n++
		}
	}
	return n, nil
}

// ── Mock ReviewRepository ──

type mockReviewRepo struct{ s *mockStore }

func (m *mockReviewRepo) Create(_ context.Context, review *model.Review) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if review.ReviewID == "" {
		review.ReviewID = m.s.nextID("rev")
	}
	m.s.reviews = append(m.s.reviews, *review)
	return nil
}

func (m *mockReviewRepo) ListRatings(_ context.Context, submissionID string) ([]model.Review, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.Review
	for _, r := range m.s.reviews {
		if r.SubmissionID == submissionID && r.Mode == model.ModeReview {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReviewRepo) ListRatedSubmissionIDs(_ context.Context, contestID string) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	set := make(map[string]bool)
	for _, r := range m.s.reviews {
		if sub, ok := m.s.submissions[r.SubmissionID]; ok && sub.ContestID == contestID && r.Mode == model.ModeReview {
			set[r.SubmissionID] = true
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockReviewRepo) ListByAssignments(_ context.Context, assignmentIDs []string) ([]model.Review, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.Review
	for _, r := range m.s.reviews {
		if contains(assignmentIDs, r.AssignmentID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockReviewRepo) ListTargetDecisions(_ context.Context, submissionID string) ([]repository.TargetDecision, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []repository.TargetDecision
	for _, r := range m.s.reviews {
		a, ok := m.s.assignments[r.AssignmentID]
		if !ok || a.IsControl || r.SubmissionID != submissionID || r.Mode != model.ModeVerification || r.Decision == nil {
			continue
		}
		out = append(out, repository.TargetDecision{ReviewerID: r.ReviewerID, PanelID: a.PanelID, Decision: *r.Decision})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReviewerID < out[j].ReviewerID })
	return out, nil
}

// ── Mock ScoreRepository ──

type mockScoreRepo struct{ s *mockStore }

func (m *mockScoreRepo) Upsert(_ context.Context, snap *model.ScoreSnapshot) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *snap
	if old, ok := m.s.scores[snap.SubmissionID]; ok {
		cp.Rank = old.Rank
	}
	m.s.scores[snap.SubmissionID] = &cp
	return nil
}

func (m *mockScoreRepo) GetBySubmission(_ context.Context, submissionID string) (*model.ScoreSnapshot, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if snap, ok := m.s.scores[submissionID]; ok {
		cp := *snap
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockScoreRepo) ListByContest(_ context.Context, contestID string) ([]model.ScoreSnapshot, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.ScoreSnapshot
	for _, snap := range m.s.scores {
		if snap.ContestID == contestID {
			out = append(out, *snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Rank, out[j].Rank
		switch {
		case ri != nil && rj != nil && *ri != *rj:
			return *ri < *rj
		case ri != nil && rj == nil:
			return true
		case ri == nil && rj != nil:
			return false
		}
		if out[i].Overall != out[j].Overall {
			return out[i].Overall > out[j].Overall
		}
		return out[i].SubmissionID < out[j].SubmissionID
	})
	return out, nil
}

func (m *mockScoreRepo) UpdateRank(_ context.Context, submissionID string, rank int) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if snap, ok := m.s.scores[submissionID]; ok {
		r := rank
		snap.Rank = &r
	}
	return nil
}

// ── Mock SettingsRepository ──

type mockSettingsRepo struct {
	s   *mockStore
	err error
}

func (m *mockSettingsRepo) Get(_ context.Context) (*model.ReviewSetting, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.settingsGets++
	if m.err != nil {
		return nil, m.err
	}
	if m.s.setting == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m.s.setting
	return &cp, nil
}

func (m *mockSettingsRepo) Update(_ context.Context, setting *model.ReviewSetting) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	cp := *setting
	m.s.setting = &cp
	return nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct{ s *mockStore }

func (m *mockNotificationRepo) Enqueue(_ context.Context, tasks []model.NotificationTask) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, t := range tasks {
		if t.TaskID == "" {
			t.TaskID = m.s.nextID("task")
		}
		m.s.tasks = append(m.s.tasks, t)
	}
	return nil
}

func (m *mockNotificationRepo) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]model.NotificationTask, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []model.NotificationTask
	for i := range m.s.tasks {
		t := &m.s.tasks[i]
		if len(out) >= limit {
			break
		}
		if t.Status == model.TaskPending && !t.NextAttemptAt.After(now) {
			t.NextAttemptAt = now.Add(lease)
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) find(id string) *model.NotificationTask {
	for i := range m.s.tasks {
		if m.s.tasks[i].TaskID == id {
			return &m.s.tasks[i]
		}
	}
	return nil
}

func (m *mockNotificationRepo) MarkSent(_ context.Context, id string, at time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if t := m.find(id); t != nil {
		t.Status = model.TaskSent
		t.SentAt = &at
		t.Attempts++
	}
	return nil
}

func (m *mockNotificationRepo) MarkRetry(_ context.Context, id string, attempts int, lastErr string, next time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if t := m.find(id); t != nil {
		t.Attempts = attempts
		t.LastError = lastErr
		t.NextAttemptAt = next
	}
	return nil
}

func (m *mockNotificationRepo) MarkFailed(_ context.Context, id string, attempts int, lastErr string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if t := m.find(id); t != nil {
		t.Status = model.TaskFailed
		t.Attempts = attempts
		t.LastError = lastErr
	}
	return nil
}

// ── Mock SweepRunRepository ──

type mockSweepRunRepo struct{ s *mockStore }

func (m *mockSweepRunRepo) Create(_ context.Context, run *model.SweepRun) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.runs = append(m.s.runs, *run)
	return nil
}

func (m *mockSweepRunRepo) Finish(_ context.Context, run *model.SweepRun) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for i := range m.s.runs {
		if m.s.runs[i].RunID == run.RunID {
			m.s.runs[i] = *run
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *mockSweepRunRepo) ListRecent(_ context.Context, limit int) ([]model.SweepRun, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([]model.SweepRun, 0, len(m.s.runs))
	for i := len(m.s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.s.runs[i])
	}
	return out, nil
}

// ════════════════════════════════════════════════════════════
// 引擎外部依赖的测试替身
// ════════════════════════════════════════════════════════════

// fakeNotifier 记录所有通知调用
type fakeNotifier struct {
	mu            sync.Mutex
	assignments   map[string]int
	warnings      map[string]int
	disqualified  map[string]string
	results       []string
	verifications map[string]string
	err           error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		assignments:   make(map[string]int),
		warnings:      make(map[string]int),
		disqualified:  make(map[string]string),
		verifications: make(map[string]string),
	}
}

func (n *fakeNotifier) SendAssignmentNotification(_ context.Context, reviewerID string, count int, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.assignments[reviewerID] += count
	return n.err
}

func (n *fakeNotifier) SendDeadlineWarning(_ context.Context, reviewerID string, count int, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.warnings[reviewerID] += count
	return nil
}

func (n *fakeNotifier) SendDisqualification(_ context.Context, userID, _, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disqualified[userID] = reason
	return n.err
}

func (n *fakeNotifier) SendResultsAvailable(_ context.Context, userID, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, userID)
	return n.err
}

func (n *fakeNotifier) SendVerificationOutcome(_ context.Context, userID, _, outcome string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications[userID] = outcome
	return n.err
}

// staticSettings 固定参数的 SettingsProvider
type staticSettings struct {
	value model.ReviewSetting
	err   error
}

func (p *staticSettings) Get(context.Context) (model.ReviewSetting, error) { return p.value, p.err }
func (p *staticSettings) Refresh(context.Context) error                    { return nil }
func (p *staticSettings) Invalidate(context.Context) error                 { return nil }

// failingEligibility 资格查询失败
type failingEligibility struct{}

func (failingEligibility) ResolveEligibleReviewers(context.Context, string, string, string, []string) ([]model.User, error) {
	return nil, errors.New("数据库不可用")
}
