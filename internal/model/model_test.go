package model

import (
	"reflect"
	"testing"
)

func TestCanTransitionPhase(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{PhaseSubmissionsClosed, PhasePeerReview, true},
		{PhaseAIFiltering, PhasePeerReview, true},
		{PhasePeerReview, PhasePublicVoting, true},
		{PhaseSubmissionsOpen, PhasePeerReview, false},
		{PhasePeerReview, PhaseFinalized, false},
		{PhasePublicVoting, PhasePeerReview, false},
		{PhaseFinalized, PhaseSubmissionsOpen, false},
		{"unknown", PhasePeerReview, false},
	}
	for _, tc := range cases {
		if got := CanTransitionPhase(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionPhase(%s, %s) = %v，期望 %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsValidPhase(t *testing.T) {
	if !IsValidPhase(PhaseAIFiltering) {
		t.Error("ai_filtering 应为合法阶段")
	}
	if IsValidPhase("voting") {
		t.Error("voting 不应为合法阶段")
	}
}

func TestEligibleAuthorStatuses(t *testing.T) {
	if got := EligibleAuthorStatuses(ModeVerification); !reflect.DeepEqual(got, []string{SubmissionSubmitted, SubmissionEliminated}) {
		t.Errorf("复核模式评审人资格错误: %v", got)
	}
	if got := EligibleAuthorStatuses(ModeReview); !reflect.DeepEqual(got, []string{SubmissionSubmitted, SubmissionReinstated}) {
		t.Errorf("评审模式评审人资格错误: %v", got)
	}
}

func TestReviewSetting_Effective(t *testing.T) {
	base := DefaultReviewSetting()

	got := base.Effective(VotingRules{})
	if got != base {
		t.Errorf("零值规则不应覆盖全局参数: %+v", got)
	}

	got = base.Effective(VotingRules{DeadlineDays: 3, FinalistCount: 5, PanelSize: 4, VerificationPanelSize: 7})
	if got.DeadlineDays != 3 || got.FinalistCount != 5 || got.PanelSize != 4 || got.VerificationPanelSize != 7 {
		t.Errorf("比赛规则应覆盖对应字段: %+v", got)
	}
	if got.MinReviewsForScore != base.MinReviewsForScore || !got.DisqualifyOnMiss {
		t.Error("未覆盖的字段应保持不变")
	}
	if base.DeadlineDays != 7 {
		t.Error("Effective 不应修改接收者")
	}
}
