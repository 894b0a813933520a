package service

import (
	"math/rand/v2"
	"sync"
	"time"

	"contest-review/internal/model"
)

// ── Panel Selector ──────────────────────────────────────────
//
// 评审人抽样与盲审包组装，全部为纯函数，随机源由调用方注入以便测试复现。
// ─────────────────────────────────────────────────────────────

// Rand 随机源
type Rand interface {
	IntN(n int) int
}

// lockedRand 并发安全的随机源
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand 创建以 seed 初始化的并发安全随机源
func NewRand(seed uint64) Rand {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewTimeSeededRand 创建以当前时间为种子的随机源
func NewTimeSeededRand() Rand {
	return NewRand(uint64(time.Now().UnixNano()))
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// shuffle 原地 Fisher–Yates 洗牌，仅处理前 k 个位置
func shuffle[T any](rng Rand, items []T, k int) {
	n := len(items)
	if k > n {
		k = n
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		items[i], items[j] = items[j], items[i]
	}
}

// selectReviewers 无放回均匀抽取 target 名评审人；候选池不足时返回整个池
// 不修改入参
func selectReviewers(rng Rand, pool []model.User, target int) []model.User {
	if target <= 0 {
		return nil
	}
	picked := make([]model.User, len(pool))
	copy(picked, pool)
	if len(picked) <= target {
		return picked
	}
	shuffle(rng, picked, target)
	return picked[:target]
}

// controlSet 一名评审人的对照作品
type controlSet struct {
	Positive *model.Submission // 已知合格（submitted）
	Negative *model.Submission // 已知应淘汰（eliminated_accepted）
}

// pickControl 从候选池中随机抽取一篇 accept 返回 true 的作品
// 同一对照作品可被不同评审人重复使用
func pickControl(rng Rand, pool []model.Submission, accept func(*model.Submission) bool) *model.Submission {
	candidates := make([]int, 0, len(pool))
	for i := range pool {
		if accept(&pool[i]) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	picked := pool[candidates[rng.IntN(len(candidates))]]
	return &picked
}

// panelItem 盲审包中的一项
type panelItem struct {
	Submission       model.Submission
	IsControl        bool
	ExpectedDecision *string
}

// buildBlindPanel 目标作品与对照作品拼接后整体洗牌，位置不泄露哪篇是真实目标
func buildBlindPanel(rng Rand, target model.Submission, controls controlSet) []panelItem {
	items := []panelItem{{Submission: target}}
	if controls.Positive != nil {
		expected := model.DecisionReinstate
		items = append(items, panelItem{Submission: *controls.Positive, IsControl: true, ExpectedDecision: &expected})
	}
	if controls.Negative != nil {
		expected := model.DecisionEliminate
		items = append(items, panelItem{Submission: *controls.Negative, IsControl: true, ExpectedDecision: &expected})
	}
	shuffle(rng, items, len(items))
	return items
}
