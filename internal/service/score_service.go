package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"contest-review/internal/dto"
	"contest-review/internal/model"
	"contest-review/internal/repository"
)

// ── 评分模块业务错误 ──

var (
	ErrContestNotFound    = errors.New("比赛不存在")
	ErrNoReviews          = errors.New("该作品尚无评分")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ScoreService 评分聚合与排名业务接口
type ScoreService interface {
	// Aggregate 重算单篇作品的得分快照（不更新排名）
	Aggregate(ctx context.Context, submissionID string) (*model.ScoreSnapshot, error)
	// ListScores 比赛全部快照，按总分降序、submission_id 升序排名
	ListScores(ctx context.Context, contestID string) ([]dto.ScoreResponse, error)
	// ExportScores 导出排名为 Excel
	ExportScores(ctx context.Context, contestID string) (*bytes.Buffer, string, error)
}

type scoreService struct {
	repo     *repository.Repository
	settings SettingsProvider
	now      func() time.Time
	logger   *zap.Logger
}

// NewScoreService 创建 ScoreService 实例
func NewScoreService(repo *repository.Repository, settings SettingsProvider, logger *zap.Logger) ScoreService {
	return &scoreService{repo: repo, settings: settings, now: time.Now, logger: logger}
}

func (s *scoreService) Aggregate(ctx context.Context, submissionID string) (*model.ScoreSnapshot, error) {
	sub, err := s.repo.Submission.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return aggregateSubmission(ctx, s.repo, sub, cfg.TrimThreshold, s.now())
}

func (s *scoreService) ListScores(ctx context.Context, contestID string) ([]dto.ScoreResponse, error) {
	if _, err := s.repo.Contest.GetByID(ctx, contestID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContestNotFound
		}
		return nil, err
	}

	snaps, err := s.repo.Score.ListByContest(ctx, contestID)
	if err != nil {
		s.logger.Error("查询得分快照失败", zap.String("contest_id", contestID), zap.Error(err))
		return nil, err
	}
	rankSnapshots(snaps)

	result := make([]dto.ScoreResponse, 0, len(snaps))
	for i := range snaps {
		result = append(result, toScoreResponse(&snaps[i]))
	}
	return result, nil
}

// ════════════════════════════════════════════════════════════
// ExportScores — 导出排名为 Excel
// ════════════════════════════════════════════════════════════

func (s *scoreService) ExportScores(ctx context.Context, contestID string) (*bytes.Buffer, string, error) {
	contest, err := s.repo.Contest.GetByID(ctx, contestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrContestNotFound
		}
		return nil, "", err
	}
	scores, err := s.ListScores(ctx, contestID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "评审排名"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headers := []string{"排名", "作品ID", "总分", "清晰度", "论证", "文风", "道德深度", "评审数", "去极值"}
	f.SetColWidth(sheetName, "A", "A", 8)
	f.SetColWidth(sheetName, "B", "B", 40)
	f.SetColWidth(sheetName, "C", "I", 12)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s 评审排名", contest.Title))
	f.MergeCell(sheetName, "A1", cell(colName(len(headers)-1), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 2), h)
	}
	f.SetCellStyle(sheetName, "A2", cell(colName(len(headers)-1), 2), headerStyle)

	row := 3
	for _, sc := range scores {
		rank := "-"
		if sc.Rank != nil {
			rank = fmt.Sprintf("%d", *sc.Rank)
		}
		trimmed := "否"
		if sc.Trimmed {
			trimmed = "是"
		}
		values := []interface{}{rank, sc.SubmissionID, sc.Overall, sc.Clarity, sc.Argument, sc.Style, sc.MoralDepth, sc.ReviewCount, trimmed}
		for i, v := range values {
			f.SetCellValue(sheetName, cell(colName(i), row), v)
		}
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	return buf, fmt.Sprintf("评审排名_%s.xlsx", contestID), nil
}

// ── Score Aggregator ────────────────────────────────────────

// aggregateSubmission 读取作品全部评分并写入快照；repo 可为事务内 Repository
func aggregateSubmission(ctx context.Context, repo *repository.Repository, sub *model.Submission, trimThreshold int, now time.Time) (*model.ScoreSnapshot, error) {
	reviews, err := repo.Review.ListRatings(ctx, sub.SubmissionID)
	if err != nil {
		return nil, err
	}
	if len(reviews) == 0 {
		return nil, ErrNoReviews
	}

	snap := computeSnapshot(sub.SubmissionID, sub.ContestID, reviews, trimThreshold, now)
	if err := repo.Score.Upsert(ctx, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// computeSnapshot 各维度均值（达到阈值时去掉一个最高和一个最低），总分为四个维度均值的平均
func computeSnapshot(submissionID, contestID string, reviews []model.Review, trimThreshold int, now time.Time) model.ScoreSnapshot {
	var clarity, argument, style, moral []int
	for _, r := range reviews {
		if r.Clarity == nil || r.Argument == nil || r.Style == nil || r.MoralDepth == nil {
			continue
		}
		clarity = append(clarity, *r.Clarity)
		argument = append(argument, *r.Argument)
		style = append(style, *r.Style)
		moral = append(moral, *r.MoralDepth)
	}

	c, trimmed := trimmedMean(clarity, trimThreshold)
	a, _ := trimmedMean(argument, trimThreshold)
	st, _ := trimmedMean(style, trimThreshold)
	m, _ := trimmedMean(moral, trimThreshold)

	return model.ScoreSnapshot{
		SubmissionID: submissionID,
		ContestID:    contestID,
		Overall:      (c + a + st + m) / 4,
		Clarity:      c,
		Argument:     a,
		Style:        st,
		MoralDepth:   m,
		ReviewCount:  len(clarity),
		Trimmed:      trimmed,
		ComputedAt:   now,
	}
}

// trimmedMean 样本数 >= threshold 时去掉一个最小值和一个最大值后求均值
// 返回值第二项表示是否做了去极值
func trimmedMean(values []int, threshold int) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)

	trimmed := false
	if threshold > 0 && len(sorted) >= threshold && len(sorted) > 2 {
		sorted = sorted[1 : len(sorted)-1]
		trimmed = true
	}

	sum := 0
	for _, v := range sorted {
		sum += v
	}
	return float64(sum) / float64(len(sorted)), trimmed
}

// rankSnapshots 按总分降序排序并写入 1..n 名次，同分按 submission_id 升序
func rankSnapshots(snaps []model.ScoreSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].Overall != snaps[j].Overall {
			return snaps[i].Overall > snaps[j].Overall
		}
		return snaps[i].SubmissionID < snaps[j].SubmissionID
	})
	for i := range snaps {
		rank := i + 1
		snaps[i].Rank = &rank
	}
}

func toScoreResponse(m *model.ScoreSnapshot) dto.ScoreResponse {
	return dto.ScoreResponse{
		SubmissionID: m.SubmissionID,
		Rank:         m.Rank,
		Overall:      m.Overall,
		Clarity:      m.Clarity,
		Argument:     m.Argument,
		Style:        m.Style,
		MoralDepth:   m.MoralDepth,
		ReviewCount:  m.ReviewCount,
		Trimmed:      m.Trimmed,
		ComputedAt:   m.ComputedAt,
	}
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
