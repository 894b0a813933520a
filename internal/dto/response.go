package dto

import "fmt"

// ── 批处理结果 ──

// OperationReport 批处理操作的部分成功报告
// 单个评审人/单条分配的失败与资源不足都记录在这里，不中断整个批次
type OperationReport struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewOperationReport 创建空报告（JSON 序列化为 [] 而非 null）
func NewOperationReport() OperationReport {
	return OperationReport{Errors: []string{}, Warnings: []string{}}
}

// Warnf 追加一条警告
func (r *OperationReport) Warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Errorf 追加一条错误
func (r *OperationReport) Errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Merge 合并另一份报告
func (r *OperationReport) Merge(other OperationReport) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// HasErrors 是否存在错误
func (r *OperationReport) HasErrors() bool { return len(r.Errors) > 0 }

// ── 列表查询 ──

// RunListQuery 运行记录查询参数
type RunListQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// GetLimit 获取条数（含默认值）
func (q *RunListQuery) GetLimit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}
