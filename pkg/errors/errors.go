package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrStatusGuard 条件更新未命中：记录已不处于预期的前置状态
// 调用方应视为"其他并发方已完成该状态迁移"，而非系统故障
var ErrStatusGuard = errors.New("记录状态已被其他操作变更")

// ErrDuplicateActive 同一 (submission, reviewer) 已存在有效分配
var ErrDuplicateActive = errors.New("该评审人对该作品已有有效分配")
