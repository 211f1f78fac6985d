package settlement

import (
	"sync"
	"sync/atomic"
	"time"
)

// PerformanceMetrics 结算性能指标
type PerformanceMetrics struct {
	// 批次统计
	TotalBatches      int64 `json:"total_batches"`      // 总批次数
	SuccessfulBatches int64 `json:"successful_batches"` // 成功批次数
	FailedBatches     int64 `json:"failed_batches"`     // 失败(回滚)批次数
	TotalBatchTime    int64 `json:"total_batch_time"`   // 批次总耗时(纳秒)
	AverageBatchTime  int64 `json:"average_batch_time"` // 平均批次耗时(纳秒)

	// 注单统计
	LinesProcessed  int64 `json:"lines_processed"`
	WinnersFound    int64 `json:"winners_found"`
	FailedLines     int64 `json:"failed_lines"`
	DegradedPrizes  int64 `json:"degraded_prizes"`
	TicketsUpdated  int64 `json:"tickets_updated"`
	SkippedNoResult int64 `json:"skipped_no_result"`

	// 锁操作统计
	LockAcquisitions    int64 `json:"lock_acquisitions"`     // 锁获取次数
	LockAcquisitionTime int64 `json:"lock_acquisition_time"` // 锁获取总时间(纳秒)
	LockReleases        int64 `json:"lock_releases"`         // 锁释放次数
	LockFailures        int64 `json:"lock_failures"`         // 锁获取失败次数

	// 存储统计
	StoreErrors int64 `json:"store_errors"`
	RedisErrors int64 `json:"redis_errors"`

	// 时间戳
	StartTime      int64 `json:"start_time"`
	LastUpdateTime int64 `json:"last_update_time"`
}

// GetSuccessRate 获取批次成功率
func (pm *PerformanceMetrics) GetSuccessRate() float64 {
	total := atomic.LoadInt64(&pm.TotalBatches)
	if total == 0 {
		return 0.0
	}
	successful := atomic.LoadInt64(&pm.SuccessfulBatches)
	return float64(successful) / float64(total) * 100.0
}

// GetAverageLockTime 获取平均锁获取时间
func (pm *PerformanceMetrics) GetAverageLockTime() time.Duration {
	acquisitions := atomic.LoadInt64(&pm.LockAcquisitions)
	if acquisitions == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&pm.LockAcquisitionTime) / acquisitions)
}

// GetThroughput 每秒处理的注单数
func (pm *PerformanceMetrics) GetThroughput() float64 {
	startTime := atomic.LoadInt64(&pm.StartTime)
	lastUpdate := atomic.LoadInt64(&pm.LastUpdateTime)
	if startTime == 0 || lastUpdate <= startTime {
		return 0.0
	}

	duration := time.Duration(lastUpdate - startTime)
	return float64(atomic.LoadInt64(&pm.LinesProcessed)) / duration.Seconds()
}

// Reset 重置性能指标
func (pm *PerformanceMetrics) Reset() {
	for _, p := range []*int64{
		&pm.TotalBatches, &pm.SuccessfulBatches, &pm.FailedBatches, &pm.TotalBatchTime, &pm.AverageBatchTime,
		&pm.LinesProcessed, &pm.WinnersFound, &pm.FailedLines, &pm.DegradedPrizes, &pm.TicketsUpdated,
		&pm.SkippedNoResult, &pm.LockAcquisitions, &pm.LockAcquisitionTime, &pm.LockReleases,
		&pm.LockFailures, &pm.StoreErrors, &pm.RedisErrors,
	} {
		atomic.StoreInt64(p, 0)
	}
	now := time.Now().UnixNano()
	atomic.StoreInt64(&pm.StartTime, now)
	atomic.StoreInt64(&pm.LastUpdateTime, now)
}

// ================================================================================

// PerformanceMonitor 性能监控器
type PerformanceMonitor struct {
	metrics *PerformanceMetrics
	mu      sync.RWMutex
	enabled bool
}

// NewPerformanceMonitor 创建新的性能监控器
func NewPerformanceMonitor() *PerformanceMonitor {
	pm := &PerformanceMonitor{
		metrics: &PerformanceMetrics{},
		enabled: true,
	}
	pm.metrics.Reset()
	return pm
}

// Enable 启用性能监控
func (pm *PerformanceMonitor) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.enabled = true
}

// Disable 禁用性能监控
func (pm *PerformanceMonitor) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.enabled = false
}

// IsEnabled 检查是否启用了性能监控
func (pm *PerformanceMonitor) IsEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.enabled
}

func (pm *PerformanceMonitor) touch() {
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordBatch 记录一个批次; report 为 nil 表示批次失败
func (pm *PerformanceMonitor) RecordBatch(report *BatchReport, duration time.Duration) {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.TotalBatches, 1)
	atomic.AddInt64(&pm.metrics.TotalBatchTime, int64(duration))

	if report == nil {
		atomic.AddInt64(&pm.metrics.FailedBatches, 1)
	} else {
		atomic.AddInt64(&pm.metrics.SuccessfulBatches, 1)
		atomic.AddInt64(&pm.metrics.LinesProcessed, int64(report.LinesProcessed))
		atomic.AddInt64(&pm.metrics.WinnersFound, int64(report.WinnersFound))
		atomic.AddInt64(&pm.metrics.FailedLines, int64(len(report.FailedLines)))
		atomic.AddInt64(&pm.metrics.TicketsUpdated, int64(report.TicketsUpdated))
		atomic.AddInt64(&pm.metrics.SkippedNoResult, int64(len(report.SkippedLines)))
		for _, w := range report.Warnings {
			if w.Code == WarnUnresolvablePrizeConfig || w.Code == WarnDegradedPrizeTier {
				atomic.AddInt64(&pm.metrics.DegradedPrizes, 1)
			}
		}
	}

	totalBatches := atomic.LoadInt64(&pm.metrics.TotalBatches)
	totalTime := atomic.LoadInt64(&pm.metrics.TotalBatchTime)
	atomic.StoreInt64(&pm.metrics.AverageBatchTime, totalTime/totalBatches)

	pm.touch()
}

// RecordLockAcquisition 记录锁获取操作
func (pm *PerformanceMonitor) RecordLockAcquisition(success bool, duration time.Duration) {
	if !pm.IsEnabled() {
		return
	}

	if success {
		atomic.AddInt64(&pm.metrics.LockAcquisitions, 1)
		atomic.AddInt64(&pm.metrics.LockAcquisitionTime, int64(duration))
	} else {
		atomic.AddInt64(&pm.metrics.LockFailures, 1)
	}
	pm.touch()
}

// RecordLockRelease 记录锁释放操作
func (pm *PerformanceMonitor) RecordLockRelease() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.LockReleases, 1)
	pm.touch()
}

// RecordStoreError 记录存储错误
func (pm *PerformanceMonitor) RecordStoreError() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.StoreErrors, 1)
	pm.touch()
}

// RecordRedisError 记录Redis错误
func (pm *PerformanceMonitor) RecordRedisError() {
	if !pm.IsEnabled() {
		return
	}

	atomic.AddInt64(&pm.metrics.RedisErrors, 1)
	pm.touch()
}

// GetMetrics 获取性能指标的副本
func (pm *PerformanceMonitor) GetMetrics() PerformanceMetrics {
	m := pm.metrics
	return PerformanceMetrics{
		TotalBatches:        atomic.LoadInt64(&m.TotalBatches),
		SuccessfulBatches:   atomic.LoadInt64(&m.SuccessfulBatches),
		FailedBatches:       atomic.LoadInt64(&m.FailedBatches),
		TotalBatchTime:      atomic.LoadInt64(&m.TotalBatchTime),
		AverageBatchTime:    atomic.LoadInt64(&m.AverageBatchTime),
		LinesProcessed:      atomic.LoadInt64(&m.LinesProcessed),
		WinnersFound:        atomic.LoadInt64(&m.WinnersFound),
		FailedLines:         atomic.LoadInt64(&m.FailedLines),
		DegradedPrizes:      atomic.LoadInt64(&m.DegradedPrizes),
		TicketsUpdated:      atomic.LoadInt64(&m.TicketsUpdated),
		SkippedNoResult:     atomic.LoadInt64(&m.SkippedNoResult),
		LockAcquisitions:    atomic.LoadInt64(&m.LockAcquisitions),
		LockAcquisitionTime: atomic.LoadInt64(&m.LockAcquisitionTime),
		LockReleases:        atomic.LoadInt64(&m.LockReleases),
		LockFailures:        atomic.LoadInt64(&m.LockFailures),
		StoreErrors:         atomic.LoadInt64(&m.StoreErrors),
		RedisErrors:         atomic.LoadInt64(&m.RedisErrors),
		StartTime:           atomic.LoadInt64(&m.StartTime),
		LastUpdateTime:      atomic.LoadInt64(&m.LastUpdateTime),
	}
}

// ResetMetrics 重置性能指标
func (pm *PerformanceMonitor) ResetMetrics() { pm.metrics.Reset() }
