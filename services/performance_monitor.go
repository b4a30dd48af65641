package services

import (
	"sync"
	"time"
)

// QueryPerformanceMonitor tracks traversal latency per operation.
type QueryPerformanceMonitor interface {
	RecordQuery(queryType string, duration time.Duration, rowCount int)
	RecordSlowQuery(query string, duration time.Duration, params map[string]interface{})
	GetQueryStats() QueryStatistics
	GetSlowQueries(limit int) []SlowQueryRecord
}

// QueryStatistics holds performance statistics
type QueryStatistics struct {
	TotalQueries int64                     `json:"total_queries"`
	AverageTime  time.Duration             `json:"average_time"`
	SlowQueries  int64                     `json:"slow_queries"`
	QueryTypes   map[string]QueryTypeStats `json:"query_types"`
	LastReset    time.Time                 `json:"last_reset"`
}

// QueryTypeStats holds statistics for a specific query type
type QueryTypeStats struct {
	Count       int64         `json:"count"`
	TotalTime   time.Duration `json:"total_time"`
	AverageTime time.Duration `json:"average_time"`
	MinTime     time.Duration `json:"min_time"`
	MaxTime     time.Duration `json:"max_time"`
	TotalRows   int64         `json:"total_rows"`
}

// SlowQueryRecord represents a slow query record
type SlowQueryRecord struct {
	Query     string                 `json:"query"`
	Duration  time.Duration          `json:"duration"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// InMemoryPerformanceMonitor keeps running statistics and a bounded ring of
// the most recent slow traversals.
type InMemoryPerformanceMonitor struct {
	mu             sync.RWMutex
	stats          QueryStatistics
	totalTime      time.Duration
	slowQueries    []SlowQueryRecord
	slowThreshold  time.Duration
	maxSlowQueries int
	logger         Logger
}

// NewInMemoryPerformanceMonitor creates a new in-memory performance monitor
func NewInMemoryPerformanceMonitor(slowThreshold time.Duration, maxSlowQueries int, logger Logger) *InMemoryPerformanceMonitor {
	if logger == nil {
		logger = NewNopLogger()
	}
	if maxSlowQueries <= 0 {
		maxSlowQueries = 100
	}
	return &InMemoryPerformanceMonitor{
		stats: QueryStatistics{
			QueryTypes: make(map[string]QueryTypeStats),
			LastReset:  time.Now(),
		},
		slowThreshold:  slowThreshold,
		maxSlowQueries: maxSlowQueries,
		logger:         logger,
	}
}

// RecordQuery records a query execution. Queries at or above the slow
// threshold are also kept as slow query records.
func (m *InMemoryPerformanceMonitor) RecordQuery(queryType string, duration time.Duration, rowCount int) {
	m.mu.Lock()
	m.stats.TotalQueries++
	m.totalTime += duration
	m.stats.AverageTime = m.totalTime / time.Duration(m.stats.TotalQueries)

	typeStats, exists := m.stats.QueryTypes[queryType]
	if !exists {
		typeStats = QueryTypeStats{MinTime: duration, MaxTime: duration}
	}
	typeStats.Count++
	typeStats.TotalTime += duration
	typeStats.AverageTime = typeStats.TotalTime / time.Duration(typeStats.Count)
	typeStats.TotalRows += int64(rowCount)
	if duration < typeStats.MinTime {
		typeStats.MinTime = duration
	}
	if duration > typeStats.MaxTime {
		typeStats.MaxTime = duration
	}
	m.stats.QueryTypes[queryType] = typeStats

	slow := m.slowThreshold > 0 && duration >= m.slowThreshold
	if slow {
		m.appendSlow(SlowQueryRecord{
			Query:     queryType,
			Duration:  duration,
			Params:    map[string]interface{}{"rows": rowCount},
			Timestamp: time.Now(),
		})
	}
	m.mu.Unlock()

	if slow {
		m.logger.Warn("Slow traversal",
			String("query_type", queryType),
			Duration("duration", duration),
			Int("rows", rowCount),
			Duration("threshold", m.slowThreshold))
	}
}

// RecordSlowQuery records a slow query with details
func (m *InMemoryPerformanceMonitor) RecordSlowQuery(query string, duration time.Duration, params map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendSlow(SlowQueryRecord{
		Query:     query,
		Duration:  duration,
		Params:    params,
		Timestamp: time.Now(),
	})
}

func (m *InMemoryPerformanceMonitor) appendSlow(record SlowQueryRecord) {
	m.slowQueries = append(m.slowQueries, record)
	if len(m.slowQueries) > m.maxSlowQueries {
		m.slowQueries = m.slowQueries[len(m.slowQueries)-m.maxSlowQueries:]
	}
	m.stats.SlowQueries++
}

// GetQueryStats returns current query statistics
func (m *InMemoryPerformanceMonitor) GetQueryStats() QueryStatistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.QueryTypes = make(map[string]QueryTypeStats, len(m.stats.QueryTypes))
	for k, v := range m.stats.QueryTypes {
		stats.QueryTypes[k] = v
	}
	return stats
}

// GetSlowQueries returns the most recent slow queries, oldest first.
func (m *InMemoryPerformanceMonitor) GetSlowQueries(limit int) []SlowQueryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.slowQueries) {
		limit = len(m.slowQueries)
	}
	result := make([]SlowQueryRecord, limit)
	copy(result, m.slowQueries[len(m.slowQueries)-limit:])
	return result
}

// Reset clears all statistics
func (m *InMemoryPerformanceMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = QueryStatistics{
		QueryTypes: make(map[string]QueryTypeStats),
		LastReset:  time.Now(),
	}
	m.totalTime = 0
	m.slowQueries = nil
}

// NoOpMonitor is a no-operation implementation of QueryPerformanceMonitor
type NoOpMonitor struct{}

// NewNoOpMonitor creates a new no-op monitor
func NewNoOpMonitor() QueryPerformanceMonitor {
	return &NoOpMonitor{}
}

func (m *NoOpMonitor) RecordQuery(queryType string, duration time.Duration, rowCount int) {}

func (m *NoOpMonitor) RecordSlowQuery(query string, duration time.Duration, params map[string]interface{}) {
}

func (m *NoOpMonitor) GetQueryStats() QueryStatistics {
	return QueryStatistics{QueryTypes: make(map[string]QueryTypeStats)}
}

func (m *NoOpMonitor) GetSlowQueries(limit int) []SlowQueryRecord {
	return []SlowQueryRecord{}
}
