package metrics

import (
	"sync"
	"time"
)

// Cancellation reasons
const (
	ReasonDisabled    = "disabled"
	ReasonOrphan      = "orphan"
	ReasonRegenerated = "regenerated"
	ReasonRollback    = "rollback"
	ReasonUser        = "user"
)

// Reconcile outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeSaveError = "save_error"
)

// MetricsCollector defines the interface for collecting metrics
type MetricsCollector interface {
	// Gauges - current state
	SetTickers(count int)
	SetLiveAlarms(count int)

	// Counters - event tracking
	IncRegenerations(status string)
	AddOccurrencesScheduled(count int)
	IncAlarmsCancelled(reason string)
	IncTickersDeleted(reason string)
	IncReconcilePasses(outcome string)

	// Histograms - duration tracking
	ObserveRegenerationDuration(duration time.Duration)
	ObserveReconcileDuration(duration time.Duration)

	// Query methods for testing and monitoring
	GetTickers() int
	GetLiveAlarms() int
	GetRegenerations(status string) int64
	GetOccurrencesScheduled() int64
	GetAlarmsCancelled(reason string) int64
	GetTickersDeleted(reason string) int64
	GetReconcilePasses(outcome string) int64
}

// NoOpMetrics is a metrics collector that does nothing
type NoOpMetrics struct{}

func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (m *NoOpMetrics) SetTickers(count int)                               {}
func (m *NoOpMetrics) SetLiveAlarms(count int)                            {}
func (m *NoOpMetrics) IncRegenerations(status string)                     {}
func (m *NoOpMetrics) AddOccurrencesScheduled(count int)                  {}
func (m *NoOpMetrics) IncAlarmsCancelled(reason string)                   {}
func (m *NoOpMetrics) IncTickersDeleted(reason string)                    {}
func (m *NoOpMetrics) IncReconcilePasses(outcome string)                  {}
func (m *NoOpMetrics) ObserveRegenerationDuration(duration time.Duration) {}
func (m *NoOpMetrics) ObserveReconcileDuration(duration time.Duration)    {}
func (m *NoOpMetrics) GetTickers() int                                    { return 0 }
func (m *NoOpMetrics) GetLiveAlarms() int                                 { return 0 }
func (m *NoOpMetrics) GetRegenerations(status string) int64               { return 0 }
func (m *NoOpMetrics) GetOccurrencesScheduled() int64                     { return 0 }
func (m *NoOpMetrics) GetAlarmsCancelled(reason string) int64             { return 0 }
func (m *NoOpMetrics) GetTickersDeleted(reason string) int64              { return 0 }
func (m *NoOpMetrics) GetReconcilePasses(outcome string) int64            { return 0 }

// InMemoryMetrics is a simple in-memory metrics collector for testing and basic monitoring
type InMemoryMetrics struct {
	mu sync.RWMutex

	// Gauges
	tickers    int
	liveAlarms int

	// Counters - keyed by label
	regenerations        map[string]int64 // key: status
	occurrencesScheduled int64
	alarmsCancelled      map[string]int64 // key: reason
	tickersDeleted       map[string]int64 // key: reason
	reconcilePasses      map[string]int64 // key: outcome

	// Histograms - storing observations
	regenerationDurations []time.Duration
	reconcileDurations    []time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	m := &InMemoryMetrics{}
	m.reset()
	return m
}

// Gauges
func (m *InMemoryMetrics) SetTickers(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers = count
}

func (m *InMemoryMetrics) SetLiveAlarms(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liveAlarms = count
}

func (m *InMemoryMetrics) GetTickers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tickers
}

func (m *InMemoryMetrics) GetLiveAlarms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.liveAlarms
}

// Counters
func (m *InMemoryMetrics) IncRegenerations(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regenerations[status]++
}

func (m *InMemoryMetrics) AddOccurrencesScheduled(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.occurrencesScheduled += int64(count)
}

func (m *InMemoryMetrics) IncAlarmsCancelled(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarmsCancelled[reason]++
}

func (m *InMemoryMetrics) IncTickersDeleted(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickersDeleted[reason]++
}

func (m *InMemoryMetrics) IncReconcilePasses(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconcilePasses[outcome]++
}

func (m *InMemoryMetrics) GetRegenerations(status string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.regenerations[status]
}

func (m *InMemoryMetrics) GetOccurrencesScheduled() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.occurrencesScheduled
}

func (m *InMemoryMetrics) GetAlarmsCancelled(reason string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alarmsCancelled[reason]
}

func (m *InMemoryMetrics) GetTickersDeleted(reason string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tickersDeleted[reason]
}

func (m *InMemoryMetrics) GetReconcilePasses(outcome string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reconcilePasses[outcome]
}

// Histograms
func (m *InMemoryMetrics) ObserveRegenerationDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regenerationDurations = append(m.regenerationDurations, duration)
}

func (m *InMemoryMetrics) ObserveReconcileDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconcileDurations = append(m.reconcileDurations, duration)
}

// Helper methods for getting histogram observations
func (m *InMemoryMetrics) GetRegenerationDurations() []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.regenerationDurations...)
}

func (m *InMemoryMetrics) GetReconcileDurations() []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.reconcileDurations...)
}

// Reset clears all metrics (useful for testing)
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

func (m *InMemoryMetrics) reset() {
	m.tickers = 0
	m.liveAlarms = 0
	m.regenerations = make(map[string]int64)
	m.occurrencesScheduled = 0
	m.alarmsCancelled = make(map[string]int64)
	m.tickersDeleted = make(map[string]int64)
	m.reconcilePasses = make(map[string]int64)
	m.regenerationDurations = nil
	m.reconcileDurations = nil
}
