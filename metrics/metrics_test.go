package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestInMemoryMetrics_Gauges(t *testing.T) {
	m := NewInMemoryMetrics()

	// Test initial state
	if got := m.GetTickers(); got != 0 {
		t.Errorf("GetTickers() = %d, want 0", got)
	}

	m.SetTickers(5)
	if got := m.GetTickers(); got != 5 {
		t.Errorf("GetTickers() = %d, want 5", got)
	}

	m.SetLiveAlarms(12)
	if got := m.GetLiveAlarms(); got != 12 {
		t.Errorf("GetLiveAlarms() = %d, want 12", got)
	}

	// Test updating gauges
	m.SetTickers(3)
	if got := m.GetTickers(); got != 3 {
		t.Errorf("GetTickers() after update = %d, want 3", got)
	}
}

func TestInMemoryMetrics_Counters(t *testing.T) {
	m := NewInMemoryMetrics()

	m.IncRegenerations("success")
	m.IncRegenerations("success")
	m.IncRegenerations("failure")
	if got := m.GetRegenerations("success"); got != 2 {
		t.Errorf("GetRegenerations(success) = %d, want 2", got)
	}
	if got := m.GetRegenerations("failure"); got != 1 {
		t.Errorf("GetRegenerations(failure) = %d, want 1", got)
	}

	m.AddOccurrencesScheduled(4)
	m.AddOccurrencesScheduled(3)
	if got := m.GetOccurrencesScheduled(); got != 7 {
		t.Errorf("GetOccurrencesScheduled() = %d, want 7", got)
	}

	m.IncAlarmsCancelled(ReasonOrphan)
	m.IncAlarmsCancelled(ReasonDisabled)
	m.IncAlarmsCancelled(ReasonOrphan)
	if got := m.GetAlarmsCancelled(ReasonOrphan); got != 2 {
		t.Errorf("GetAlarmsCancelled(orphan) = %d, want 2", got)
	}

	m.IncTickersDeleted(ReasonOrphan)
	if got := m.GetTickersDeleted(ReasonOrphan); got != 1 {
		t.Errorf("GetTickersDeleted(orphan) = %d, want 1", got)
	}

	m.IncReconcilePasses(OutcomeAborted)
	if got := m.GetReconcilePasses(OutcomeAborted); got != 1 {
		t.Errorf("GetReconcilePasses(aborted) = %d, want 1", got)
	}
	if got := m.GetReconcilePasses(OutcomeCompleted); got != 0 {
		t.Errorf("GetReconcilePasses(completed) = %d, want 0", got)
	}
}

func TestInMemoryMetrics_Histograms(t *testing.T) {
	m := NewInMemoryMetrics()

	m.ObserveReconcileDuration(10 * time.Millisecond)
	m.ObserveReconcileDuration(20 * time.Millisecond)
	m.ObserveRegenerationDuration(time.Millisecond)

	durations := m.GetReconcileDurations()
	if len(durations) != 2 {
		t.Fatalf("GetReconcileDurations() returned %d observations, want 2", len(durations))
	}
	if durations[0] != 10*time.Millisecond || durations[1] != 20*time.Millisecond {
		t.Errorf("unexpected observations %v", durations)
	}

	// Returned slice is a copy
	durations[0] = 0
	if m.GetReconcileDurations()[0] != 10*time.Millisecond {
		t.Errorf("GetReconcileDurations() exposed internal state")
	}

	if got := len(m.GetRegenerationDurations()); got != 1 {
		t.Errorf("GetRegenerationDurations() returned %d observations, want 1", got)
	}
}

func TestInMemoryMetrics_Reset(t *testing.T) {
	m := NewInMemoryMetrics()
	m.SetTickers(4)
	m.IncAlarmsCancelled(ReasonUser)
	m.AddOccurrencesScheduled(2)
	m.ObserveReconcileDuration(time.Second)

	m.Reset()

	if m.GetTickers() != 0 || m.GetAlarmsCancelled(ReasonUser) != 0 || m.GetOccurrencesScheduled() != 0 {
		t.Errorf("Reset() left counters behind")
	}
	if len(m.GetReconcileDurations()) != 0 {
		t.Errorf("Reset() left observations behind")
	}
}

func TestInMemoryMetrics_Concurrent(t *testing.T) {
	m := NewInMemoryMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncRegenerations("success")
			m.AddOccurrencesScheduled(1)
		}()
	}
	wg.Wait()

	if got := m.GetRegenerations("success"); got != 50 {
		t.Errorf("GetRegenerations(success) = %d, want 50", got)
	}
	if got := m.GetOccurrencesScheduled(); got != 50 {
		t.Errorf("GetOccurrencesScheduled() = %d, want 50", got)
	}
}

func TestNoOpMetrics(t *testing.T) {
	var m MetricsCollector = NewNoOpMetrics()
	m.SetTickers(3)
	m.IncAlarmsCancelled(ReasonOrphan)
	if m.GetTickers() != 0 || m.GetAlarmsCancelled(ReasonOrphan) != 0 {
		t.Errorf("NoOpMetrics should report zero")
	}
}
