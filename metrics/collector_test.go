package metrics

import (
	"sync"
	"testing"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("text", "demo", "sess-001")

	c.IncPayloadReceived()
	c.IncPayloadReceived()
	c.IncFragmentApplied()
	c.IncFragmentDuplicate()
	c.IncDecodeError()
	c.IncTurnStarted()
	c.IncTurnCompleted()
	c.IncTurnInterrupted()
	c.IncTurnTimedOut()
	c.IncEngineRestart()
	c.IncArchiveWriteSuccess()
	c.IncArchiveWriteFailure()
	c.IncAdapterPublishSuccess()
	c.IncAdapterPublishFailure()

	s := c.Snapshot()
	if s.PayloadsReceived != 2 {
		t.Errorf("PayloadsReceived = %d, want 2", s.PayloadsReceived)
	}
	if s.FragmentsApplied != 1 || s.FragmentsDuplicate != 1 || s.DecodeErrors != 1 {
		t.Errorf("fragment counters wrong: %+v", s)
	}
	if s.TurnsStarted != 1 || s.TurnsCompleted != 1 || s.TurnsInterrupted != 1 || s.TurnsTimedOut != 1 {
		t.Errorf("turn counters wrong: %+v", s)
	}
	if s.EngineRestarts != 1 {
		t.Errorf("EngineRestarts = %d, want 1", s.EngineRestarts)
	}
	if s.ArchiveWriteSuccess != 1 || s.ArchiveWriteFailure != 1 {
		t.Errorf("archive counters wrong: %+v", s)
	}
	if s.AdapterPublishSuccess != 1 || s.AdapterPublishFailure != 1 {
		t.Errorf("adapter counters wrong: %+v", s)
	}
	if s.Mode != "text" || s.Channel != "demo" || s.SessionID != "sess-001" {
		t.Errorf("dimensions wrong: %+v", s)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	// Must not panic.
	c.IncPayloadReceived()
	c.IncDecodeError()
	c.IncEngineRestart()

	s := c.Snapshot()
	if s.PayloadsReceived != 0 {
		t.Errorf("nil collector snapshot should be zero, got %+v", s)
	}
}

func TestCollector_ConcurrentIncrements(t *testing.T) {
	c := NewCollector("text", "demo", "sess-001")

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.IncFragmentApplied()
			}
		}()
	}
	wg.Wait()

	if got := c.Snapshot().FragmentsApplied; got != 1000 {
		t.Errorf("FragmentsApplied = %d, want 1000", got)
	}
}
