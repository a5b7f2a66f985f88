package metrics

import (
	"sync"
	"testing"
)

type recordingBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string][]float64
	flushes  int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		counters: map[string]float64{},
		samples:  map[string][]float64{},
	}
}

func (b *recordingBackend) IncCounter(name string, delta float64, tags ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters[name] += delta
}

func (b *recordingBackend) ObserveDuration(name string, seconds float64, tags ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples[name] = append(b.samples[name], seconds)
}

func (b *recordingBackend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushes++
	return nil
}

// TestPackageHelpers verifies the helpers forward to the installed backend
// and that installation is swappable.
func TestPackageHelpers(t *testing.T) {
	rb := newRecordingBackend()
	SetBackend(rb)
	t.Cleanup(func() { SetBackend(nil) })

	IncCounter(FeedRecords, 3, "feed:x")
	IncCounter(FeedRecords, 2)
	ObserveDuration(FeedFetchTime, 0.25)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if got := rb.counters[FeedRecords]; got != 5 {
		t.Fatalf("counter=%v, want 5", got)
	}
	if got := rb.samples[FeedFetchTime]; len(got) != 1 || got[0] != 0.25 {
		t.Fatalf("samples=%v", got)
	}
	if rb.flushes != 1 {
		t.Fatalf("flushes=%d, want 1", rb.flushes)
	}
}

// TestNopDefault verifies the default backend swallows everything without a
// registered backend.
func TestNopDefault(t *testing.T) {
	SetBackend(nil) // explicit reset to the nop backend

	IncCounter(SIEMRequests, 1, "status:200")
	ObserveDuration(SIEMReqTime, 0.1)
	if err := Flush(); err != nil {
		t.Fatalf("Flush on nop backend: %v", err)
	}
}
