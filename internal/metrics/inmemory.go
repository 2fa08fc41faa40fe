package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	LinksIssued           uint64
	LinksRedeemed         map[string]uint64 // by outcome
	LinkCacheHits         uint64
	LinkCacheMisses       uint64
	RedeemDurationCount   uint64
	FilesCreated          uint64
	FilesUpdated          uint64
	FilesDeleted          uint64
	DerivedRendered       uint64
	DerivedServedExisting uint64
	EventsPublished       map[string]uint64 // by status
	HTTPRequests          uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	linksIssued           uint64
	linkCacheHits         uint64
	linkCacheMisses       uint64
	redeemDurationCount   uint64
	filesCreated          uint64
	filesUpdated          uint64
	filesDeleted          uint64
	derivedRendered       uint64
	derivedServedExisting uint64
	httpRequests          uint64

	mu       sync.Mutex
	redeemed map[string]uint64
	events   map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		redeemed: make(map[string]uint64),
		events:   make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	redeemed := make(map[string]uint64, len(m.redeemed))
	for k, v := range m.redeemed {
		redeemed[k] = v
	}
	events := make(map[string]uint64, len(m.events))
	for k, v := range m.events {
		events[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		LinksIssued:           atomic.LoadUint64(&m.linksIssued),
		LinksRedeemed:         redeemed,
		LinkCacheHits:         atomic.LoadUint64(&m.linkCacheHits),
		LinkCacheMisses:       atomic.LoadUint64(&m.linkCacheMisses),
		RedeemDurationCount:   atomic.LoadUint64(&m.redeemDurationCount),
		FilesCreated:          atomic.LoadUint64(&m.filesCreated),
		FilesUpdated:          atomic.LoadUint64(&m.filesUpdated),
		FilesDeleted:          atomic.LoadUint64(&m.filesDeleted),
		DerivedRendered:       atomic.LoadUint64(&m.derivedRendered),
		DerivedServedExisting: atomic.LoadUint64(&m.derivedServedExisting),
		EventsPublished:       events,
		HTTPRequests:          atomic.LoadUint64(&m.httpRequests),
	}
}

func (m *InMemoryRecorder) IncLinkIssued() { atomic.AddUint64(&m.linksIssued, 1) }

func (m *InMemoryRecorder) IncLinkRedeemed(outcome string) {
	m.mu.Lock()
	m.redeemed[outcome]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncLinkCacheHit()  { atomic.AddUint64(&m.linkCacheHits, 1) }
func (m *InMemoryRecorder) IncLinkCacheMiss() { atomic.AddUint64(&m.linkCacheMisses, 1) }

func (m *InMemoryRecorder) ObserveRedeemDuration(time.Duration) {
	atomic.AddUint64(&m.redeemDurationCount, 1)
}

func (m *InMemoryRecorder) IncFileCreated() { atomic.AddUint64(&m.filesCreated, 1) }
func (m *InMemoryRecorder) IncFileUpdated() { atomic.AddUint64(&m.filesUpdated, 1) }
func (m *InMemoryRecorder) IncFileDeleted() { atomic.AddUint64(&m.filesDeleted, 1) }

func (m *InMemoryRecorder) IncDerivedImage(_ int, rendered bool) {
	if rendered {
		atomic.AddUint64(&m.derivedRendered, 1)
		return
	}
	atomic.AddUint64(&m.derivedServedExisting, 1)
}

func (m *InMemoryRecorder) IncEventPublished(status string) {
	m.mu.Lock()
	m.events[status]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {
	atomic.AddUint64(&m.httpRequests, 1)
}
