package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var (
	_ Recorder    = (*NoopRecorder)(nil)
	_ Recorder    = (*InMemoryRecorder)(nil)
	_ Recorder    = (*PrometheusRecorder)(nil)
	_ Snapshotter = (*InMemoryRecorder)(nil)
)

func TestInMemoryRecorder(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncLinkIssued()
	m.IncLinkRedeemed(OutcomeRedirected)
	m.IncLinkRedeemed(OutcomeRedirected)
	m.IncLinkRedeemed(OutcomeExpired)
	m.IncLinkCacheHit()
	m.IncLinkCacheMiss()
	m.ObserveRedeemDuration(time.Millisecond)
	m.IncFileCreated()
	m.IncFileDeleted()
	m.IncDerivedImage(200, true)
	m.IncDerivedImage(200, false)
	m.IncEventPublished("dropped")

	s := m.Snapshot()
	if s.LinksIssued != 1 || s.FilesCreated != 1 || s.FilesDeleted != 1 || s.FilesUpdated != 0 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if s.LinksRedeemed[OutcomeRedirected] != 2 || s.LinksRedeemed[OutcomeExpired] != 1 {
		t.Errorf("LinksRedeemed = %v", s.LinksRedeemed)
	}
	if s.DerivedRendered != 1 || s.DerivedServedExisting != 1 {
		t.Errorf("derived = %d/%d", s.DerivedRendered, s.DerivedServedExisting)
	}
	if s.EventsPublished["dropped"] != 1 {
		t.Errorf("EventsPublished = %v", s.EventsPublished)
	}

	// Snapshot maps are copies.
	s.LinksRedeemed[OutcomeRedirected] = 99
	if m.Snapshot().LinksRedeemed[OutcomeRedirected] != 2 {
		t.Error("Snapshot should not alias internal state")
	}
}

func TestPrometheusRecorder_Exposition(t *testing.T) {
	t.Parallel()

	p := NewPrometheus()
	p.IncLinkIssued()
	p.IncLinkRedeemed(OutcomeNotFound)
	p.IncDerivedImage(400, true)
	p.ObserveHTTPRequest("GET", "/images/", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"tierhost_temp_links_issued_total 1",
		`tierhost_temp_links_redeemed_total{outcome="not_found"} 1`,
		`tierhost_derived_images_total{rendered="true",size="400"} 1`,
		`http_requests_total{method="GET",path="/images/",status="200"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
