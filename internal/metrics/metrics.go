// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Redemption outcomes.
const (
	OutcomeRedirected = "redirected"
	OutcomeExpired    = "expired"
	OutcomeNotFound   = "not_found"
	OutcomeForbidden  = "forbidden"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Temporary link metrics
	IncLinkIssued()
	IncLinkRedeemed(outcome string)
	IncLinkCacheHit()
	IncLinkCacheMiss()
	ObserveRedeemDuration(duration time.Duration)

	// File metrics
	IncFileCreated()
	IncFileUpdated()
	IncFileDeleted()
	IncDerivedImage(size int, rendered bool)

	// Link event stream
	IncEventPublished(status string) // "success" or "dropped"

	// HTTP
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
