package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncLinkIssued()                                       {}
func (n *NoopRecorder) IncLinkRedeemed(string)                               {}
func (n *NoopRecorder) IncLinkCacheHit()                                     {}
func (n *NoopRecorder) IncLinkCacheMiss()                                    {}
func (n *NoopRecorder) ObserveRedeemDuration(time.Duration)                  {}
func (n *NoopRecorder) IncFileCreated()                                      {}
func (n *NoopRecorder) IncFileUpdated()                                      {}
func (n *NoopRecorder) IncFileDeleted()                                      {}
func (n *NoopRecorder) IncDerivedImage(int, bool)                            {}
func (n *NoopRecorder) IncEventPublished(string)                             {}
func (n *NoopRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {}
