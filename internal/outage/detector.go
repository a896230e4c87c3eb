// Package outage is a minimal concrete chatws.OutageDetector: it counts
// consecutive connection failures per kind and logs when a run of failures
// looks like a real outage rather than a one-off blip. Spec.md keeps this
// collaborator abstract (section 7's propagation policy only requires that
// it hears about connection-level successes and failures, never individual
// request errors); this is the boundary implementation that gives it
// somewhere to report.
package outage

import (
	"sync"

	"chatconn/internal/applog"
	"chatconn/internal/chatws"
)

// consecutiveFailureThreshold is how many back-to-back connection failures
// for one kind before a warning is logged instead of an info line.
const consecutiveFailureThreshold = 3

// Detector implements chatws.OutageDetector.
type Detector struct {
	logger *applog.Logger

	mu       sync.Mutex
	failures map[chatws.ConnectionKind]int
}

func New(logger *applog.Logger) *Detector {
	return &Detector{logger: logger, failures: make(map[chatws.ConnectionKind]int)}
}

func (d *Detector) ReportConnectionSuccess(kind chatws.ConnectionKind) {
	d.mu.Lock()
	d.failures[kind] = 0
	d.mu.Unlock()
}

func (d *Detector) ReportConnectionFailure(kind chatws.ConnectionKind, err error) {
	d.mu.Lock()
	d.failures[kind]++
	n := d.failures[kind]
	d.mu.Unlock()

	if d.logger == nil {
		return
	}
	if n >= consecutiveFailureThreshold {
		d.logger.Warnf("outage", "%s has failed to connect %d times in a row: %v", kind, n, err)
	} else {
		d.logger.Infof("outage", "%s connection failure: %v", kind, err)
	}
}
