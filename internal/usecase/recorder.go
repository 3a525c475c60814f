package usecase

import "time"

// Recorder receives classification telemetry. The metrics package provides the
// Prometheus implementation.
type Recorder interface {
	ObserveClassification(strategy, outcome string, duration time.Duration)
	ObserveCacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveClassification(string, string, time.Duration) {}
func (nopRecorder) ObserveCacheLookup(bool)                             {}
