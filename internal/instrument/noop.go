package instrument

import "time"

// Recorder receives one observation per SQL statement.
type Recorder interface {
	Observe(statement, status string, elapsed time.Duration)
}

// NoopRecorder discards observations. Used when metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) Observe(string, string, time.Duration) {}
