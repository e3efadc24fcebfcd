package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_button_active_sessions",
		Help: "1 while a pipeline session holds the gate",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_button_sessions_total",
		Help: "Pipeline sessions by outcome (completed, empty, failed, cancelled)",
	}, []string{"outcome"})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_button_session_duration_seconds",
		Help:    "Duration of pipeline sessions in seconds",
		Buckets: []float64{1, 3, 5, 10, 20, 30, 60, 120},
	})

	ignoredPresses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_button_ignored_presses_total",
		Help: "Trigger presses dropped because a session was in flight",
	})

	// Stage metrics
	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_button_stage_latency_seconds",
		Help:    "Latency of each pipeline stage in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"stage"})

	stageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_button_stage_errors_total",
		Help: "Pipeline stage failures by stage and error kind",
	}, []string{"stage", "kind"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_button_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// SessionMetrics tracks metrics for a single pipeline session
type SessionMetrics struct {
	startTime  time.Time
	stageStart time.Time
	stage      string
}

// NewSessionMetrics starts tracking a session
func NewSessionMetrics() *SessionMetrics {
	activeSessions.Set(1)
	return &SessionMetrics{startTime: time.Now()}
}

// StageStart marks the beginning of a stage
func (m *SessionMetrics) StageStart(stage string) {
	m.stage = stage
	m.stageStart = time.Now()
}

// StageEnd records the latency of the current stage
func (m *SessionMetrics) StageEnd() {
	if m.stage == "" || m.stageStart.IsZero() {
		return
	}
	stageLatency.WithLabelValues(m.stage).Observe(time.Since(m.stageStart).Seconds())
}

// RecordStageError records a stage failure
func (m *SessionMetrics) RecordStageError(stage, kind string) {
	stageErrors.WithLabelValues(stage, kind).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *SessionMetrics) RecordAudioBytes(direction string, bytes int) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// End closes the session with an outcome label
func (m *SessionMetrics) End(outcome string) {
	activeSessions.Set(0)
	sessionsTotal.WithLabelValues(outcome).Inc()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordIgnoredPress counts a press that arrived while the gate was closed
func RecordIgnoredPress() {
	ignoredPresses.Inc()
}

// SessionCount returns the collector behind sessions_total, for tests and status pages
func SessionCount(outcome string) prometheus.Counter {
	return sessionsTotal.WithLabelValues(outcome)
}

// StageErrorCount returns the collector behind stage_errors_total
func StageErrorCount(stage, kind string) prometheus.Counter {
	return stageErrors.WithLabelValues(stage, kind)
}

// IgnoredPressCount returns the collector behind ignored_presses_total
func IgnoredPressCount() prometheus.Counter {
	return ignoredPresses
}
