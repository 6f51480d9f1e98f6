// Package metrics provides Prometheus metrics for recording pipelines.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recordnode",
		Subsystem: "pipeline",
		Name:      "frames_captured_total",
		Help:      "Frames delivered by capture sources",
	}, []string{"session_id", "source"})

	framesConverted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recordnode",
		Subsystem: "pipeline",
		Name:      "frames_converted_total",
		Help:      "Frames emitted by the conversion pool",
	}, []string{"session_id"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recordnode",
		Subsystem: "pipeline",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped at any stage",
	}, []string{"session_id", "stage"})

	dropRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "recordnode",
		Subsystem: "pipeline",
		Name:      "drop_rate",
		Help:      "Windowed frame drop rate per stage",
	}, []string{"session_id", "stage"})

	encoderSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "recordnode",
		Subsystem: "encoder",
		Name:      "processing_speed",
		Help:      "Encoder processing speed multiplier",
	}, []string{"session_id"})

	encoderFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "recordnode",
		Subsystem: "encoder",
		Name:      "fps",
		Help:      "Current encoder FPS",
	}, []string{"session_id"})

	// Local cache for API access without scraping.
	sessionCache   = make(map[string]*SessionMetrics)
	sessionCacheMu sync.RWMutex
)

// SessionMetrics holds current values for one recording session.
type SessionMetrics struct {
	FramesCaptured  float64
	FramesConverted float64
	FramesDropped   float64
	DropRate        float64
	EncoderFPS      float64
	EncoderSpeed    float64
}

// AddFramesCaptured counts frames delivered by a source.
func AddFramesCaptured(sessionID, source string, n float64) {
	framesCaptured.WithLabelValues(sessionID, source).Add(n)
	updateCache(sessionID, func(m *SessionMetrics) { m.FramesCaptured += n })
}

// AddFramesConverted counts frames emitted by the conversion pool.
func AddFramesConverted(sessionID string, n float64) {
	framesConverted.WithLabelValues(sessionID).Add(n)
	updateCache(sessionID, func(m *SessionMetrics) { m.FramesConverted += n })
}

// AddFramesDropped counts drops at a named stage.
func AddFramesDropped(sessionID, stage string, n float64) {
	framesDropped.WithLabelValues(sessionID, stage).Add(n)
	updateCache(sessionID, func(m *SessionMetrics) { m.FramesDropped += n })
}

// SetDropRate records the current windowed drop rate for a stage.
func SetDropRate(sessionID, stage string, rate float64) {
	dropRate.WithLabelValues(sessionID, stage).Set(rate)
	updateCache(sessionID, func(m *SessionMetrics) { m.DropRate = rate })
}

// SetEncoderFPS records the encoder's reported FPS.
func SetEncoderFPS(sessionID string, fps float64) {
	encoderFPS.WithLabelValues(sessionID).Set(fps)
	updateCache(sessionID, func(m *SessionMetrics) { m.EncoderFPS = fps })
}

// SetEncoderSpeed records the encoder's speed multiplier.
func SetEncoderSpeed(sessionID string, speed float64) {
	encoderSpeed.WithLabelValues(sessionID).Set(speed)
	updateCache(sessionID, func(m *SessionMetrics) { m.EncoderSpeed = speed })
}

// DeleteSession removes all metrics for a finished session.
func DeleteSession(sessionID string) {
	framesConverted.DeleteLabelValues(sessionID)
	encoderFPS.DeleteLabelValues(sessionID)
	encoderSpeed.DeleteLabelValues(sessionID)
	framesCaptured.DeletePartialMatch(prometheus.Labels{"session_id": sessionID})
	framesDropped.DeletePartialMatch(prometheus.Labels{"session_id": sessionID})
	dropRate.DeletePartialMatch(prometheus.Labels{"session_id": sessionID})

	sessionCacheMu.Lock()
	delete(sessionCache, sessionID)
	sessionCacheMu.Unlock()
}

// GetSessionMetrics returns a snapshot of a session's cached values.
func GetSessionMetrics(sessionID string) (SessionMetrics, bool) {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	m, ok := sessionCache[sessionID]
	if !ok {
		return SessionMetrics{}, false
	}
	return *m, true
}

func updateCache(sessionID string, apply func(*SessionMetrics)) {
	sessionCacheMu.Lock()
	defer sessionCacheMu.Unlock()
	m, ok := sessionCache[sessionID]
	if !ok {
		m = &SessionMetrics{}
		sessionCache[sessionID] = m
	}
	apply(m)
}
