// Package health scores connection quality from recent error-rate and
// latency samples and recommends whether the app should keep sending,
// degrade, or fall back to offline mode.
package health

import "time"

// Status is the operational classification of the connection.
type Status string

const (
	StatusHealthy      Status = "healthy"
	StatusDegraded     Status = "degraded"
	StatusUnstable     Status = "unstable"
	StatusDisconnected Status = "disconnected"
)

// Quality is the score tier.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
	QualityNone      Quality = "none"
)

// ConnectionNone marks an absent transport; it forces disconnected
// regardless of score. An empty connection type is treated the same way.
const ConnectionNone = "none"

// Thresholds are the penalty-curve and tier breakpoints. The exact curve
// was never pinned down as an invariant, so it stays tunable here rather
// than hard-coded in the evaluator.
type Thresholds struct {
	// ErrorPenaltyMax is subtracted at errorRate=1.0, scaled linearly.
	ErrorPenaltyMax float64

	// Latency tier boundaries and the penalty applied at each tier.
	LatencyMild   time.Duration // below this: no latency penalty
	LatencyHigh   time.Duration
	LatencySevere time.Duration
	PenaltyMild   float64
	PenaltyHigh   float64
	PenaltySevere float64

	// Quality tier score floors.
	ExcellentMin int
	GoodMin      int
	FairMin      int
	PoorMin      int
}

// DefaultThresholds is the tuning both platforms agreed on.
var DefaultThresholds = Thresholds{
	ErrorPenaltyMax: 70,
	LatencyMild:     300 * time.Millisecond,
	LatencyHigh:     1000 * time.Millisecond,
	LatencySevere:   3000 * time.Millisecond,
	PenaltyMild:     10,
	PenaltyHigh:     25,
	PenaltySevere:   45,
	ExcellentMin:    90,
	GoodMin:         70,
	FairMin:         40,
	PoorMin:         15,
}

// Result is a point-in-time snapshot of connection health.
type Result struct {
	Status         Status        `json:"status"`
	Quality        Quality       `json:"quality"`
	HealthScore    int           `json:"health_score"`
	AverageLatency time.Duration `json:"average_latency"`
	HasLatency     bool          `json:"has_latency"`
	ErrorRate      float64       `json:"error_rate"`
	ConnectionType string        `json:"connection_type"`
	Recommendation string        `json:"recommendation"`
	ShouldProceed  bool          `json:"should_proceed"`
	OfflineMode    bool          `json:"should_use_offline_mode"`
}

// Evaluate scores the connection with the default thresholds.
// avgLatency may be nil when no latency samples exist yet.
func Evaluate(errorRate float64, avgLatency *time.Duration, connType string) Result {
	return DefaultThresholds.Evaluate(errorRate, avgLatency, connType)
}

// Evaluate scores the connection. Start from 100, subtract an error-rate
// penalty and a tiered latency penalty, clamp to [0,100], then map the
// score and transport to a quality tier and status.
func (t Thresholds) Evaluate(errorRate float64, avgLatency *time.Duration, connType string) Result {
	if errorRate < 0 {
		errorRate = 0
	}
	if errorRate > 1 {
		errorRate = 1
	}

	score := 100.0
	score -= errorRate * t.ErrorPenaltyMax

	var latency time.Duration
	hasLatency := avgLatency != nil
	if hasLatency {
		latency = *avgLatency
		switch {
		case latency >= t.LatencySevere:
			score -= t.PenaltySevere
		case latency >= t.LatencyHigh:
			score -= t.PenaltyHigh
		case latency >= t.LatencyMild:
			score -= t.PenaltyMild
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	healthScore := int(score)

	quality := t.quality(healthScore)
	status := t.status(healthScore, connType)
	if status == StatusDisconnected {
		quality = QualityNone
	}

	return Result{
		Status:         status,
		Quality:        quality,
		HealthScore:    healthScore,
		AverageLatency: latency,
		HasLatency:     hasLatency,
		ErrorRate:      errorRate,
		ConnectionType: connType,
		Recommendation: recommend(status),
		ShouldProceed:  status != StatusDisconnected,
		OfflineMode:    status == StatusDisconnected || status == StatusUnstable,
	}
}

func (t Thresholds) quality(score int) Quality {
	switch {
	case score >= t.ExcellentMin:
		return QualityExcellent
	case score >= t.GoodMin:
		return QualityGood
	case score >= t.FairMin:
		return QualityFair
	case score >= t.PoorMin:
		return QualityPoor
	default:
		return QualityNone
	}
}

func (t Thresholds) status(score int, connType string) Status {
	if connType == ConnectionNone || connType == "" {
		return StatusDisconnected
	}
	switch {
	case score >= t.GoodMin:
		return StatusHealthy
	case score >= t.FairMin:
		return StatusDegraded
	case score >= t.PoorMin:
		return StatusUnstable
	default:
		return StatusDisconnected
	}
}

// recommend maps a status to its fixed operator-facing string.
func recommend(s Status) string {
	switch s {
	case StatusHealthy:
		return "Connection is healthy"
	case StatusDegraded:
		return "Consider deferring non-critical requests"
	case StatusUnstable:
		return "Defer bulk traffic and prepare offline mode"
	default:
		return "Switch to offline mode"
	}
}
