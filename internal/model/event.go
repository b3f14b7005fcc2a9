package model

import "time"

// Sample is one connectivity observation fed to the health monitor.
type Sample struct {
	Latency    time.Duration `json:"latency"`
	Failed     bool          `json:"failed"`
	ObservedAt time.Time     `json:"observed_at"`
}
