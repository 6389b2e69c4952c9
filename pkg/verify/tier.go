package verify

import "fmt"

// Tier is the corrective action derived from a risk score.
type Tier string

const (
	TierAllow Tier = "allow"
	TierLog   Tier = "log"
	TierAlert Tier = "alert"
	TierPurge Tier = "purge"
)

// Thresholds are the three cut points mapping a continuous risk score to a
// tier. They must be ordered log <= alert <= purge.
type Thresholds struct {
	Log   float64
	Alert float64
	Purge float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Log: 0.3, Alert: 0.5, Purge: 0.7}
}

func (t Thresholds) Validate() error {
	if t.Log < 0 || t.Purge > 1 {
		return fmt.Errorf("thresholds out of [0,1]: %+v", t)
	}
	if t.Log > t.Alert || t.Alert > t.Purge {
		return fmt.Errorf("thresholds must be ordered log <= alert <= purge: %+v", t)
	}
	return nil
}

// TierFor maps a score to its action tier. Boundaries are half-open on the
// low side; a score at or above the purge threshold purges.
func (t Thresholds) TierFor(score float64) Tier {
	switch {
	case score >= t.Purge:
		return TierPurge
	case score >= t.Alert:
		return TierAlert
	case score >= t.Log:
		return TierLog
	default:
		return TierAllow
	}
}
