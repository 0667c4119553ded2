package core

// AlertLevel is the severity step a budget crossed.
type AlertLevel string

const (
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
	LevelExceeded AlertLevel = "exceeded"
)

// AlertScope distinguishes overall budget alerts from category ones.
type AlertScope string

const (
	ScopeOverall  AlertScope = "overall"
	ScopeCategory AlertScope = "category"
)

// EvaluateThresholds returns the alert levels crossed when spend moves
// from previous to current against the given limit.
//
// The evaluation is edge-triggered: a level fires only when previous was
// strictly below its trigger point and current is at or past it, so
// sitting above a threshold keeps firing nothing. Warning and critical
// points are percentages of the limit; exceeded fires when spend moves
// strictly past the limit itself. A non-positive limit never fires.
// Results are ordered warning, critical, exceeded, so a single large
// delta can produce up to three levels at once.
func EvaluateThresholds(limit Money, th AlertThresholds, previous, current Money) []AlertLevel {
	if limit.Paise <= 0 || current.Paise <= previous.Paise {
		return nil
	}

	var crossed []AlertLevel

	// Percentage points compared at x100 scale to keep fractional
	// trigger points exact in integer arithmetic.
	prev100 := previous.Paise * 100
	cur100 := current.Paise * 100
	for _, step := range []struct {
		pct   int
		level AlertLevel
	}{
		{th.Warning, LevelWarning},
		{th.Critical, LevelCritical},
	} {
		if step.pct <= 0 {
			continue
		}
		point := limit.Paise * int64(step.pct)
		if prev100 < point && point <= cur100 {
			crossed = append(crossed, step.level)
		}
	}

	if previous.Paise <= limit.Paise && limit.Paise < current.Paise {
		crossed = append(crossed, LevelExceeded)
	}

	return crossed
}
