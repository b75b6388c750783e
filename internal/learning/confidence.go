package learning

import "math"

// reinforcementRate is the share of the remaining gap to 1.0 closed per reinforcement.
const reinforcementRate = 0.25

// updateConfidence returns the confidence of a pattern seen frequency times
// whose previous confidence was current. It never lowers confidence.
func updateConfidence(current float64, frequency int) float64 {
	current = clampConfidence(current)
	stepped := current + (1-current)*reinforcementRate
	floor := 1 - math.Pow(0.5, float64(max(frequency, 1)))
	return clampConfidence(max(current, stepped, floor))
}

func clampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
