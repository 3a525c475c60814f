package detection

import "math"

// Decide picks the winning class of a (real, ai) distribution and reports its
// probability as the confidence. Ties go to real.
func Decide(pReal, pAI float64) (Label, float64) {
	if pAI > pReal {
		return LabelAI, pAI
	}
	return LabelReal, pReal
}

// ZeroShotPolicy turns zero-shot label scores into a verdict. The constants are
// heuristics and kept configurable rather than derived.
type ZeroShotPolicy struct {
	AIFloor           float64 `yaml:"ai_floor" validate:"gte=0,lte=1"`
	AIMargin          float64 `yaml:"ai_margin" validate:"gte=0,lte=1"`
	AIConfidenceMin   float64 `yaml:"ai_confidence_min" validate:"gte=0,lte=1"`
	AIConfidenceMax   float64 `yaml:"ai_confidence_max" validate:"gte=0,lte=1"`
	RealConfidenceMin float64 `yaml:"real_confidence_min" validate:"gte=0,lte=1"`
	RealConfidenceMax float64 `yaml:"real_confidence_max" validate:"gte=0,lte=1"`
}

// DefaultZeroShotPolicy returns the margin rule used by the remote strategy.
func DefaultZeroShotPolicy() ZeroShotPolicy {
	return ZeroShotPolicy{
		AIFloor:           0.55,
		AIMargin:          0.1,
		AIConfidenceMin:   0.6,
		AIConfidenceMax:   0.95,
		RealConfidenceMin: 0.55,
		RealConfidenceMax: 0.95,
	}
}

// Decide labels an image "ai" only when aiScore clears both the absolute floor
// and the margin over photoScore. Confidence is clamped into the label's band.
func (p ZeroShotPolicy) Decide(aiScore, photoScore float64) (Label, float64) {
	if aiScore >= math.Max(p.AIFloor, photoScore+p.AIMargin) {
		return LabelAI, clamp(aiScore, p.AIConfidenceMin, p.AIConfidenceMax)
	}
	return LabelReal, clamp(photoScore, p.RealConfidenceMin, p.RealConfidenceMax)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
