package draftengine

import "github.com/orderflow/orderflow/internal/extract"

// ExtractionPenaltyInputs carries the conditions that reduce
// extraction_confidence, per spec.md §4.11.
type ExtractionPenaltyInputs struct {
	ZeroLines           bool
	TextCoverageRatio    float64
	UsedVision           bool
	AnchorFailureRate    float64 // fraction of lines the anchor guard flagged
}

// ExtractionConfidence computes clamp01((0.40*header + 0.60*line) * penalty).
// Penalties do not stack: only the first applicable one is used, checked in
// the order zero lines (0.60), low text coverage without vision (0.50),
// anchor-failure rate above 0.30 (0.70).
func ExtractionConfidence(headerScore, lineScore float64, in ExtractionPenaltyInputs) float64 {
	base := 0.40*headerScore + 0.60*lineScore
	penalty := 1.0
	switch {
	case in.ZeroLines:
		penalty = 0.60
	case in.TextCoverageRatio < 0.15 && !in.UsedVision:
		penalty = 0.50
	case in.AnchorFailureRate > 0.30:
		penalty = 0.70
	}
	return clamp01(base * penalty)
}

// CustomerConfidence implements the three cases of spec.md §4.11.
func CustomerConfidence(autoSelected, userSelected bool, detectionScore float64) float64 {
	switch {
	case userSelected:
		return maxFloat(detectionScore, 0.90)
	case autoSelected:
		return detectionScore
	default:
		return 0
	}
}

// MatchingConfidence averages per-line match_confidence, counting lines
// without an internal SKU as 0.
func MatchingConfidence(lineConfidences []float64, hasInternalSKU []bool) float64 {
	if len(lineConfidences) == 0 {
		return 0
	}
	sum := 0.0
	for i, c := range lineConfidences {
		if hasInternalSKU[i] {
			sum += c
		}
	}
	return sum / float64(len(lineConfidences))
}

// OverallConfidence is confidence_score: clamp01(0.45*extraction + 0.20*customer + 0.35*matching).
func OverallConfidence(extraction, customer, matching float64) float64 {
	return clamp01(0.45*extraction + 0.20*customer + 0.35*matching)
}

// HeaderLineScores folds an extract.Record's per-field confidences into the
// header_score/line_score pair ExtractionConfidence consumes.
func HeaderLineScores(rec extract.Record) (header, line float64) {
	header = rec.Confidence.Order.HeaderScore()
	if len(rec.Confidence.Lines) == 0 {
		return header, 0
	}
	sum := 0.0
	for _, lc := range rec.Confidence.Lines {
		sum += lc.LineScore()
	}
	return header, sum / float64(len(rec.Confidence.Lines))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
