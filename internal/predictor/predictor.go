// Package predictor turns a batch of raw water-level samples into a Trend.
//
// The projection is a plain linear extrapolation: the mean step-to-step change
// of the valid samples is carried StepsAhead samples forward, with each sample
// taken to represent MinutesPerStep minutes of real time.
package predictor

import (
	"fmt"
	"math"

	"github.com/afroash/flood-monitor/internal/models"
)

const (
	// StepsAhead is how many sampling steps the rising case projects forward.
	StepsAhead = 3
	// MinutesPerStep is the real-world duration assumed for one sample.
	MinutesPerStep = 30
	// MinutesLabelLimit is the largest duration rendered as "N mins".
	MinutesLabelLimit = 60
)

// Predict computes the trend for samples ordered oldest first.
// It never fails: unparseable samples are skipped for the trend and
// count as zero when they are the latest sample.
func Predict(raw []string) models.Trend {
	trend := models.Trend{
		TimeToPeak:    models.LabelNotAvailable,
		Direction:     models.DirectionInsufficient,
		MinutesToPeak: -1,
	}
	if len(raw) == 0 {
		return trend
	}

	current, _ := models.ParseLevel(raw[len(raw)-1])
	current = math.Max(0, current)
	trend.CurrentLevel = current
	trend.PredictedLevel = current

	levels := validLevels(raw)
	trend.ValidSamples = len(levels)
	if len(levels) < 2 {
		return trend
	}

	avg := averageChange(levels)
	trend.AvgChange = avg

	switch {
	case avg > 0:
		predicted := round2(current + avg*StepsAhead)
		if predicted < current {
			// rounding to centimetres can undershoot a tiny rise
			predicted = current
		}
		minutes := int(math.Round(MinutesPerStep * (predicted - current) / avg))
		trend.PredictedLevel = predicted
		trend.MinutesToPeak = minutes
		trend.TimeToPeak = FormatTimeToPeak(minutes)
		trend.Direction = models.DirectionRising
	case avg < 0:
		trend.TimeToPeak = models.LabelDecreasing
		trend.Direction = models.DirectionFalling
	default:
		trend.TimeToPeak = models.LabelStable
		trend.Direction = models.DirectionStable
	}
	return trend
}

// FormatTimeToPeak renders a duration in minutes as "N mins" up to an hour
// and as "Xh Ym" beyond that.
func FormatTimeToPeak(minutes int) string {
	if minutes <= MinutesLabelLimit {
		return fmt.Sprintf("%d mins", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func validLevels(raw []string) []float64 {
	levels := make([]float64, 0, len(raw))
	for _, s := range raw {
		if v, ok := models.ParseLevel(s); ok && v >= 0 {
			levels = append(levels, v)
		}
	}
	return levels
}

// averageChange is the mean of successive differences; len(levels) >= 2.
func averageChange(levels []float64) float64 {
	var sum float64
	for i := 1; i < len(levels); i++ {
		sum += levels[i] - levels[i-1]
	}
	return sum / float64(len(levels)-1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
