package predictor

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/afroash/flood-monitor/internal/models"
)

func TestPredict(t *testing.T) {
	tests := []struct {
		name          string
		raw           []string
		wantCurrent   float64
		wantPredicted float64
		wantLabel     string
		wantDirection models.Direction
		wantMinutes   int
	}{
		{
			name:          "rising",
			raw:           []string{"1.0", "1.5", "2.0"},
			wantCurrent:   2.0,
			wantPredicted: 3.5,
			wantLabel:     "1h 30m",
			wantDirection: models.DirectionRising,
			wantMinutes:   90,
		},
		{
			name:          "falling",
			raw:           []string{"3.0", "2.0", "1.0"},
			wantCurrent:   1.0,
			wantPredicted: 1.0,
			wantLabel:     models.LabelDecreasing,
			wantDirection: models.DirectionFalling,
			wantMinutes:   -1,
		},
		{
			name:          "flat",
			raw:           []string{"2.0", "2.0", "2.0"},
			wantCurrent:   2.0,
			wantPredicted: 2.0,
			wantLabel:     models.LabelStable,
			wantDirection: models.DirectionStable,
			wantMinutes:   -1,
		},
		{
			name:          "just over an hour",
			raw:           []string{"0.9951", "1.0"},
			wantCurrent:   1.0,
			wantPredicted: 1.01,
			wantLabel:     "1h 1m",
			wantDirection: models.DirectionRising,
			wantMinutes:   61,
		},
		{
			name:          "exactly an hour stays in minutes",
			raw:           []string{"0.99502", "1.0"},
			wantCurrent:   1.0,
			wantPredicted: 1.01,
			wantLabel:     "60 mins",
			wantDirection: models.DirectionRising,
			wantMinutes:   60,
		},
		{
			name:          "garbage and negative samples",
			raw:           []string{"abc", "-5", "4"},
			wantCurrent:   4,
			wantPredicted: 4,
			wantLabel:     models.LabelNotAvailable,
			wantDirection: models.DirectionInsufficient,
			wantMinutes:   -1,
		},
		{
			name:          "negative latest sample clamps to zero",
			raw:           []string{"1", "2", "-3"},
			wantCurrent:   0,
			wantPredicted: 3,
			wantLabel:     "1h 30m",
			wantDirection: models.DirectionRising,
			wantMinutes:   90,
		},
		{
			name:          "unparseable latest sample counts as zero",
			raw:           []string{"2", "1", "abc"},
			wantCurrent:   0,
			wantPredicted: 0,
			wantLabel:     models.LabelDecreasing,
			wantDirection: models.DirectionFalling,
			wantMinutes:   -1,
		},
		{
			name:          "single sample",
			raw:           []string{"2.5"},
			wantCurrent:   2.5,
			wantPredicted: 2.5,
			wantLabel:     models.LabelNotAvailable,
			wantDirection: models.DirectionInsufficient,
			wantMinutes:   -1,
		},
		{
			name:          "empty input",
			raw:           nil,
			wantCurrent:   0,
			wantPredicted: 0,
			wantLabel:     models.LabelNotAvailable,
			wantDirection: models.DirectionInsufficient,
			wantMinutes:   -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Predict(tt.raw)
			if got.CurrentLevel != tt.wantCurrent {
				t.Errorf("CurrentLevel = %v, want %v", got.CurrentLevel, tt.wantCurrent)
			}
			if got.PredictedLevel != tt.wantPredicted {
				t.Errorf("PredictedLevel = %v, want %v", got.PredictedLevel, tt.wantPredicted)
			}
			if got.TimeToPeak != tt.wantLabel {
				t.Errorf("TimeToPeak = %q, want %q", got.TimeToPeak, tt.wantLabel)
			}
			if got.Direction != tt.wantDirection {
				t.Errorf("Direction = %v, want %v", got.Direction, tt.wantDirection)
			}
			if got.MinutesToPeak != tt.wantMinutes {
				t.Errorf("MinutesToPeak = %d, want %d", got.MinutesToPeak, tt.wantMinutes)
			}
		})
	}
}

func TestFormatTimeToPeak(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "0 mins"},
		{45, "45 mins"},
		{60, "60 mins"},
		{61, "1h 1m"},
		{90, "1h 30m"},
		{125, "2h 5m"},
	}

	for _, tt := range tests {
		if got := FormatTimeToPeak(tt.minutes); got != tt.want {
			t.Errorf("FormatTimeToPeak(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

// randomBatch mixes valid levels, negatives and garbage.
func randomBatch(rng *rand.Rand) []string {
	n := rng.Intn(12)
	raw := make([]string, n)
	for i := range raw {
		switch rng.Intn(6) {
		case 0:
			raw[i] = "garbage"
		case 1:
			raw[i] = strconv.FormatFloat(-rng.Float64()*5, 'f', 3, 64)
		default:
			raw[i] = strconv.FormatFloat(rng.Float64()*5, 'f', 4, 64)
		}
	}
	return raw
}

func TestPredict_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		raw := randomBatch(rng)
		got := Predict(raw)

		if got.CurrentLevel < 0 {
			t.Fatalf("%v: CurrentLevel %v < 0", raw, got.CurrentLevel)
		}

		switch got.Direction {
		case models.DirectionRising:
			if got.PredictedLevel < got.CurrentLevel {
				t.Fatalf("%v: rising but PredictedLevel %v < CurrentLevel %v", raw, got.PredictedLevel, got.CurrentLevel)
			}
		default:
			if got.PredictedLevel != got.CurrentLevel {
				t.Fatalf("%v: %s but PredictedLevel %v != CurrentLevel %v", raw, got.Direction, got.PredictedLevel, got.CurrentLevel)
			}
		}

		if got.ValidSamples < 2 && got.TimeToPeak != models.LabelNotAvailable {
			t.Fatalf("%v: %d valid samples but TimeToPeak = %q", raw, got.ValidSamples, got.TimeToPeak)
		}

		if again := Predict(raw); again != got {
			t.Fatalf("%v: Predict is not deterministic: %+v vs %+v", raw, got, again)
		}
	}
}

func TestPredict_DoesNotModifyInput(t *testing.T) {
	raw := []string{"1.0", "abc", "2.0"}
	Predict(raw)
	if raw[0] != "1.0" || raw[1] != "abc" || raw[2] != "2.0" {
		t.Errorf("input modified: %v", raw)
	}
}
