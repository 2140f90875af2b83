package models

// Direction classifies the short-term movement of the water level.
type Direction string

const (
	DirectionRising       Direction = "rising"
	DirectionFalling      Direction = "falling"
	DirectionStable       Direction = "stable"
	DirectionInsufficient Direction = "insufficient"
)

// Time-to-peak labels for the non-rising cases.
const (
	LabelNotAvailable = "N/A"
	LabelDecreasing   = "Decreasing"
	LabelStable       = "Stable"
)

// Trend is the projection derived from the latest batch of readings.
type Trend struct {
	CurrentLevel   float64   `json:"current_level"`
	PredictedLevel float64   `json:"predicted_level"`
	TimeToPeak     string    `json:"time_to_peak"`
	Direction      Direction `json:"direction"`
	AvgChange      float64   `json:"avg_change"`
	MinutesToPeak  int       `json:"minutes_to_peak"` // -1 unless rising
	ValidSamples   int       `json:"valid_samples"`
}
