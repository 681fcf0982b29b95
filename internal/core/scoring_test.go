package core

import (
	"math"
	"testing"
)

// --------------- Score() tests ---------------

func TestScore_SuccessRange(t *testing.T) {
	latencies := []int64{0, 50, 399, 400, 1000, 2000, 3500, 10000}
	lengths := []int{0, 15, 51, 101, 301, 801}
	accuracies := []float64{0, 5, 10}

	for _, lat := range latencies {
		for _, length := range lengths {
			for _, acc := range accuracies {
				m := Score(true, lat, length, acc)
				if m.Overall < 0 || m.Overall > 10 {
					t.Fatalf("overall out of range: %v (lat=%d len=%d acc=%v)", m.Overall, lat, length, acc)
				}
			}
		}
	}
}

func TestScore_FailureZeroesOverall(t *testing.T) {
	m := Score(false, 0, 500, 9.5)
	if m.Overall != 0 {
		t.Fatalf("failed task should score 0, got %v", m.Overall)
	}
	if m.SpeedTier != TierFailed {
		t.Fatalf("failed task tier should be %q, got %q", TierFailed, m.SpeedTier)
	}
	if m.SpeedScore != 0 {
		t.Fatalf("failed task speed score should be 0, got %v", m.SpeedScore)
	}
}

func TestScore_SpeedTiers(t *testing.T) {
	tests := []struct {
		latency int64
		want    string
	}{
		{0, TierFastest},
		{399, TierFastest},
		{400, TierFast},
		{999, TierFast},
		{1000, TierAverage},
		{1999, TierAverage},
		{2000, TierSlow},
		{3499, TierSlow},
		{3500, TierSlowest},
		{60000, TierSlowest},
	}

	for _, tt := range tests {
		m := Score(true, tt.latency, 100, 5)
		if m.SpeedTier != tt.want {
			t.Fatalf("latency %d: expected tier %q, got %q", tt.latency, tt.want, m.SpeedTier)
		}
	}
}

func TestScore_LengthBuckets(t *testing.T) {
	tests := []struct {
		length int
		want   float64
	}{
		{0, 1},
		{50, 1},
		{51, 3},
		{100, 3},
		{101, 5},
		{300, 5},
		{301, 7},
		{800, 7},
		{801, 10},
		{5000, 10},
	}

	for _, tt := range tests {
		m := Score(true, 100, tt.length, 5)
		if m.LengthScore != tt.want {
			t.Fatalf("length %d: expected score %v, got %v", tt.length, tt.want, m.LengthScore)
		}
	}
}

func TestScore_WeightedFormula(t *testing.T) {
	// latency 50 → speedScore 9.875；length 15 → lengthScore 1
	m := Score(true, 50, 15, 8)
	want := math.Round((8*0.6+9.875*0.3+1*0.1)*100) / 100
	if m.Overall != want {
		t.Fatalf("expected overall %v, got %v", want, m.Overall)
	}
}

func TestScore_SpeedScoreFloorsAtZero(t *testing.T) {
	m := Score(true, 100000, 100, 5)
	if m.SpeedScore != 0 {
		t.Fatalf("speed score should floor at 0, got %v", m.SpeedScore)
	}
}

func TestScore_Deterministic(t *testing.T) {
	a := Score(true, 734, 215, 7.3)
	for i := 0; i < 100; i++ {
		b := Score(true, 734, 215, 7.3)
		if a != b {
			t.Fatalf("scoring is not deterministic: %+v vs %+v", a, b)
		}
	}
}

// --------------- Failure detector tests ---------------

func TestIsFailureResponse_ShortText(t *testing.T) {
	if !IsFailureResponse("") {
		t.Fatal("empty text should be a failure")
	}
	if !IsFailureResponse("   short   ") {
		t.Fatal("short text should be a failure")
	}
	if !IsFailureResponse("exactly 19 chars!!!") {
		t.Fatal("19-char text should be a failure")
	}
}

func TestIsFailureResponse_Denylist(t *testing.T) {
	cases := []string{
		"Error: something went wrong upstream today",
		"Your API KEY INVALID, please rotate the credential",
		"The request failed because the quota exceeded limits",
		"Unauthorized access to this endpoint is forbidden",
	}
	for _, text := range cases {
		if !IsFailureResponse(text) {
			t.Fatalf("expected failure for %q", text)
		}
	}
}

func TestIsFailureResponse_HealthyText(t *testing.T) {
	if IsFailureResponse("Paris is the capital of France, a well-known fact.") {
		t.Fatal("healthy response should not be a failure")
	}
}

// --------------- Token estimation ---------------

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 0},
		{1, 1},
		{4, 1},
		{5, 2},
		{15, 4},
		{4000, 1000},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.length); got != tt.want {
			t.Fatalf("EstimateTokens(%d) = %d, want %d", tt.length, got, tt.want)
		}
	}
}
