package silero

import "testing"

func TestThresholdForAggressiveness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		aggressiveness int
		want           float32
	}{
		{0, 0.3},
		{1, 0.4},
		{2, 0.5},
		{3, 0.6},
		{-1, 0.5},
		{7, 0.5},
	}
	for _, tc := range tests {
		if got := ThresholdForAggressiveness(tc.aggressiveness); got != tc.want {
			t.Errorf("ThresholdForAggressiveness(%d) = %v, want %v", tc.aggressiveness, got, tc.want)
		}
	}
}

func TestWindowSamples(t *testing.T) {
	t.Parallel()

	if got := windowSamples(8000); got != 256 {
		t.Errorf("windowSamples(8000) = %d, want 256", got)
	}
	if got := windowSamples(16000); got != 512 {
		t.Errorf("windowSamples(16000) = %d, want 512", got)
	}
}

func TestNewRejectsUnsupportedSampleRate(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{ModelPath: "model.onnx", SampleRate: 44100}); err == nil {
		t.Fatal("New accepted a 44.1 kHz sample rate")
	}
}
