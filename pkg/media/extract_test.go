package media

import "testing"

func TestAtempoChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		speed float64
		want  string
	}{
		{0, ""},
		{1.0, ""},
		{0.8, "atempo=0.800"},
		{0.25, "atempo=0.500,atempo=0.500"},
		{4.0, "atempo=2.000,atempo=2.000"},
		{3.0, "atempo=2.000,atempo=1.500"},
	}
	for _, tt := range tests {
		if got := atempoChain(tt.speed); got != tt.want {
			t.Errorf("atempoChain(%v) = %q, want %q", tt.speed, got, tt.want)
		}
	}
}
