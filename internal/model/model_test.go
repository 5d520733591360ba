package model

import "testing"

func TestClampScore(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.7, 1.0},
		{-1.7, -1.0},
		{0.4333, 0.4333},
		{1.0, 1.0},
		{-1.0, -1.0},
		{0.0, 0.0},
	}

	for _, c := range cases {
		if got := ClampScore(c.in); got != c.want {
			t.Errorf("ClampScore(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
