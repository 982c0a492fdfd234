package service

import "testing"

func TestClampLimit(t *testing.T) {
	cases := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, DefaultListLimit},
		{"negative uses default", -5, DefaultListLimit},
		{"within range passes through", 50, 50},
		{"above max clamps to max", 10_000, MaxListLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClampLimit(tc.limit, DefaultListLimit, MaxListLimit); got != tc.want {
				t.Fatalf("ClampLimit(%d) = %d, want %d", tc.limit, got, tc.want)
			}
		})
	}
}
