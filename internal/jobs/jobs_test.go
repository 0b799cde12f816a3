package jobs

import (
	"context"
	"testing"
	"time"

	"invbot/pkg/logx"
)

func TestParseClock(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{in: "00:00", hour: 0, minute: 0},
		{in: "23:59", hour: 23, minute: 59},
		{in: " 9:30 ", hour: 9, minute: 30},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		h, m, err := parseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseClock(%q) accepted", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseClock(%q): %v", tc.in, err)
			continue
		}
		if h != tc.hour || m != tc.minute {
			t.Errorf("parseClock(%q) = %d:%d, want %d:%d", tc.in, h, m, tc.hour, tc.minute)
		}
	}
}

func TestAddDailyRejectsBadTime(t *testing.T) {
	t.Parallel()

	r := NewRunner(time.UTC, logx.Nop())
	if err := r.AddDaily("reset", "25:00", func() {}); err == nil {
		t.Error("AddDaily accepted an invalid clock time")
	}
	if err := r.AddDaily("reset", "00:00", func() {}); err != nil {
		t.Errorf("AddDaily: %v", err)
	}
}

func TestRunnerStartStop(t *testing.T) {
	t.Parallel()

	r := NewRunner(time.UTC, logx.Nop())
	r.AddEveryMinute("noop", func() {})
	r.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
