package model

import "testing"

func TestRoundPrev(t *testing.T) {
	tests := []struct {
		round  Round
		want   Round
		wantOK bool
	}{
		{Round{Quarter: 1, Month: 1}, Round{}, false},
		{Round{Quarter: 1, Month: 2}, Round{Quarter: 1, Month: 1}, true},
		{Round{Quarter: 2, Month: 1}, Round{Quarter: 1, Month: 3}, true},
		{Round{Quarter: 4, Month: 3}, Round{Quarter: 4, Month: 2}, true},
	}
	for _, tt := range tests {
		got, ok := tt.round.Prev()
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("q%d m%d Prev() = q%d m%d %v, want q%d m%d %v",
				tt.round.Quarter, tt.round.Month, got.Quarter, got.Month, ok,
				tt.want.Quarter, tt.want.Month, tt.wantOK)
		}
	}
}

func TestRoundFlags(t *testing.T) {
	if !(Round{Quarter: 1, Month: 1}).First() {
		t.Error("q1 m1 should be the first round")
	}
	if (Round{Quarter: 2, Month: 1}).First() {
		t.Error("q2 m1 is not the first round")
	}
	if !(Round{Quarter: 1, Month: 3}).QuarterEnd() {
		t.Error("month 3 ends the quarter")
	}
	if (Round{Quarter: 1, Month: 2}).QuarterEnd() {
		t.Error("month 2 does not end the quarter")
	}
}
