package model

import "testing"

func TestParseCallStatus(t *testing.T) {
	cases := []struct {
		in   string
		want CallStatus
		ok   bool
	}{
		{"IN_PROGRESS", CallInProgress, true},
		{"FINISHED", CallFinished, true},
		{" finished ", CallFinished, true},
		{"", CallInProgress, true},
		{"DROPPED", CallInProgress, false},
	}
	for _, c := range cases {
		got, ok := ParseCallStatus(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseCallStatus(%q) = (%s, %v), want (%s, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestCallStatusValid(t *testing.T) {
	if !CallInProgress.Valid() || !CallFinished.Valid() {
		t.Fatal("known statuses must be valid")
	}
	if CallStatus("DROPPED").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}
