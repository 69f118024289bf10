package domain

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:  {StatusPaid, StatusCanceled},
		StatusPaid:     {StatusShipped, StatusCanceled, StatusRefunded, StatusDisputed},
		StatusShipped:  {StatusDelivered, StatusRefunded, StatusDisputed},
		StatusDisputed: {StatusRefunded, StatusPaid},
	}
	all := []Status{StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCanceled, StatusRefunded, StatusDisputed}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusCanceled, StatusDelivered, StatusRefunded} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StatusPaid.IsTerminal() {
		t.Error("paid should not be terminal")
	}
	if CanTransition(StatusRefunded, StatusPaid) {
		t.Error("refunded must never move back to paid")
	}
}

func TestStatusValid(t *testing.T) {
	if Status("lost").Valid() {
		t.Error("unknown status accepted")
	}
	if !StatusDisputed.Valid() {
		t.Error("disputed rejected")
	}
}
