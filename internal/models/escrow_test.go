package models

import "testing"

func TestIsValidEscrowTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{EscrowStatusAwaitingPayment, EscrowStatusFunded, true},
		{EscrowStatusAwaitingPayment, EscrowStatusActive, true},
		{EscrowStatusFunded, EscrowStatusActive, true},
		{EscrowStatusActive, EscrowStatusCompleted, true},
		{EscrowStatusActive, EscrowStatusWithdrawn, true},
		{EscrowStatusCompleted, EscrowStatusWithdrawn, true},
		{EscrowStatusFunded, EscrowStatusWithdrawn, true},
		{EscrowStatusFunded, EscrowStatusCompleted, true},

		// Cancellation paths
		{EscrowStatusAwaitingPayment, EscrowStatusCancelled, true},
		{EscrowStatusFunded, EscrowStatusCancelled, true},

		// Invalid transitions
		{EscrowStatusAwaitingPayment, EscrowStatusWithdrawn, false},
		{EscrowStatusActive, EscrowStatusCancelled, false},
		{EscrowStatusWithdrawn, EscrowStatusActive, false},
		{EscrowStatusCancelled, EscrowStatusFunded, false},
		{EscrowStatusCompleted, EscrowStatusActive, false},
		{"nonexistent", EscrowStatusActive, false},
		{EscrowStatusActive, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidEscrowTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidEscrowTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllEscrowStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		EscrowStatusAwaitingPayment, EscrowStatusActive, EscrowStatusFunded,
		EscrowStatusCompleted, EscrowStatusWithdrawn, EscrowStatusCancelled,
	}

	for _, status := range allStatuses {
		if _, ok := ValidEscrowTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidEscrowTransitions map", status)
		}
	}
}

func TestTerminalEscrowStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{EscrowStatusWithdrawn, EscrowStatusCancelled}
	for _, status := range terminal {
		transitions := ValidEscrowTransitions[status]
		if len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
	}
}

func TestNormalizeEscrowStatus(t *testing.T) {
	tests := map[string]string{
		"awaiting-payment": EscrowStatusAwaitingPayment,
		"awaiting_payment": EscrowStatusAwaitingPayment,
		" Active ":         EscrowStatusActive,
		"WITHDRAWN":        EscrowStatusWithdrawn,
	}
	for in, want := range tests {
		if got := NormalizeEscrowStatus(in); got != want {
			t.Errorf("NormalizeEscrowStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscrowOwnedBy(t *testing.T) {
	e := Escrow{SenderWallet: "rSender", ReceiverWallet: "rReceiver"}
	if !e.OwnedBy("rSender") || !e.OwnedBy("rReceiver") {
		t.Fatal("sender and receiver must own the escrow")
	}
	if e.OwnedBy("rOther") || e.OwnedBy("") {
		t.Fatal("unrelated or empty address must not own the escrow")
	}
}

func TestYieldSplitValid(t *testing.T) {
	if !DefaultYieldSplit.Valid() {
		t.Fatal("default split must be valid")
	}
	if (YieldSplit{Buyer: 50, Seller: 50, Protocol: 10}).Valid() {
		t.Fatal("split over 100% must be invalid")
	}
	if (YieldSplit{Buyer: -10, Seller: 90, Protocol: 20}).Valid() {
		t.Fatal("negative share must be invalid")
	}
}

func TestIsLocked(t *testing.T) {
	tests := map[string]bool{
		EscrowStatusAwaitingPayment: false,
		EscrowStatusActive:          true,
		EscrowStatusFunded:          true,
		EscrowStatusCompleted:       true,
		EscrowStatusWithdrawn:       false,
		EscrowStatusCancelled:       false,
	}
	for status, want := range tests {
		if got := IsLocked(status); got != want {
			t.Errorf("IsLocked(%q) = %v, want %v", status, got, want)
		}
	}
}

// Every status a confirmed payment can land in must be able to reach withdrawn.
func TestLockedStatusesCanBeWithdrawn(t *testing.T) {
	for _, status := range ValidEscrowTransitions[EscrowStatusAwaitingPayment] {
		if status == EscrowStatusCancelled {
			continue
		}
		if !IsValidEscrowTransition(status, EscrowStatusWithdrawn) {
			t.Errorf("%s cannot reach %s", status, EscrowStatusWithdrawn)
		}
	}
}
