package puzzle

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindExtraction(t *testing.T) {
	err := Errorf(KindNotYourTurn, "it is player %s's turn", SeatB)
	if KindOf(err) != KindNotYourTurn {
		t.Errorf("Expected kind %s, got %s", KindNotYourTurn, KindOf(err))
	}
	if !IsKind(err, KindNotYourTurn) {
		t.Error("Expected IsKind to match")
	}
	if IsKind(err, KindInvalidPosition) {
		t.Error("Expected IsKind to reject a different kind")
	}

	// Kinds survive fmt wrapping.
	wrapped := fmt.Errorf("handling request: %w", err)
	if KindOf(wrapped) != KindNotYourTurn {
		t.Errorf("Expected the kind through a wrap, got %s", KindOf(wrapped))
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("Expected no kind on a plain error")
	}
	if KindOf(nil) != "" {
		t.Error("Expected no kind on nil")
	}
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := &InvariantViolation{Invariant: "conservation", Detail: "8 of 9 pieces accounted for"}
	err := WrapError(KindSnapshotRejected, cause)

	if !IsKind(err, KindSnapshotRejected) {
		t.Errorf("Expected snapshot_rejected, got %v", err)
	}
	var v *InvariantViolation
	if !errors.As(err, &v) {
		t.Fatal("Expected the violation reachable through the wrap")
	}
	if v.Invariant != "conservation" {
		t.Errorf("Expected the conservation violation, got %q", v.Invariant)
	}
}
