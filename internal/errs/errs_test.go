package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatching(t *testing.T) {
	err := Newf(ValidationError, "prize %d needs a name", 2)

	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected %v to match ErrValidation", err)
	}
	if errors.Is(err, ErrChainCall) {
		t.Errorf("validation error must not match ErrChainCall")
	}

	wrapped := fmt.Errorf("create raffle: %w", err)
	if got := KindOf(wrapped); got != ValidationError {
		t.Errorf("expected kind %q, got %q", ValidationError, got)
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New(UserRejected, "user rejected the request")
	got := Wrap(ChainCallFailure, fmt.Errorf("request: %w", inner), "call failed")
	if got.Kind != UserRejected {
		t.Errorf("expected kind %q, got %q", UserRejected, got.Kind)
	}

	plain := Wrap(ChainCallFailure, errors.New("dial tcp: refused"), "read raffle")
	if plain.Kind != ChainCallFailure {
		t.Errorf("expected kind %q, got %q", ChainCallFailure, plain.Kind)
	}
	if plain.Error() != "read raffle: dial tcp: refused" {
		t.Errorf("unexpected message %q", plain.Error())
	}
	if Wrap(ChainCallFailure, nil, "x") != nil {
		t.Errorf("wrapping nil must return nil")
	}
}
