package kvdomain

import (
	"errors"
	"testing"
)

func TestCommitTokenCompare(t *testing.T) {
	envA := EnvironmentUUID{1}
	envB := EnvironmentUUID{2}

	t1 := CommitToken{Env: envA, LSN: 1001}
	t2 := CommitToken{Env: envA, LSN: 1002}

	if !t2.After(t1) {
		t.Fatal("t2 should be after t1 within the same environment")
	}

	c, err := t1.Compare(t2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != -1 {
		t.Fatalf("t1.Compare(t2) = %d, want -1", c)
	}

	other := CommitToken{Env: envB, LSN: 1}
	if _, err := t1.Compare(other); !errors.Is(err, ErrInvalidComparison) {
		t.Fatalf("expected INVALID_COMPARISON across environments, got %v", err)
	}
}

func TestCommitTokenAfterPanicsAcrossEnvironments(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic comparing tokens from different environments")
		}
	}()
	a := CommitToken{Env: EnvironmentUUID{1}, LSN: 1}
	b := CommitToken{Env: EnvironmentUUID{2}, LSN: 1}
	_ = a.After(b)
}
