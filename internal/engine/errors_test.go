package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunError_Format(t *testing.T) {
	err := NewConfigError("A", "adapter does not support %s", "xml")
	assert.Equal(t, "INVALID_CONFIG: adapter does not support xml (adapter=A)", err.Error())

	cause := errors.New("disk full")
	serr := NewStoreError("run-1", cause)
	assert.Equal(t, "STORE_FAILED: could not record run (run=run-1): disk full", serr.Error())
	assert.ErrorIs(t, serr, cause)
}

func TestRunError_Predicates(t *testing.T) {
	cfg := fmt.Errorf("wrapped: %w", NewConfigError("", "bad"))
	pre := fmt.Errorf("wrapped: %w", NewPreflightError([]string{"A"}, errors.New("down")))
	st := NewStoreError("r", errors.New("x"))
	budget := &BudgetExceededError{Candidates: 27, Limit: 10}

	assert.True(t, IsConfigError(cfg))
	assert.True(t, IsConfigError(budget))
	assert.False(t, IsConfigError(pre))

	assert.True(t, IsPreflightError(pre))
	assert.False(t, IsPreflightError(cfg))

	assert.True(t, IsStoreError(st))
	assert.False(t, IsStoreError(errors.New("plain")))
}
