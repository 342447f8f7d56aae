// internal/core/errors_test.go
package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindPredicates(t *testing.T) {
	assert.True(t, IsValidation(Validationf("bad id %q", "x")))
	assert.True(t, IsState(Statef("game over")))
	assert.True(t, IsConflict(Conflictf("already queued")))
	assert.True(t, IsNotFound(NotFoundf("no such session")))

	assert.False(t, IsValidation(Statef("game over")))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.False(t, IsConflict(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("submit move: %w", Validationf("card not in hand"))
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "card not in hand")
}
