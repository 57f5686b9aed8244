package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := NotFound("Trade not found: %d", 10000)
	wrapped := fmt.Errorf("amend: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.True(t, errors.Is(wrapped, &Error{Kind: KindNotFound}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: KindConflict}))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestValidationKeepsEveryDetail(t *testing.T) {
	err := Validation([]string{"first", "second"})
	assert.Equal(t, []string{"first", "second"}, DetailsOf(err))
	assert.Contains(t, err.Error(), "first; second")
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindInternal, cause, "save trade")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[INTERNAL] save trade: disk full", err.Error())
}

func TestDeniedCarriesCaller(t *testing.T) {
	err := Denied("carol", "AMEND")
	assert.Equal(t, KindAuthorization, KindOf(err))
	assert.Equal(t, "carol", err.UserID)
	assert.Equal(t, "AMEND", err.Operation)
	assert.Equal(t, "User carol does not have privileges to amend this trade.", err.Message)
}
