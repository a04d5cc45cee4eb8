package errdef

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"bad request", NewBadRequest("threshold %v out of range", 1.5), IsBadRequest},
		{"unauthorized", NewUnauthorized("token missing"), IsUnauthorized},
		{"forbidden", NewForbidden("not an approver"), IsForbidden},
		{"not found", NewNotFound("group %q not found", "IT"), IsNotFound},
		{"conflict", NewConflict("order is DENIED"), IsConflict},
		{"duplicated", NewDuplicated("already approved"), IsDuplicated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)))
			assert.False(t, tt.check(errors.New("plain")))
		})
	}
}

func TestKindsKeepCause(t *testing.T) {
	err := NewNotFound("order %s: %w", "abc", gorm.ErrRecordNotFound)

	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.False(t, IsConflict(err))
	assert.Equal(t, "order abc: record not found", err.Error())
}
