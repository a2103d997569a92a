package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindInternal, "internal"},
		{KindInvalidRegion, "invalid_region"},
		{KindNotConnected, "not_connected"},
		{KindPermissionDenied, "permission_denied"},
		{KindValidation, "validation_error"},
		{KindSafetyRule, "safety_rule_violation"},
		{KindSQLSafety, "sql_safety_violation"},
		{KindDuplicateKey, "duplicate_key"},
		{KindDBUnavailable, "db_unavailable"},
		{KindTimeout, "timeout"},
		{KindParseFailure, "parse_failure"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestKindOf(t *testing.T) {
	err := SafetyRule("records newer than 7 days")
	assert.Equal(t, KindSafetyRule, KindOf(err))

	wrapped := fmt.Errorf("archive failed: %w", err)
	assert.Equal(t, KindSafetyRule, KindOf(wrapped))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestIsKind(t *testing.T) {
	err := PermissionDenied("Monitor", "archive")
	assert.True(t, IsKind(err, KindPermissionDenied))
	assert.False(t, IsKind(err, KindValidation))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsKind(wrapped, KindPermissionDenied))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindDBUnavailable, cause, "region %s unreachable", "EU")

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "db_unavailable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestErrorIsMatchesByKind(t *testing.T) {
	a := NotConnected("APAC")
	b := NotConnected("EU")
	assert.True(t, errors.Is(a, b))

	c := InvalidRegion("APAC")
	assert.False(t, errors.Is(a, c))
}
