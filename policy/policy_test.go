package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		policy *Policy
		valid  bool
	}{
		{name: "default", policy: Default(), valid: true},
		{name: "nil", valid: true},
		{name: "negative buffer", policy: &Policy{StabilityBuffer: -time.Minute}},
		{name: "guard above one", policy: &Policy{ProgressGuard: 1.5}},
		{name: "floor below zero", policy: &Policy{EfficiencyFloor: -0.1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.policy.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestPolicy_Context(t *testing.T) {
	fallback := Default()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	override := fallback.Clone()
	override.StabilityBuffer = time.Minute
	override.Pinned = []string{"W7"}
	ctx := WithPolicy(context.Background(), override)
	assert.Equal(t, time.Minute, FromContext(ctx, fallback).StabilityBuffer)
	assert.True(t, FromContext(ctx, fallback).IsPinned("w7"))
	assert.False(t, fallback.IsPinned("W7"))
	assert.Equal(t, DefaultStabilityBuffer, FromContext(nil, nil).StabilityBuffer)
}
