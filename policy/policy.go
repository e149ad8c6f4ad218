package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults
const (
	DefaultStabilityBuffer = 15 * time.Minute
	DefaultProgressGuard   = 0.5
	DefaultMinImprovement  = 0.10
	DefaultIdleThreshold   = 5 * time.Minute
	DefaultEfficiencyFloor = 0.70
)

// Policy controls when an existing assignment may change.
//
//   - StabilityBuffer is the minimum time between reallocations of a work order.
//   - ProgressGuard suppresses reallocation past this completion ratio.
//   - MinImprovement is the relative score gain a new assignment must bring.
//   - IdleThreshold triggers review of a resource idle for longer.
//   - EfficiencyFloor triggers review when realized ÷ assigned score drops below it.
//   - Pinned work orders are only reallocated when they lose a resource.
//
// A nil *Policy means Default().
type Policy struct {
	StabilityBuffer time.Duration `json:"stabilityBuffer" yaml:"stabilityBuffer" mapstructure:"stability_buffer"`
	ProgressGuard   float64       `json:"progressGuard" yaml:"progressGuard" mapstructure:"progress_guard"`
	MinImprovement  float64       `json:"minImprovement" yaml:"minImprovement" mapstructure:"min_improvement"`
	IdleThreshold   time.Duration `json:"idleThreshold" yaml:"idleThreshold" mapstructure:"idle_threshold"`
	EfficiencyFloor float64       `json:"efficiencyFloor" yaml:"efficiencyFloor" mapstructure:"efficiency_floor"`
	Pinned          []string      `json:"pinned,omitempty" yaml:"pinned,omitempty" mapstructure:"pinned"`
}

// Default returns the 15 minute / 50% / 10% / 5 minute / 70% policy
func Default() *Policy {
	return &Policy{
		StabilityBuffer: DefaultStabilityBuffer,
		ProgressGuard:   DefaultProgressGuard,
		MinImprovement:  DefaultMinImprovement,
		IdleThreshold:   DefaultIdleThreshold,
		EfficiencyFloor: DefaultEfficiencyFloor,
	}
}

// Clone returns a copy of p
func (p *Policy) Clone() *Policy {
	if p == nil {
		return Default()
	}
	ret := *p
	ret.Pinned = append([]string(nil), p.Pinned...)
	return &ret
}

// Validate checks the ratios and durations
func (p *Policy) Validate() error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.StabilityBuffer < 0 {
		errs = append(errs, fmt.Errorf("stability buffer must not be negative"))
	}
	if p.IdleThreshold < 0 {
		errs = append(errs, fmt.Errorf("idle threshold must not be negative"))
	}
	if p.ProgressGuard < 0 || p.ProgressGuard > 1 {
		errs = append(errs, fmt.Errorf("progress guard %v outside [0,1]", p.ProgressGuard))
	}
	if p.MinImprovement < 0 {
		errs = append(errs, fmt.Errorf("min improvement must not be negative"))
	}
	if p.EfficiencyFloor < 0 || p.EfficiencyFloor > 1 {
		errs = append(errs, fmt.Errorf("efficiency floor %v outside [0,1]", p.EfficiencyFloor))
	}
	return errors.Join(errs...)
}

// IsPinned reports whether workOrderID is exempt from optional
// reallocation. Matching is case-insensitive.
func (p *Policy) IsPinned(workOrderID string) bool {
	if p == nil {
		return false
	}
	for _, candidate := range p.Pinned {
		if strings.EqualFold(candidate, workOrderID) {
			return true
		}
	}
	return false
}

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext returns the policy embedded in ctx or fallback.
func FromContext(ctx context.Context, fallback *Policy) *Policy {
	if ctx != nil {
		if v, ok := ctx.Value(ctxKey).(*Policy); ok && v != nil {
			return v
		}
	}
	if fallback == nil {
		return Default()
	}
	return fallback
}
