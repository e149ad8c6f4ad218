package priority

import (
	"fmt"
	"time"
)

// Class is an event priority class; lower values are served first
type Class int

const (
	Critical Class = iota
	Safety
	Shortage
	Availability
	Routine
	classCount
)

var classNames = [classCount]string{"critical", "safety", "shortage", "availability", "routine"}

func (c Class) String() string {
	if c < 0 || c >= classCount {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return classNames[c]
}

// Classes returns all classes in priority order
func Classes() []Class {
	return []Class{Critical, Safety, Shortage, Availability, Routine}
}

// ParseClass resolves a class name
func ParseClass(name string) (Class, error) {
	for i, candidate := range classNames {
		if candidate == name {
			return Class(i), nil
		}
	}
	return 0, fmt.Errorf("unknown priority class %q", name)
}

// Budget is a class latency target. Capacity is the backlog the class can
// drain within Target at the sustained throughput.
type Budget struct {
	Target   time.Duration `yaml:"target" mapstructure:"target"`
	Capacity int           `yaml:"capacity" mapstructure:"capacity"`
}

// DefaultThroughput is the sustained events per second target
const DefaultThroughput = 50

// DefaultBudgets returns immediate critical and safety handling, 1 minute
// for shortages, 2 minutes for availability and 5 minutes for routine
// updates.
func DefaultBudgets() map[Class]Budget {
	return BudgetsFor(DefaultThroughput)
}

// BudgetsFor derives class capacities from a throughput in events/second
func BudgetsFor(throughput int) map[Class]Budget {
	if throughput <= 0 {
		throughput = DefaultThroughput
	}
	capacity := func(target time.Duration) int {
		if target <= 0 {
			return throughput
		}
		return int(target.Seconds()) * throughput
	}
	targets := map[Class]time.Duration{
		Critical:     0,
		Safety:       0,
		Shortage:     time.Minute,
		Availability: 2 * time.Minute,
		Routine:      5 * time.Minute,
	}
	ret := make(map[Class]Budget, len(targets))
	for class, target := range targets {
		ret[class] = Budget{Target: target, Capacity: capacity(target)}
	}
	return ret
}
