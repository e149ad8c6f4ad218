// Package scorer computes the weighted soft-constraint score of a candidate
// assignment.
package scorer

import (
	"math"
	"time"

	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/registry"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultMaxDistance = 100.0
	DefaultMaxCost     = 100.0
)

// Weights of the score components; they are expected to sum to 1
type Weights struct {
	Skill      float64 `yaml:"skill" mapstructure:"skill"`
	Proximity  float64 `yaml:"proximity" mapstructure:"proximity"`
	Efficiency float64 `yaml:"efficiency" mapstructure:"efficiency"`
	Cost       float64 `yaml:"cost" mapstructure:"cost"`
}

// DefaultWeights returns 0.4/0.3/0.2/0.1
func DefaultWeights() Weights {
	return Weights{Skill: 0.4, Proximity: 0.3, Efficiency: 0.2, Cost: 0.1}
}

func (w Weights) sum() float64 {
	return w.Skill + w.Proximity + w.Efficiency + w.Cost
}

// Breakdown lists the score components, each in [0,1]
type Breakdown struct {
	Skill      float64 `json:"skill"`
	Proximity  float64 `json:"proximity"`
	Efficiency float64 `json:"efficiency"`
	Cost       float64 `json:"cost"`
	Total      float64 `json:"total"`
	// CombinedCost is the hourly plus material cost used for tie-breaks
	CombinedCost float64 `json:"combinedCost"`
}

// Scorer is a pure scoring function
type Scorer struct {
	weights     Weights
	maxDistance float64
	maxCost     float64
}

// Option customises a Scorer
type Option func(*Scorer)

func WithWeights(weights Weights) Option {
	return func(s *Scorer) {
		if weights.sum() > 0 {
			s.weights = weights
		}
	}
}

func WithMaxDistance(d float64) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

func WithMaxCost(c float64) Option {
	return func(s *Scorer) {
		if c > 0 {
			s.maxCost = c
		}
	}
}

// New creates a scorer
func New(opts ...Option) *Scorer {
	ret := &Scorer{weights: DefaultWeights(), maxDistance: DefaultMaxDistance, maxCost: DefaultMaxCost}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Score returns the weighted score in [0,1]
func (s *Scorer) Score(wo *model.WorkOrder, op *model.Operator, m *model.Machine, snapshot *registry.Snapshot) float64 {
	return s.Breakdown(wo, op, m, snapshot).Total
}

// Breakdown returns the score with its components
func (s *Scorer) Breakdown(wo *model.WorkOrder, op *model.Operator, m *model.Machine, snapshot *registry.Snapshot) Breakdown {
	ret := Breakdown{
		Skill:        skillMatch(wo, op),
		Proximity:    s.proximity(wo, op, m, snapshot),
		Efficiency:   efficiency(m, snapshot),
		CombinedCost: CombinedCost(wo, op, m, snapshot),
	}
	ret.Cost = clamp(1 - ret.CombinedCost/s.maxCost)
	total := s.weights.Skill*ret.Skill + s.weights.Proximity*ret.Proximity +
		s.weights.Efficiency*ret.Efficiency + s.weights.Cost*ret.Cost
	ret.Total = clamp(total / s.weights.sum())
	return ret
}

// skillMatch is the mean required skill level over 5; a work order without
// skill requirements matches any operator fully.
func skillMatch(wo *model.WorkOrder, op *model.Operator) float64 {
	if len(wo.RequiredSkills) == 0 {
		return 1
	}
	levels := make([]float64, len(wo.RequiredSkills))
	for i, skill := range wo.RequiredSkills {
		levels[i] = float64(op.SkillLevel(skill))
	}
	return clamp(stat.Mean(levels, nil) / 5)
}

func (s *Scorer) proximity(wo *model.WorkOrder, op *model.Operator, m *model.Machine, snapshot *registry.Snapshot) float64 {
	locations := []string{op.Location, m.Location}
	for _, req := range wo.RequiredMaterials {
		if material := snapshot.Material(req.MaterialID); material != nil {
			locations = append(locations, material.Location)
		}
	}
	return clamp(1 - snapshot.Layout.MaxPairwise(locations...)/s.maxDistance)
}

// efficiency is the inverse of the cycle time normalised by the fleet's max
// cycle time, rescaled so the fastest machine scores 1.
func efficiency(m *model.Machine, snapshot *registry.Snapshot) float64 {
	if m.CycleTime <= 0 {
		return 1
	}
	cycles := fleetCycles(snapshot)
	if len(cycles) == 0 {
		return 1
	}
	fastest, slowest := floats.Min(cycles), floats.Max(cycles)
	normalized := math.Max(minutes(m.CycleTime)/slowest, math.SmallestNonzeroFloat64)
	return clamp((1 / normalized) / (slowest / fastest))
}

func fleetCycles(snapshot *registry.Snapshot) []float64 {
	ret := make([]float64, 0, len(snapshot.Machines))
	for _, m := range snapshot.Machines {
		if m.CycleTime > 0 {
			ret = append(ret, minutes(m.CycleTime))
		}
	}
	return ret
}

// CombinedCost returns operator and machine hourly cost plus the cost of the
// required materials.
func CombinedCost(wo *model.WorkOrder, op *model.Operator, m *model.Machine, snapshot *registry.Snapshot) float64 {
	ret := op.HourlyCost + m.HourlyCost
	for _, req := range wo.RequiredMaterials {
		if material := snapshot.Material(req.MaterialID); material != nil {
			ret += req.Quantity * material.CostPerUnit
		}
	}
	return ret
}

func minutes(d time.Duration) float64 { return d.Minutes() }

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
