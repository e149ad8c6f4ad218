package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/registry"
)

func fixture() (*model.WorkOrder, *model.Operator, *registry.Snapshot) {
	wo := &model.WorkOrder{ID: "W1", RequiredSkills: []string{"weld"}, RequiredCapability: "weld",
		RequiredMaterials: []model.MaterialRequirement{{MaterialID: "S1", Quantity: 20}}, Location: "A"}
	op := &model.Operator{ID: "O1", Skills: map[string]int{"weld": 4}, Location: "A", HourlyCost: 25}
	snap := &registry.Snapshot{
		Layout: &model.Layout{Zones: map[string]model.Point{"A": {}, "B": {X: 30, Y: 40}}},
		Machines: map[string]*model.Machine{
			"M1": {ID: "M1", Location: "A", CycleTime: 10 * time.Minute, HourlyCost: 50},
			"M2": {ID: "M2", Location: "B", CycleTime: 20 * time.Minute, HourlyCost: 10},
		},
		Materials: map[string]*model.Material{"S1": {ID: "S1", Location: "A", QuantityAvailable: 100, CostPerUnit: 0.5}},
	}
	return wo, op, snap
}

func TestScorer_Breakdown(t *testing.T) {
	wo, op, snap := fixture()
	scorer := New()

	testCases := []struct {
		name      string
		machine   string
		mutate    func(wo *model.WorkOrder, op *model.Operator)
		expect    Breakdown
		tolerance float64
	}{
		{
			name:    "fastest machine, same zone",
			machine: "M1",
			expect:  Breakdown{Skill: 0.8, Proximity: 1, Efficiency: 1, Cost: 0.15, CombinedCost: 85, Total: 0.4*0.8 + 0.3 + 0.2 + 0.1*0.15},
		},
		{
			name:    "slower machine, distant zone",
			machine: "M2",
			expect:  Breakdown{Skill: 0.8, Proximity: 0.5, Efficiency: 0.5, Cost: 0.55, CombinedCost: 45, Total: 0.4*0.8 + 0.3*0.5 + 0.2*0.5 + 0.1*0.55},
		},
		{
			name:    "no skill requirement",
			machine: "M1",
			mutate:  func(wo *model.WorkOrder, op *model.Operator) { wo.RequiredSkills = nil },
			expect:  Breakdown{Skill: 1, Proximity: 1, Efficiency: 1, Cost: 0.15, CombinedCost: 85, Total: 0.4 + 0.3 + 0.2 + 0.1*0.15},
		},
		{
			name:    "mean of skill levels",
			machine: "M1",
			mutate: func(wo *model.WorkOrder, op *model.Operator) {
				wo.RequiredSkills = []string{"weld", "inspect"}
				op.Skills = map[string]int{"weld": 4, "inspect": 2}
			},
			expect: Breakdown{Skill: 0.6, Proximity: 1, Efficiency: 1, Cost: 0.15, CombinedCost: 85, Total: 0.4*0.6 + 0.3 + 0.2 + 0.1*0.15},
		},
		{
			name:    "cost clamped",
			machine: "M1",
			mutate:  func(wo *model.WorkOrder, op *model.Operator) { op.HourlyCost = 500 },
			expect:  Breakdown{Skill: 0.8, Proximity: 1, Efficiency: 1, Cost: 0, CombinedCost: 560, Total: 0.4*0.8 + 0.3 + 0.2},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			wo, op := wo.Clone(), op.Clone()
			if tc.mutate != nil {
				tc.mutate(wo, op)
			}
			actual := scorer.Breakdown(wo, op, snap.Machine(tc.machine), snap)
			assert.InDelta(t, tc.expect.Skill, actual.Skill, 1e-9)
			assert.InDelta(t, tc.expect.Proximity, actual.Proximity, 1e-9)
			assert.InDelta(t, tc.expect.Efficiency, actual.Efficiency, 1e-9)
			assert.InDelta(t, tc.expect.Cost, actual.Cost, 1e-9)
			assert.InDelta(t, tc.expect.CombinedCost, actual.CombinedCost, 1e-9)
			assert.InDelta(t, tc.expect.Total, actual.Total, 1e-9)
			assert.GreaterOrEqual(t, actual.Total, 0.0)
			assert.LessOrEqual(t, actual.Total, 1.0)
		})
	}
}

func TestScorer_Deterministic(t *testing.T) {
	wo, op, snap := fixture()
	scorer := New(WithMaxCost(200), WithMaxDistance(80), WithWeights(Weights{Skill: 1}))
	first := scorer.Score(wo, op, snap.Machine("M2"), snap)
	assert.InDelta(t, 0.8, first, 1e-9)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scorer.Score(wo, op, snap.Machine("M2"), snap))
	}
}
