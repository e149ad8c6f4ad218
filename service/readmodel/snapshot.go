package readmodel

import (
	"time"

	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/progress"
	"github.com/viant/shopfloor/service/messaging/priority"
	"github.com/viant/shopfloor/service/processor"
)

// Counts tallies entities by status
type Counts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}

func (c *Counts) add(status string) {
	if c.ByStatus == nil {
		c.ByStatus = map[string]int{}
	}
	c.Total++
	c.ByStatus[status]++
}

// Summary is the resource state overview
type Summary struct {
	Operators  Counts `json:"operators"`
	Machines   Counts `json:"machines"`
	WorkOrders Counts `json:"workOrders"`
	// BelowReorder lists materials whose free stock is under the reorder point
	BelowReorder []string `json:"belowReorder,omitempty"`
}

// AllocationSnapshot is the exported state of the engine
type AllocationSnapshot struct {
	TakenAt    time.Time             `json:"takenAt"`
	Revision   int64                 `json:"revision"`
	Operators  []*model.Operator     `json:"operators"`
	Machines   []*model.Machine      `json:"machines"`
	Materials  []*model.Material     `json:"materials"`
	WorkOrders []*model.WorkOrder    `json:"workOrders"`
	Decisions  []*model.Decision     `json:"decisions"`
	Queue      []priority.ClassStats `json:"queue,omitempty"`
	Events     []processor.KindStats `json:"events,omitempty"`
	Progress   *progress.Progress    `json:"progress,omitempty"`
	Summary    Summary               `json:"summary"`
}
