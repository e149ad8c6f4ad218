package processor

import (
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/messaging/priority"
)

// ClassOf maps an event to its priority class. Critical and Safety are both
// immediate classes; breakdowns drain first.
func ClassOf(event *model.Event) priority.Class {
	switch event.Kind() {
	case model.EventBreakdown:
		return priority.Critical
	case model.EventSafety:
		return priority.Safety
	case model.EventMaterialShortage, model.EventMaterialDelivered:
		return priority.Shortage
	case model.EventAvailability, model.EventMaintenance, model.EventMachineRestored, model.EventCompletion:
		return priority.Availability
	}
	return priority.Routine
}
