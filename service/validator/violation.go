package validator

import (
	"errors"
	"fmt"

	"github.com/viant/shopfloor/model"
)

// Hard constraint numbers, in evaluation order
const (
	ConstraintSkill      = 1
	ConstraintCapability = 2
	ConstraintMaterial   = 3
	ConstraintWindow     = 4
	ConstraintLocation   = 5
)

// Violation is a failed hard constraint
type Violation struct {
	Constraint int
	Reason     model.Reason
	Entity     string
	Detail     string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("hard constraint %d (%s) violated by %s: %s", v.Constraint, v.Reason, v.Entity, v.Detail)
}

// AsViolation unwraps err into a Violation
func AsViolation(err error) (*Violation, bool) {
	var ret *Violation
	if errors.As(err, &ret) {
		return ret, true
	}
	return nil, false
}

func violation(constraint int, reason model.Reason, entity, format string, args ...any) *Violation {
	return &Violation{Constraint: constraint, Reason: reason, Entity: entity, Detail: fmt.Sprintf(format, args...)}
}
