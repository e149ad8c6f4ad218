package criteria

import (
	"github.com/viant/shopfloor/service/dao"
)

// Fields resolves a named attribute of a listed record
type Fields func(name string) (string, bool)

// Match returns true when every parameter matches the record. A parameter
// naming an unknown field is ignored.
func Match(fields Fields, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		actual, ok := fields(parameter.Name)
		if !ok {
			continue
		}
		if !matchValue(actual, parameter.Value) {
			return false
		}
	}
	return true
}

func matchValue(actual string, expected interface{}) bool {
	switch v := expected.(type) {
	case string:
		return actual == v
	case []string:
		for _, s := range v {
			if actual == s {
				return true
			}
		}
		return false
	}
	return true
}
