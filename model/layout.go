package model

import "math"

// DefaultZoneDistance is used between distinct zones without coordinates
const DefaultZoneDistance = 10.0

// Point is a zone position on the floor plan
type Point struct {
	X float64 `json:"x" yaml:"x" mapstructure:"x"`
	Y float64 `json:"y" yaml:"y" mapstructure:"y"`
}

// Layout resolves distances between location zones
type Layout struct {
	Zones           map[string]Point `json:"zones,omitempty" yaml:"zones" mapstructure:"zones"`
	DefaultDistance float64          `json:"defaultDistance,omitempty" yaml:"defaultDistance" mapstructure:"default_distance"`
}

// Distance returns the distance between zones a and b
func (l *Layout) Distance(a, b string) float64 {
	if a == b {
		return 0
	}
	if l != nil {
		pa, okA := l.Zones[a]
		pb, okB := l.Zones[b]
		if okA && okB {
			return math.Hypot(pa.X-pb.X, pa.Y-pb.Y)
		}
		if l.DefaultDistance > 0 {
			return l.DefaultDistance
		}
	}
	return DefaultZoneDistance
}

// MaxPairwise returns the largest distance between any two locations
func (l *Layout) MaxPairwise(locations ...string) float64 {
	var ret float64
	for i := 0; i < len(locations); i++ {
		for j := i + 1; j < len(locations); j++ {
			if d := l.Distance(locations[i], locations[j]); d > ret {
				ret = d
			}
		}
	}
	return ret
}
