package models

import (
	"fmt"
	"strings"
)

// InjuryClass names one of the per-class injury counters of a record.
type InjuryClass string

const (
	Pedestrians InjuryClass = "pedestrians"
	Cyclists    InjuryClass = "cyclists"
	Motorists   InjuryClass = "motorists"
)

// InjuryClasses lists the classes in dropdown order.
var InjuryClasses = []InjuryClass{Pedestrians, Cyclists, Motorists}

// ParseInjuryClass accepts the class names in any case, e.g. "Cyclists".
func ParseInjuryClass(s string) (InjuryClass, error) {
	c := InjuryClass(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown injury class %q (want pedestrians, cyclists or motorists)", s)
	}
	return c, nil
}

// Valid reports whether c is a known class.
func (c InjuryClass) Valid() bool {
	switch c {
	case Pedestrians, Cyclists, Motorists:
		return true
	}
	return false
}

// Count returns the record's counter for this class, or 0 for an unknown class.
func (c InjuryClass) Count(r *CollisionRecord) int {
	switch c {
	case Pedestrians:
		return r.InjuredPedestrians
	case Cyclists:
		return r.InjuredCyclists
	case Motorists:
		return r.InjuredMotorists
	}
	return 0
}

// Label is the capitalised display name.
func (c InjuryClass) Label() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}
