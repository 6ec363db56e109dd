package model

import "strings"

// ProfessionalSelector is either a specific professional or "any qualified
// professional". The zero value selects Any.
type ProfessionalSelector struct {
	id string
}

func AnyProfessional() ProfessionalSelector { return ProfessionalSelector{} }

func SpecificProfessional(id string) ProfessionalSelector {
	return ProfessionalSelector{id: strings.TrimSpace(id)}
}

// ParseProfessionalSelector treats "", "any" and "null" as Any.
func ParseProfessionalSelector(raw string) ProfessionalSelector {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "", "any", "null":
		return AnyProfessional()
	}
	return SpecificProfessional(v)
}

func (s ProfessionalSelector) IsAny() bool { return s.id == "" }

func (s ProfessionalSelector) ID() string { return s.id }

func (s ProfessionalSelector) String() string {
	if s.IsAny() {
		return "any"
	}
	return s.id
}
