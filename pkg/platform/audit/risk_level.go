package audit

import (
	"encoding/json"

	dErrors "audittrail/pkg/domain-errors"
)

// RiskLevel classifies how sensitive an event is. Levels are totally ordered by rank.
type RiskLevel int

const (
	RiskLow      RiskLevel = 1
	RiskMedium   RiskLevel = 2
	RiskHigh     RiskLevel = 3
	RiskCritical RiskLevel = 4
)

var riskLevelNames = map[RiskLevel]string{
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

// ParseRiskLevel converts a lowercase level name into a RiskLevel.
func ParseRiskLevel(value string) (RiskLevel, error) {
	for level, name := range riskLevelNames {
		if name == value {
			return level, nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeValidation, "invalid risk level: %q", value)
}

// RiskLevelFromEventType derives the default risk of an event type.
// Critical is never derived; it is only reachable through an explicit override.
func RiskLevelFromEventType(t EventType) RiskLevel {
	switch {
	case t.IsHighRisk():
		return RiskHigh
	case t.IsCreationEvent():
		return RiskMedium
	default:
		return RiskLow
	}
}

// IsValid reports whether the level is one of the four known ranks.
func (l RiskLevel) IsValid() bool {
	_, ok := riskLevelNames[l]
	return ok
}

// Rank returns the numeric ordering value.
func (l RiskLevel) Rank() int {
	return int(l)
}

func (l RiskLevel) IsHigherThan(other RiskLevel) bool {
	return l > other
}

func (l RiskLevel) IsLowerThan(other RiskLevel) bool {
	return l < other
}

// IsHighRisk is true for high and critical.
func (l RiskLevel) IsHighRisk() bool {
	return l >= RiskHigh
}

func (l RiskLevel) String() string {
	if name, ok := riskLevelNames[l]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON encodes the level as its name.
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	if !l.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid risk level: %d", int(l))
	}
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name.
func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseRiskLevel(name)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// HighRiskLevels returns the levels matched by "only high risk" filters.
func HighRiskLevels() []RiskLevel {
	return []RiskLevel{RiskHigh, RiskCritical}
}
