package ctdf

import (
	"slices"
	"time"
)

type Disruption struct {
	PrimaryIdentifier string `json:"id" groups:"basic" bson:"primaryidentifier"`

	Type        DisruptionType   `json:"type" groups:"basic" bson:"type"`
	Severity    Severity         `json:"severity" groups:"basic" bson:"severity"`
	Status      DisruptionStatus `json:"status" groups:"basic" bson:"status"`
	Sections    []string         `json:"sections" groups:"basic" bson:"sections"`
	Description string           `json:"description,omitempty" groups:"basic" bson:"description"`
	Impact      DisruptionImpact `json:"impact" groups:"detailed" bson:"impact"`
	Source      DisruptionSource `json:"source,omitempty" groups:"detailed" bson:"source"`

	StartTime           time.Time `json:"start_time" groups:"basic" bson:"starttime"`
	EstimatedResolution time.Time `json:"estimated_resolution,omitzero" groups:"basic" bson:"estimatedresolution"`
	ActualResolution    time.Time `json:"actual_resolution,omitzero" groups:"basic" bson:"actualresolution"`

	PriorityScore float64 `json:"priority_score" groups:"basic" bson:"priorityscore"`

	CreationDateTime     time.Time `json:"created_at" groups:"detailed" bson:"creationdatetime"`
	ModificationDateTime time.Time `json:"modified_at" groups:"detailed" bson:"modificationdatetime"`
}

type DisruptionImpact struct {
	DelayedTrains         int `json:"delayed_trains" groups:"detailed" bson:"delayedtrains"`
	CancelledTrains       int `json:"cancelled_trains" groups:"detailed" bson:"cancelledtrains"`
	EstimatedDelayMinutes int `json:"estimated_delay_minutes" groups:"detailed" bson:"estimateddelayminutes"`
	AffectedPassengers    int `json:"affected_passengers" groups:"detailed" bson:"affectedpassengers"`
}

type DisruptionType string

const (
	DisruptionTypeSignalFailure    DisruptionType = "SIGNAL_FAILURE"
	DisruptionTypeTrackMaintenance DisruptionType = "TRACK_MAINTENANCE"
	DisruptionTypeWeather          DisruptionType = "WEATHER"
	DisruptionTypeRollingStock     DisruptionType = "ROLLING_STOCK"
	DisruptionTypePowerOutage      DisruptionType = "POWER_OUTAGE"
	DisruptionTypeAccident         DisruptionType = "ACCIDENT"
	DisruptionTypeOther            DisruptionType = "OTHER"
)

func (t DisruptionType) IsValid() bool {
	switch t {
	case DisruptionTypeSignalFailure, DisruptionTypeTrackMaintenance, DisruptionTypeWeather,
		DisruptionTypeRollingStock, DisruptionTypePowerOutage, DisruptionTypeAccident, DisruptionTypeOther:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities from LOW (1) to CRITICAL (4).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

type DisruptionStatus string

const (
	DisruptionStatusActive        DisruptionStatus = "ACTIVE"
	DisruptionStatusInvestigating DisruptionStatus = "INVESTIGATING"
	DisruptionStatusResolved      DisruptionStatus = "RESOLVED"
	DisruptionStatusSimulated     DisruptionStatus = "SIMULATED"
)

type DisruptionSource string

const (
	DisruptionSourceController DisruptionSource = "CONTROLLER"
	DisruptionSourceSynthetic  DisruptionSource = "SYNTHETIC"
)

// SeverityEffect is what a disruption of a given severity does to a section:
// traversal speed is multiplied by SpeedMultiplier (0 closes the section) and
// capacity is capped at CapacityCap when it is positive.
type SeverityEffect struct {
	SpeedMultiplier float64 `yaml:"speed_multiplier" json:"speed_multiplier"`
	CapacityCap     int     `yaml:"capacity_cap" json:"capacity_cap,omitempty"`
}

func (e SeverityEffect) Closes() bool {
	return e.SpeedMultiplier <= 0
}

// End is the time the disruption stops applying, zero when open-ended.
func (d *Disruption) End() time.Time {
	if !d.ActualResolution.IsZero() {
		return d.ActualResolution
	}
	return d.EstimatedResolution
}

func (d *Disruption) ActiveAt(t time.Time) bool {
	if t.Before(d.StartTime) {
		return false
	}
	end := d.End()
	return end.IsZero() || t.Before(end)
}

// Overlaps reports whether the disruption window intersects [from, to).
func (d *Disruption) Overlaps(from time.Time, to time.Time) bool {
	if !to.After(d.StartTime) {
		return false
	}
	end := d.End()
	return end.IsZero() || from.Before(end)
}

func (d *Disruption) Affects(sectionID string) bool {
	return slices.Contains(d.Sections, sectionID)
}

// AppliesTo reports whether the disruption shapes a schedule. Simulated
// disruptions only apply to what-if runs.
func (d *Disruption) AppliesTo(simulation bool) bool {
	switch d.Status {
	case DisruptionStatusActive, DisruptionStatusInvestigating:
		return true
	case DisruptionStatusSimulated:
		return simulation
	}
	return false
}

func (d *Disruption) IsResolved() bool {
	return d.Status == DisruptionStatusResolved
}

func (d *Disruption) Clone() *Disruption {
	clone := *d
	clone.Sections = slices.Clone(d.Sections)
	return &clone
}
