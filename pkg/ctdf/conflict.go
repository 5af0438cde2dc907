package ctdf

import (
	"fmt"
	"strings"
	"time"
)

type ResourceType string

const (
	ResourceTypeSection  ResourceType = "SECTION"
	ResourceTypePlatform ResourceType = "PLATFORM"
)

// Conflict is one contiguous episode where more trains claim a resource than
// its effective capacity allows. It is derived from a timetable and never stored.
type Conflict struct {
	Resource  ResourceType `json:"resource" groups:"basic"`
	SectionID string       `json:"section_id,omitempty" groups:"basic"`
	StationID string       `json:"station_id,omitempty" groups:"basic"`
	Platform  string       `json:"platform,omitempty" groups:"basic"`

	TrainIDs []string `json:"train_ids" groups:"basic"`

	Start time.Time `json:"start" groups:"basic"`
	End   time.Time `json:"end" groups:"basic"`

	Capacity      int `json:"capacity" groups:"basic"`
	PeakOccupancy int `json:"peak_occupancy" groups:"basic"`
}

func (c *Conflict) ResourceID() string {
	if c.Resource == ResourceTypePlatform {
		return fmt.Sprintf("%s:%s", c.StationID, c.Platform)
	}
	return c.SectionID
}

// Key identifies the conflict across recomputations: the resource and the
// trains involved, independent of the exact times.
func (c *Conflict) Key() string {
	return fmt.Sprintf("%s/%s/%s", c.Resource, c.ResourceID(), strings.Join(c.TrainIDs, ","))
}

// Involves reports whether the conflict touches sectionID, either directly or
// through a platform at one of its stations.
func (c *Conflict) Involves(section *Section) bool {
	if c.Resource == ResourceTypeSection {
		return c.SectionID == section.PrimaryIdentifier
	}
	return section.Joins(c.StationID)
}
