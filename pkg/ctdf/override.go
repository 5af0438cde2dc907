package ctdf

import "time"

// Override is a controller's pinned train order on a section, kept as an
// audit trail.
type Override struct {
	PrimaryIdentifier string `json:"id" bson:"primaryidentifier"`

	ServiceDate string   `json:"service_date" bson:"servicedate"`
	SectionID   string   `json:"section_id" bson:"sectionid"`
	Order       []string `json:"order" bson:"order"`

	SubmittedBy string    `json:"submitted_by,omitempty" bson:"submittedby"`
	SubmittedAt time.Time `json:"submitted_at" bson:"submittedat"`

	// Version of the timetable the override was first applied in, 0 if the
	// recomputation failed.
	AppliedVersion uint64 `json:"applied_version" bson:"appliedversion"`
	Feasible       bool   `json:"feasible" bson:"feasible"`

	ClearedAt time.Time `json:"cleared_at,omitzero" bson:"clearedat"`
}

func (o *Override) Active() bool {
	return o.ClearedAt.IsZero()
}
