package ctdf

import "slices"

type Station struct {
	PrimaryIdentifier string `json:"id" groups:"basic"`
	PrimaryName       string `json:"name" groups:"basic"`

	Location *Location `json:"location,omitempty" groups:"detailed"`

	Platforms []string `json:"platforms,omitempty" groups:"detailed"`
}

func (s *Station) HasPlatform(platform string) bool {
	return slices.Contains(s.Platforms, platform)
}
