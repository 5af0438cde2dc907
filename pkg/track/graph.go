package track

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog/log"
)

// ExportGraph writes stations as nodes and sections as LINE relationships so
// the network can be inspected with graph tooling. Existing nodes are merged.
func (m *Model) ExportGraph(ctx context.Context, driver neo4j.DriverWithContext, databaseName string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: databaseName})
	defer session.Close(ctx)

	for _, station := range m.Stations() {
		_, err := session.ExecuteWrite(ctx,
			func(tx neo4j.ManagedTransaction) (any, error) {
				_, err := tx.Run(
					ctx,
					"MERGE (s:Station {id: $id}) SET s.name = $name, s.longitude = $longitude, s.latitude = $latitude, s.platforms = $platforms",
					map[string]any{
						"id":        station.PrimaryIdentifier,
						"name":      station.PrimaryName,
						"longitude": station.Location.Longitude(),
						"latitude":  station.Location.Latitude(),
						"platforms": station.Platforms,
					})
				return nil, err
			})
		if err != nil {
			return err
		}
	}

	for _, section := range m.Sections() {
		_, err := session.ExecuteWrite(ctx,
			func(tx neo4j.ManagedTransaction) (any, error) {
				_, err := tx.Run(
					ctx,
					`
					MATCH (a:Station {id: $from}), (b:Station {id: $to})
					MERGE (a)-[l:LINE {id: $id}]->(b)
					SET l.length_km = $length, l.max_speed_kmh = $speed, l.capacity = $capacity, l.traversal_minutes = $traversal
					`,
					map[string]any{
						"id":        section.PrimaryIdentifier,
						"from":      section.FromStation,
						"to":        section.ToStation,
						"length":    section.LengthKm,
						"speed":     section.MaxSpeedKmh,
						"capacity":  section.Capacity,
						"traversal": int(section.NominalTraversal().Minutes()),
					})
				return nil, err
			})
		if err != nil {
			return err
		}
	}

	log.Info().Int("stations", len(m.stations)).Int("sections", len(m.sections)).Msg("Exported track graph")

	return nil
}
