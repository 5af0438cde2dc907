package track

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/util"
	"github.com/urfave/cli/v2"
)

const defaultNeo4jURI = "neo4j://localhost"
const defaultNeo4jDatabase = "neo4j"

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "track",
		Usage: "Inspect and export the track topology",
		Subcommands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "load and validate a topology file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "topology",
						Value:   "data/topology.yaml",
						EnvVars: []string{"RAILCONTROL_TOPOLOGY"},
					},
				},
				Action: func(c *cli.Context) error {
					model, err := LoadFile(c.String("topology"))
					if err != nil {
						return err
					}

					for _, section := range model.Sections() {
						log.Info().
							Str("section", section.PrimaryIdentifier).
							Str("from", section.FromStation).
							Str("to", section.ToStation).
							Int("capacity", section.Capacity).
							Str("traversal", section.NominalTraversal().String()).
							Msg("Section")
					}

					return nil
				},
			},
			{
				Name:  "export-graph",
				Usage: "write the topology into neo4j",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "topology",
						Value:   "data/topology.yaml",
						EnvVars: []string{"RAILCONTROL_TOPOLOGY"},
					},
				},
				Action: func(c *cli.Context) error {
					model, err := LoadFile(c.String("topology"))
					if err != nil {
						return err
					}

					env := util.GetEnvironmentVariables()

					uri := defaultNeo4jURI
					if env["RAILCONTROL_NEO4J_URI"] != "" {
						uri = env["RAILCONTROL_NEO4J_URI"]
					}
					databaseName := defaultNeo4jDatabase
					if env["RAILCONTROL_NEO4J_DATABASE"] != "" {
						databaseName = env["RAILCONTROL_NEO4J_DATABASE"]
					}

					ctx, cancel := context.WithTimeout(c.Context, 5*time.Minute)
					defer cancel()

					driver, err := neo4j.NewDriverWithContext(
						uri,
						neo4j.BasicAuth(env["RAILCONTROL_NEO4J_USERNAME"], env["RAILCONTROL_NEO4J_PASSWORD"], ""))
					if err != nil {
						return err
					}
					defer driver.Close(ctx)

					if err := driver.VerifyConnectivity(ctx); err != nil {
						return err
					}

					return model.ExportGraph(ctx, driver, databaseName)
				},
			},
		},
	}
}
