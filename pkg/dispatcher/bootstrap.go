package dispatcher

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/config"
	"github.com/travigo/railcontrol/pkg/database"
	"github.com/travigo/railcontrol/pkg/disruptions"
	"github.com/travigo/railcontrol/pkg/overrides"
	"github.com/travigo/railcontrol/pkg/track"
	"github.com/urfave/cli/v2"
)

// Paths locates the files a dispatcher is built from.
type Paths struct {
	Config   string
	Topology string
	// Trains is an optional service plan CSV loaded for Date, today when empty.
	Trains string
	Date   string
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Value:   config.DefaultPath,
			EnvVars: []string{"RAILCONTROL_CONFIG"},
			Usage:   "scheduling rules YAML",
		},
		&cli.StringFlag{
			Name:    "topology",
			Value:   "data/topology.yaml",
			EnvVars: []string{"RAILCONTROL_TOPOLOGY"},
			Usage:   "track topology YAML",
		},
		&cli.StringFlag{
			Name:    "trains",
			EnvVars: []string{"RAILCONTROL_TRAINS"},
			Usage:   "service plan CSV to load on startup",
		},
		&cli.StringFlag{
			Name:  "date",
			Usage: "service date (YYYY-MM-DD) the service plan is loaded for",
		},
	}
}

func PathsFromCLI(c *cli.Context) Paths {
	return Paths{
		Config:   c.String("config"),
		Topology: c.String("topology"),
		Trains:   c.String("trains"),
		Date:     c.String("date"),
	}
}

// Bootstrap builds a dispatcher from files, persisting disruptions,
// overrides and published timetables to MongoDB when it is connected.
func Bootstrap(ctx context.Context, paths Paths) (*Dispatcher, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}

	model, err := track.LoadFile(paths.Topology)
	if err != nil {
		return nil, err
	}

	var repository disruptions.Repository
	options := Options{}
	if database.Connected() {
		repository = &disruptions.MongoRepository{Collection: database.GetCollection(database.DisruptionsCollection)}
		options.Archive = &MongoArchive{Collection: database.GetCollection(database.TimetablesCollection)}
		options.History = &overrides.MongoHistory{Collection: database.GetCollection(database.OverridesCollection)}
	}

	store, err := disruptions.NewStore(model, cfg, repository)
	if err != nil {
		return nil, err
	}
	if err := store.Load(ctx); err != nil {
		return nil, err
	}

	dispatcher := New(cfg, model, store, options)

	if paths.Trains == "" {
		return dispatcher, nil
	}

	file, err := os.Open(paths.Trains)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", paths.Trains).Msg("No service plan found, starting without trains")
		return dispatcher, nil
	} else if err != nil {
		return nil, err
	}
	defer file.Close()

	date := paths.Date
	if date == "" {
		date = dispatcher.Today()
	}

	registered, err := dispatcher.LoadPlan(date, file)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", paths.Trains).
		Str("date", date).
		Int("trains", registered).
		Msg("Loaded service plan")

	return dispatcher, nil
}
