package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/api"
	"github.com/travigo/railcontrol/pkg/dispatcher"
	"github.com/travigo/railcontrol/pkg/events"
	"github.com/travigo/railcontrol/pkg/realtime"
	"github.com/travigo/railcontrol/pkg/track"
	"github.com/travigo/railcontrol/pkg/util"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

func main() {
	if err := util.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load .env")
	}

	env := util.GetEnvironmentVariables()

	if env["RAILCONTROL_LOG_FORMAT"] != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if env["RAILCONTROL_DEBUG"] == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "railcontrol",
		Description: "Train section scheduling and conflict resolution engine",

		Commands: []*cli.Command{
			api.RegisterCLI(),
			events.RegisterCLI(),
			realtime.RegisterCLI(),
			track.RegisterCLI(),
			dispatcher.RegisterCLI(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}
