package dispatcher

import (
	"context"
	"fmt"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/stats"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run the scheduler offline",
		Subcommands: []*cli.Command{
			{
				Name:  "optimise",
				Usage: "optimise a service plan once and print the timetable",
				Flags: append(Flags(), &cli.BoolFlag{
					Name:  "metrics",
					Usage: "print per section metrics after the timetable",
				}),
				Action: func(c *cli.Context) error {
					ctx, cancel := context.WithCancel(c.Context)
					defer cancel()

					dispatcher, err := Bootstrap(ctx, PathsFromCLI(c))
					if err != nil {
						return err
					}
					dispatcher.Start(ctx)

					date := c.String("date")
					if date == "" {
						date = dispatcher.Today()
					}

					coordinator, err := dispatcher.Coordinator(date)
					if err != nil {
						return err
					}
					timetable, err := coordinator.Recompute(ctx, "offline run")
					if err != nil {
						return err
					}

					log.Info().
						Str("date", date).
						Int("entries", len(timetable.Entries)).
						Int("baseline_conflicts", len(timetable.BaselineConflicts)).
						Int("conflicts", len(timetable.Conflicts)).
						Strs("unresolved", timetable.Unresolved).
						Float64("objective", timetable.Objective).
						Msg("Timetable optimised")

					pretty.Println(timetable)

					if !c.Bool("metrics") {
						return nil
					}

					for _, section := range dispatcher.Track().Sections() {
						sectionStats := stats.Calculate(timetable, section, dispatcher.Disruptions().ListActive(section.PrimaryIdentifier))
						fmt.Printf("%# v\n", pretty.Formatter(sectionStats))
					}

					return nil
				},
			},
		},
	}
}
