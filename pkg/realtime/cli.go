package realtime

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/travigo/railcontrol/pkg/database"
	"github.com/travigo/railcontrol/pkg/dispatcher"
	"github.com/travigo/railcontrol/pkg/events"
	"github.com/travigo/railcontrol/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "realtime",
		Usage: "Realtime sources",
		Subcommands: []*cli.Command{
			{
				Name:  "delays",
				Usage: "Apply live delay reports from a STOMP broker",
				Subcommands: []*cli.Command{
					{
						Name:  "run",
						Usage: "run the delay report consumer",
						Flags: dispatcher.Flags(),
						Action: func(c *cli.Context) error {
							if !StompConfigured() {
								return errors.New("RAILCONTROL_STOMP_ADDRESS must be set")
							}
							if err := database.Connect(); err != nil {
								return err
							}

							ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
							defer cancel()

							d, err := dispatcher.Bootstrap(ctx, dispatcher.PathsFromCLI(c))
							if err != nil {
								return err
							}

							if redis_client.Configured() {
								if err := redis_client.Connect(); err != nil {
									return err
								}
								publisher, err := events.NewQueuePublisher(redis_client.QueueConnection)
								if err != nil {
									return err
								}
								d.Bus().Subscribe("events-queue", nil, publisher.Handle)
							}

							d.Start(ctx)

							return NewStompClientFromEnv(&DelayIngest{Reporter: d}).Run(ctx)
						},
					},
				},
			},
		},
	}
}
