package events

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/travigo/railcontrol/pkg/consumer"
	"github.com/travigo/railcontrol/pkg/database"
	"github.com/travigo/railcontrol/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Provides the events runner",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run events consumer",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "consumers",
						Value: 5,
						Usage: "number of batch consumers",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Value: 20,
						Usage: "events handled per batch",
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}
					if err := redis_client.Connect(); err != nil {
						return err
					}

					ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
					defer cancel()

					redisConsumer := consumer.RedisConsumer{
						QueueName:       QueueName,
						NumberConsumers: c.Int("consumers"),
						BatchSize:       c.Int("batch-size"),
						Timeout:         2 * time.Second,
						Consumer:        NewEventsBatchConsumer(),
					}

					return redisConsumer.Run(ctx)
				},
			},
		},
	}
}
