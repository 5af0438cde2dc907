package api

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/api/routes"
	"github.com/travigo/railcontrol/pkg/database"
	"github.com/travigo/railcontrol/pkg/dispatcher"
	"github.com/travigo/railcontrol/pkg/elastic_client"
	"github.com/travigo/railcontrol/pkg/events"
	"github.com/travigo/railcontrol/pkg/realtime"
	"github.com/travigo/railcontrol/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "web-api",
		Usage: "Provides the core web API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run web api server",
				Flags: append(dispatcher.Flags(),
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
						Usage: "listen target for the web server",
					},
				),
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}
					if err := elastic_client.Connect(false); err != nil {
						return err
					}

					ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
					defer cancel()

					d, err := dispatcher.Bootstrap(ctx, dispatcher.PathsFromCLI(c))
					if err != nil {
						return err
					}

					options := Options{}

					if redis_client.Configured() {
						if err := redis_client.Connect(); err != nil {
							return err
						}

						publisher, err := events.NewQueuePublisher(redis_client.QueueConnection)
						if err != nil {
							return err
						}
						d.Bus().Subscribe("events-queue", nil, publisher.Handle)

						options.Cache = routes.NewResponseCache(redis_client.Client, 6*time.Hour)
					} else {
						log.Info().Msg("Skipping redis setup, events are not queued and responses are not cached")
					}

					if elastic_client.Connected() {
						d.Bus().Subscribe("elasticsearch", nil, events.NewElasticSink().Handle)
					}

					if AuthConfigured() {
						options.Auth, err = EnsureValidToken()
						if err != nil {
							return err
						}
					} else {
						log.Warn().Msg("AUTH0_DOMAIN not set, API is unauthenticated")
					}

					d.Start(ctx)

					if realtime.StompConfigured() {
						stompClient := realtime.NewStompClientFromEnv(&realtime.DelayIngest{Reporter: d})
						go func() {
							if err := stompClient.Run(ctx); err != nil {
								log.Error().Err(err).Msg("Delay report consumer stopped")
							}
						}()
					}

					webApp := NewApp(d, options)

					go func() {
						<-ctx.Done()

						shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
						defer shutdownCancel()

						if err := webApp.ShutdownWithContext(shutdownCtx); err != nil {
							log.Error().Err(err).Msg("Failed to shut down web server")
						}
						if err := elastic_client.Close(shutdownCtx); err != nil {
							log.Error().Err(err).Msg("Failed to flush queued events to Elasticsearch")
						}
					}()

					log.Info().Str("listen", c.String("listen")).Msg("Starting web API")

					return webApp.Listen(c.String("listen"))
				},
			},
		},
	}
}
