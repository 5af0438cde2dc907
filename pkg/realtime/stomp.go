package realtime

import (
	"context"
	"fmt"

	"github.com/go-stomp/stomp/v3"
	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/util"
)

const defaultStompDestination = "/topic/railcontrol.delays"

type StompClient struct {
	Address     string
	Username    string
	Password    string
	Destination string

	Ingest *DelayIngest
}

// StompConfigured reports whether a STOMP broker is set in the environment.
func StompConfigured() bool {
	return util.GetEnvironmentVariables()["RAILCONTROL_STOMP_ADDRESS"] != ""
}

func NewStompClientFromEnv(ingest *DelayIngest) *StompClient {
	env := util.GetEnvironmentVariables()

	destination := defaultStompDestination
	if env["RAILCONTROL_STOMP_DESTINATION"] != "" {
		destination = env["RAILCONTROL_STOMP_DESTINATION"]
	}

	return &StompClient{
		Address:     env["RAILCONTROL_STOMP_ADDRESS"],
		Username:    env["RAILCONTROL_STOMP_USERNAME"],
		Password:    env["RAILCONTROL_STOMP_PASSWORD"],
		Destination: destination,
		Ingest:      ingest,
	}
}

// Run consumes delay reports until ctx is cancelled or the connection drops.
func (s *StompClient) Run(ctx context.Context) error {
	var stompOptions []func(*stomp.Conn) error = []func(*stomp.Conn) error{
		stomp.ConnOpt.Login(s.Username, s.Password),
	}
	conn, err := stomp.Dial("tcp", s.Address, stompOptions...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", s.Address, err)
	}
	defer conn.Disconnect()

	sub, err := conn.Subscribe(s.Destination, stomp.AckAuto)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.Destination, err)
	}
	defer sub.Unsubscribe()

	log.Info().Str("address", s.Address).Str("destination", s.Destination).Msg("Consuming delay reports")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				return fmt.Errorf("subscription to %s closed", s.Destination)
			}
			if msg.Err != nil {
				return msg.Err
			}

			s.Ingest.ParseMessage(msg.Body)
		}
	}
}
