package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/adjust/rmq/v5"
	"github.com/travigo/railcontrol/pkg/database"
	"github.com/travigo/railcontrol/pkg/redis_client"
)

// StatsServerHandler renders rmq's queue overview page.
type StatsServerHandler struct {
	redisConnection rmq.Connection
}

func NewStatsHandler(connection rmq.Connection) *StatsServerHandler {
	return &StatsServerHandler{redisConnection: connection}
}

func (handler *StatsServerHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	layout := request.FormValue("layout")
	refresh := request.FormValue("refresh")

	queues, err := handler.redisConnection.GetOpenQueues()
	if err != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(writer, err)
		return
	}

	stats, err := handler.redisConnection.CollectStats(queues)
	if err != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(writer, err)
		return
	}

	fmt.Fprint(writer, stats.GetHtml(layout, refresh))
}

type HealthCheck func(ctx context.Context) error

// HealthHandler runs every check and answers 503 if any of them fails.
type HealthHandler struct {
	Checks  map[string]HealthCheck
	Timeout time.Duration
}

func NewHealthHandler() *HealthHandler {
	checks := map[string]HealthCheck{}

	if redis_client.Client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redis_client.Client.Ping(ctx).Err()
		}
	}
	if database.Connected() {
		checks["mongodb"] = func(ctx context.Context) error {
			return database.MongoGlobalInstance.Client.Ping(ctx, nil)
		}
	}

	return &HealthHandler{Checks: checks, Timeout: 5 * time.Second}
}

func (handler *HealthHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	if handler.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, handler.Timeout)
		defer cancel()
	}

	status := http.StatusOK
	results := map[string]string{}

	names := slices.Sorted(maps.Keys(handler.Checks))
	for _, name := range names {
		if err := handler.Checks[name](ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			results[name] = "ok"
		}
	}

	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(map[string]any{
		"healthy": status == http.StatusOK,
		"checks":  results,
	})
}
