// Package gtfsrt publishes the optimised timetable as a GTFS-realtime
// TripUpdates feed, one trip per train with a stop time update for every
// station on its route.
package gtfsrt

import (
	"strings"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"google.golang.org/protobuf/proto"
)

func TripUpdates(timetable *ctdf.Timetable, trains []*ctdf.Train) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(timetable.GeneratedAt.Unix())),
		},
		Entity: []*gtfs.FeedEntity{},
	}

	for _, train := range trains {
		entries := timetable.ForTrain(train.PrimaryIdentifier)
		if len(entries) == 0 {
			continue
		}
		feed.Entity = append(feed.Entity, tripUpdate(timetable, train, entries))
	}

	return feed
}

func tripUpdate(timetable *ctdf.Timetable, train *ctdf.Train, entries []ctdf.ScheduleEntry) *gtfs.FeedEntity {
	first := entries[0]

	update := &gtfs.TripUpdate{
		Trip: &gtfs.TripDescriptor{
			TripId:               proto.String(train.PrimaryIdentifier),
			StartDate:            proto.String(strings.ReplaceAll(train.ServiceDate, "-", "")),
			StartTime:            proto.String(first.PlannedEntry.Format("15:04:05")),
			ScheduleRelationship: gtfs.TripDescriptor_SCHEDULED.Enum(),
		},
		Timestamp: proto.Uint64(uint64(timetable.GeneratedAt.Unix())),
		Delay:     proto.Int32(int32(timetable.TrainDelays()[train.PrimaryIdentifier] * 60)),
		StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{
			{
				StopSequence: proto.Uint32(0),
				StopId:       proto.String(train.Origin),
				Departure:    stopTimeEvent(first.PlannedEntry, first.OptimizedEntry),
			},
		},
	}

	for i, entry := range entries {
		stopTime := &gtfs.TripUpdate_StopTimeUpdate{
			StopSequence: proto.Uint32(uint32(i + 1)),
			StopId:       proto.String(entry.ArrivalStation),
			Arrival:      stopTimeEvent(entry.PlannedExit, entry.OptimizedExit),
		}
		if i+1 < len(entries) {
			next := entries[i+1]
			stopTime.Departure = stopTimeEvent(next.PlannedEntry, next.OptimizedEntry)
		}
		if entry.Unresolved {
			stopTime.ScheduleRelationship = gtfs.TripUpdate_StopTimeUpdate_NO_DATA.Enum()
			stopTime.Arrival = nil
			stopTime.Departure = nil
		}
		update.StopTimeUpdate = append(update.StopTimeUpdate, stopTime)
	}

	return &gtfs.FeedEntity{
		Id:         proto.String(train.PrimaryIdentifier),
		TripUpdate: update,
	}
}

func stopTimeEvent(planned time.Time, optimized time.Time) *gtfs.TripUpdate_StopTimeEvent {
	return &gtfs.TripUpdate_StopTimeEvent{
		Time:  proto.Int64(optimized.Unix()),
		Delay: proto.Int32(int32(optimized.Sub(planned).Seconds())),
	}
}
