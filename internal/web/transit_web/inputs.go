package transit_web

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	minUpcomingStops = 1
	maxUpcomingStops = 50
)

type UpcomingStopsQuery struct {
	TripID              string
	CurrentStopSequence int
	Count               int
}

// ParseUpcomingStopsQuery validates the path parameters of
// /api/upcomingstops. Count is clamped to [1, 50].
func ParseUpcomingStopsQuery(tripID, sequence, count string) (UpcomingStopsQuery, error) {
	// chi matches on the raw path when the trip id carries escaped slashes.
	if unescaped, err := url.PathUnescape(tripID); err == nil {
		tripID = unescaped
	}
	tripID = strings.TrimSpace(tripID)
	if tripID == "" {
		return UpcomingStopsQuery{}, fmt.Errorf("trip id may not be empty")
	}

	seq, err := strconv.Atoi(sequence)
	if err != nil {
		return UpcomingStopsQuery{}, fmt.Errorf("currentStopSequence must be an integer: %q", sequence)
	}

	n, err := strconv.Atoi(count)
	if err != nil {
		return UpcomingStopsQuery{}, fmt.Errorf("count must be an integer: %q", count)
	}
	n = max(minUpcomingStops, min(n, maxUpcomingStops))

	return UpcomingStopsQuery{TripID: tripID, CurrentStopSequence: seq, Count: n}, nil
}
