package gtfs_rt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	"google.golang.org/protobuf/proto"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/store"
)

// Sink is where decoded feed rows go.
type Sink interface {
	LatestFeedTimestamp(ctx context.Context, agencyID string, kind store.FeedKind) (int64, error)
	InsertVehiclePositions(ctx context.Context, agencyID string, positions []store.VehiclePosition) (int64, error)
	InsertTripUpdates(ctx context.Context, agencyID string, updates []store.TripUpdate, stopTimes []store.StopTimeUpdate) (int64, error)
	PruneBefore(ctx context.Context, agencyID string, kind store.FeedKind, cutoff int64) (int64, error)
}

// IngestResult summarizes one feed message.
type IngestResult struct {
	FeedTimestamp int64
	Entities      int
	Stored        int64
	Skipped       bool
}

type GtfsRtWatcher struct {
	Feeds     []FeedConfig
	AgencyID  string
	Client    *http.Client
	Sink      Sink
	Metrics   *common.Metrics
	Interval  time.Duration
	Retention time.Duration

	// NewBackOff builds the retry policy for one fetch.
	NewBackOff func() backoff.BackOff
	now        func() time.Time

	mu     sync.Mutex
	latest map[string]int64
}

func NewGtfsRtWatcher(cfg Config, sink Sink, metrics *common.Metrics) *GtfsRtWatcher {
	return &GtfsRtWatcher{
		Feeds:     cfg.Feeds,
		AgencyID:  cfg.AgencyID,
		Client:    &http.Client{Timeout: 30 * time.Second},
		Sink:      sink,
		Metrics:   metrics,
		Interval:  cfg.Interval,
		Retention: cfg.Retention,
		NewBackOff: func() backoff.BackOff {
			policy := backoff.NewExponentialBackOff()
			policy.InitialInterval = 500 * time.Millisecond
			policy.MaxElapsedTime = cfg.Interval
			return policy
		},
		now:    time.Now,
		latest: map[string]int64{},
	}
}

type httpStatusError struct {
	status int
}

func (err httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", err.status)
}

// fetchOnce performs a single GET. Client errors are permanent; transport
// errors and 5xx responses are retried by SampleEndpoint.
func (watcher *GtfsRtWatcher) fetchOnce(ctx context.Context, feed FeedConfig) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.Url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if feed.HeaderName != "" {
		req.Header.Set(feed.HeaderName, feed.HeaderValue)
	}

	label := feed.Label()
	start := time.Now()
	resp, err := watcher.Client.Do(req)
	if err != nil {
		watcher.countError(label)
		return nil, err
	}
	defer resp.Body.Close()
	if watcher.Metrics != nil {
		watcher.Metrics.HttpTTFBSeconds.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}

	if resp.StatusCode != http.StatusOK {
		watcher.countError(label)
		err := httpStatusError{status: resp.StatusCode}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	readStart := time.Now()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		watcher.countError(label)
		return nil, err
	}
	if watcher.Metrics != nil {
		watcher.Metrics.HttpReadBodySeconds.WithLabelValues(label).Observe(time.Since(readStart).Seconds())
		watcher.Metrics.HttpBytesTotal.WithLabelValues(label).Add(float64(len(body)))
	}
	return body, nil
}

func (watcher *GtfsRtWatcher) countError(label string) {
	if watcher.Metrics != nil {
		watcher.Metrics.HttpErrorsTotal.WithLabelValues(label).Inc()
	}
}

// SampleEndpoint fetches and decodes one feed, retrying transient failures.
func (watcher *GtfsRtWatcher) SampleEndpoint(ctx context.Context, feed FeedConfig) (*gtfs.FeedMessage, error) {
	body, err := backoff.RetryNotifyWithData(
		func() ([]byte, error) { return watcher.fetchOnce(ctx, feed) },
		backoff.WithContext(watcher.NewBackOff(), ctx),
		func(err error, wait time.Duration) {
			glog.Warningf("feed %s: %v; retrying in %s", feed.Label(), err, wait)
		},
	)
	if err != nil {
		return nil, err
	}

	feedMessage := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feedMessage); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	return feedMessage, nil
}

// latestFor returns the newest header timestamp seen for a feed. A feed
// that is the only one of its kind starts from what the store holds.
func (watcher *GtfsRtWatcher) latestFor(ctx context.Context, feed FeedConfig) (int64, error) {
	watcher.mu.Lock()
	latest, ok := watcher.latest[feed.Url]
	watcher.mu.Unlock()
	if ok {
		return latest, nil
	}

	sameKind := 0
	for _, other := range watcher.Feeds {
		if other.Kind == feed.Kind {
			sameKind++
		}
	}
	if sameKind > 1 {
		return 0, nil
	}
	return watcher.Sink.LatestFeedTimestamp(ctx, watcher.AgencyID, feed.Kind)
}

func (watcher *GtfsRtWatcher) setLatest(feed FeedConfig, timestamp int64) {
	watcher.mu.Lock()
	defer watcher.mu.Unlock()
	watcher.latest[feed.Url] = timestamp
}

// IngestFeedMessage stores a message unless its header timestamp is not
// newer than the last one stored for the feed. A message without a header
// timestamp is stamped with the current time.
func (watcher *GtfsRtWatcher) IngestFeedMessage(ctx context.Context, feed FeedConfig, feedMessage *gtfs.FeedMessage) (IngestResult, error) {
	feedTimestamp := int64(feedMessage.GetHeader().GetTimestamp())
	if feedTimestamp == 0 {
		feedTimestamp = watcher.now().Unix()
	}
	result := IngestResult{FeedTimestamp: feedTimestamp, Entities: len(feedMessage.GetEntity())}

	latest, err := watcher.latestFor(ctx, feed)
	if err != nil {
		return result, err
	}
	if feedTimestamp <= latest {
		result.Skipped = true
		if watcher.Metrics != nil {
			watcher.Metrics.FeedsSkippedTotal.WithLabelValues(feed.Label()).Inc()
		}
		return result, nil
	}

	switch feed.Kind {
	case store.FeedVehiclePositions:
		positions := VehiclePositionsFromFeed(feedMessage, feedTimestamp)
		for i := range positions {
			positions[i].Feed = feed.Label()
		}
		result.Stored, err = watcher.Sink.InsertVehiclePositions(ctx, watcher.AgencyID, positions)
	case store.FeedTripUpdates:
		updates, stopTimes := TripUpdatesFromFeed(feedMessage, feedTimestamp)
		result.Stored, err = watcher.Sink.InsertTripUpdates(ctx, watcher.AgencyID, updates, stopTimes)
	default:
		err = fmt.Errorf("unknown feed kind %q", feed.Kind)
	}
	if err != nil {
		return result, err
	}

	watcher.setLatest(feed, feedTimestamp)
	if watcher.Metrics != nil {
		watcher.Metrics.EntitiesStoredTotal.WithLabelValues(feed.Label()).Add(float64(result.Stored))
	}
	return result, nil
}

// VehiclePositionsFromFeed converts vehicle entities, skipping deleted
// ones. Row ids are "<entity id>-<vehicle timestamp>".
func VehiclePositionsFromFeed(feedMessage *gtfs.FeedMessage, feedTimestamp int64) []store.VehiclePosition {
	positions := make([]store.VehiclePosition, 0, len(feedMessage.GetEntity()))
	for _, entity := range feedMessage.GetEntity() {
		vehicle := entity.GetVehicle()
		if vehicle == nil || entity.GetIsDeleted() {
			continue
		}

		trip := vehicle.GetTrip()
		descriptor := vehicle.GetVehicle()
		position := vehicle.GetPosition()
		positions = append(positions, store.VehiclePosition{
			ID:                  fmt.Sprintf("%s-%d", entity.GetId(), vehicle.GetTimestamp()),
			FeedTimestamp:       feedTimestamp,
			VehicleTimestamp:    int64(vehicle.GetTimestamp()),
			TripID:              trip.GetTripId(),
			RouteID:             trip.GetRouteId(),
			VehicleID:           descriptor.GetId(),
			VehicleLabel:        descriptor.GetLabel(),
			LicensePlate:        descriptor.GetLicensePlate(),
			Latitude:            float64(position.GetLatitude()),
			Longitude:           float64(position.GetLongitude()),
			CurrentStopSequence: int(vehicle.GetCurrentStopSequence()),
			StopID:              vehicle.GetStopId(),
		})
	}
	return positions
}

// TripUpdatesFromFeed converts trip update entities, skipping deleted ones.
func TripUpdatesFromFeed(feedMessage *gtfs.FeedMessage, feedTimestamp int64) ([]store.TripUpdate, []store.StopTimeUpdate) {
	updates := make([]store.TripUpdate, 0, len(feedMessage.GetEntity()))
	stopTimes := make([]store.StopTimeUpdate, 0, 2048)

	for _, entity := range feedMessage.GetEntity() {
		tripUpdate := entity.GetTripUpdate()
		if tripUpdate == nil || entity.GetIsDeleted() {
			continue
		}

		trip := tripUpdate.GetTrip()
		id := fmt.Sprintf("%s-%d", entity.GetId(), feedTimestamp)
		updates = append(updates, store.TripUpdate{
			ID:            id,
			FeedTimestamp: feedTimestamp,
			TripID:        trip.GetTripId(),
			RouteID:       trip.GetRouteId(),
			StartDate:     trip.GetStartDate(),
			StartTime:     trip.GetStartTime(),
			DirectionID:   int(trip.GetDirectionId()),
			VehicleID:     tripUpdate.GetVehicle().GetId(),
		})

		for _, stopTimeUpdate := range tripUpdate.GetStopTimeUpdate() {
			stopTimes = append(stopTimes, store.StopTimeUpdate{
				TripUpdateID:  id,
				FeedTimestamp: feedTimestamp,
				StopSequence:  int(stopTimeUpdate.GetStopSequence()),
				StopID:        stopTimeUpdate.GetStopId(),
				ArrivalTime:   stopTimeUpdate.GetArrival().GetTime(),
				DepartureTime: stopTimeUpdate.GetDeparture().GetTime(),
			})
		}
	}
	return updates, stopTimes
}

// SampleEndpoints polls every feed once. A failing feed is logged and
// does not stop the others.
func (watcher *GtfsRtWatcher) SampleEndpoints(ctx context.Context) error {
	benchmarker := common.NewBenchmarker("sample-endpoints")
	defer benchmarker.Close()

	var errs []error
	for _, feed := range watcher.Feeds {
		feedMessage, err := watcher.SampleEndpoint(ctx, feed)
		if err != nil {
			glog.Errorf("failed to sample feed %s (%s): %v", feed.Label(), feed.Url, err)
			errs = append(errs, fmt.Errorf("%s: %w", feed.Label(), err))
			continue
		}

		result, err := watcher.IngestFeedMessage(ctx, feed, feedMessage)
		switch {
		case err != nil:
			glog.Errorf("failed to ingest feed %s: %v", feed.Label(), err)
			errs = append(errs, fmt.Errorf("%s: %w", feed.Label(), err))
		case result.Skipped:
			glog.V(1).Infof("feed %s: timestamp %d not newer, skipped", feed.Label(), result.FeedTimestamp)
		default:
			glog.V(1).Infof("feed %s: stored %d of %d entities", feed.Label(), result.Stored, result.Entities)
		}
	}

	watcher.prune(ctx)
	return errors.Join(errs...)
}

func (watcher *GtfsRtWatcher) prune(ctx context.Context) {
	if watcher.Retention <= 0 {
		return
	}

	cutoff := watcher.now().Add(-watcher.Retention).Unix()
	for _, kind := range []store.FeedKind{store.FeedVehiclePositions, store.FeedTripUpdates} {
		deleted, err := watcher.Sink.PruneBefore(ctx, watcher.AgencyID, kind, cutoff)
		if err != nil {
			glog.Warningf("prune %s: %v", kind, err)
			continue
		}
		if deleted > 0 {
			glog.V(1).Infof("pruned %d %s rows", deleted, kind)
		}
	}
}

// Watch samples immediately and then on every tick until ctx ends.
func (watcher *GtfsRtWatcher) Watch(ctx context.Context) error {
	ticker := time.NewTicker(watcher.Interval)
	defer ticker.Stop()

	for {
		_ = watcher.SampleEndpoints(ctx)

		select {
		case <-ctx.Done():
			glog.Infof("watch stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
