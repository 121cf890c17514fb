package mapclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	resty "gopkg.in/resty.v1"
)

var ErrEmptyResults = errors.New("empty results")

// Client talks to the transit-web /api endpoints.
type Client struct {
	rest *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	rest := resty.New().
		SetHostURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		rest.SetTimeout(timeout)
	}
	return &Client{rest: rest}
}

func getResults[T any](ctx context.Context, client *Client, path string) ([]T, error) {
	resp, err := client.rest.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: HTTP %d", path, resp.StatusCode())
	}

	var envelope Results[T]
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return envelope.Results, nil
}

func (client *Client) Config(ctx context.Context) (MapConfig, error) {
	results, err := getResults[MapConfig](ctx, client, "/api/config")
	if err != nil {
		return MapConfig{}, err
	}
	if len(results) == 0 {
		return MapConfig{}, fmt.Errorf("config: %w", ErrEmptyResults)
	}
	return results[0], nil
}

func (client *Client) RouteInfo(ctx context.Context) ([]RouteInfo, error) {
	return getResults[RouteInfo](ctx, client, "/api/routeinfo")
}

func (client *Client) NetworkMap(ctx context.Context) (FeatureCollection, error) {
	results, err := getResults[FeatureCollection](ctx, client, "/api/networkmap")
	if err != nil {
		return FeatureCollection{}, err
	}
	if len(results) == 0 {
		return FeatureCollection{}, fmt.Errorf("network map: %w", ErrEmptyResults)
	}
	return results[0], nil
}

func (client *Client) VehiclePositions(ctx context.Context) ([]VehiclePosition, error) {
	return getResults[VehiclePosition](ctx, client, "/api/vehiclepositions")
}

func (client *Client) UpcomingStops(ctx context.Context, tripID string, currentStopSequence, count int) ([]UpcomingStop, error) {
	path := "/api/upcomingstops/" + url.PathEscape(tripID) + "/" +
		strconv.Itoa(currentStopSequence) + "/" + strconv.Itoa(count)
	return getResults[UpcomingStop](ctx, client, path)
}

func (client *Client) Health(ctx context.Context) (Health, error) {
	resp, err := client.rest.R().SetContext(ctx).Get("/api/health")
	if err != nil {
		return Health{}, fmt.Errorf("GET /api/health: %w", err)
	}

	var health Health
	if err := json.Unmarshal(resp.Body(), &health); err != nil {
		return Health{}, fmt.Errorf("GET /api/health: decode: %w", err)
	}
	if resp.IsError() {
		return health, fmt.Errorf("GET /api/health: HTTP %d", resp.StatusCode())
	}
	return health, nil
}
