package gtfs_static

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/store"
)

type FileTableEntry struct {
	FileName  string
	TableName string
	Required  bool
	Loader    func(*store.StaticFeed, []map[string]string) error
}

var FileTableMapping = []FileTableEntry{
	{FileName: "agency.txt", TableName: "agency", Required: true, Loader: loadAgency},
	{FileName: "routes.txt", TableName: "routes", Required: true, Loader: loadRoutes},
	{FileName: "trips.txt", TableName: "trips", Required: true, Loader: loadTrips},
	{FileName: "stops.txt", TableName: "stops", Required: true, Loader: loadStops},
	{FileName: "stop_times.txt", TableName: "stop_times", Required: true, Loader: loadStopTimes},
}

// ReadCSVAsMapSlice reads a GTFS table as header-keyed records.
func ReadCSVAsMapSlice(filePath string) ([]map[string]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readCSV(file)
}

func readCSV(input io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(input)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i, header := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}

	var records []map[string]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		record := make(map[string]string, len(headers))
		for i, header := range headers {
			record[header] = row[i]
		}
		records = append(records, record)
	}
	return records, nil
}

func parseInt(record map[string]string, column string) (int, error) {
	value := strings.TrimSpace(record[column])
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", column, err)
	}
	return n, nil
}

func parseFloat(record map[string]string, column string) (float64, error) {
	value := strings.TrimSpace(record[column])
	if value == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", column, err)
	}
	return f, nil
}

func loadAgency(feed *store.StaticFeed, records []map[string]string) error {
	for _, r := range records {
		feed.Agencies = append(feed.Agencies, store.Agency{
			AgencyID: r["agency_id"],
			Name:     r["agency_name"],
			Url:      r["agency_url"],
			Timezone: r["agency_timezone"],
			Lang:     r["agency_lang"],
			Phone:    r["agency_phone"],
		})
	}
	return nil
}

func loadRoutes(feed *store.StaticFeed, records []map[string]string) error {
	for _, r := range records {
		feed.Routes = append(feed.Routes, store.Route{
			RouteID:   r["route_id"],
			ShortName: r["route_short_name"],
			LongName:  r["route_long_name"],
			RouteType: r["route_type"],
			Color:     r["route_color"],
			TextColor: r["route_text_color"],
		})
	}
	return nil
}

func loadTrips(feed *store.StaticFeed, records []map[string]string) error {
	for i, r := range records {
		direction, err := parseInt(r, "direction_id")
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		feed.Trips = append(feed.Trips, store.Trip{
			TripID:      r["trip_id"],
			RouteID:     r["route_id"],
			ServiceID:   r["service_id"],
			Headsign:    r["trip_headsign"],
			DirectionID: direction,
			ShapeID:     r["shape_id"],
		})
	}
	return nil
}

func loadStops(feed *store.StaticFeed, records []map[string]string) error {
	for i, r := range records {
		lat, err := parseFloat(r, "stop_lat")
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		lon, err := parseFloat(r, "stop_lon")
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		feed.Stops = append(feed.Stops, store.Stop{
			StopID:    r["stop_id"],
			Name:      r["stop_name"],
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return nil
}

func loadStopTimes(feed *store.StaticFeed, records []map[string]string) error {
	feed.StopTimes = make([]store.StopTime, 0, len(records))
	for i, r := range records {
		sequence, err := parseInt(r, "stop_sequence")
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		feed.StopTimes = append(feed.StopTimes, store.StopTime{
			TripID:        r["trip_id"],
			StopSequence:  sequence,
			StopID:        r["stop_id"],
			ArrivalTime:   r["arrival_time"],
			DepartureTime: r["departure_time"],
		})
	}
	return nil
}

func ValidateGtfsDirectory(dirPath string) error {
	for _, entry := range FileTableMapping {
		if entry.Required {
			filePath := filepath.Join(dirPath, entry.FileName)
			if _, err := os.Stat(filePath); os.IsNotExist(err) {
				return fmt.Errorf("required file %s is missing", entry.FileName)
			}
		}
	}

	return nil
}

// LoadGtfsFromDirectory parses an extracted feed.
func LoadGtfsFromDirectory(dirPath string) (store.StaticFeed, error) {
	var feed store.StaticFeed
	if err := ValidateGtfsDirectory(dirPath); err != nil {
		return feed, err
	}

	for _, entry := range FileTableMapping {
		filePath := filepath.Join(dirPath, entry.FileName)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			continue
		}

		records, err := common.RuntimeBenchmark("read "+entry.FileName, func() ([]map[string]string, error) {
			return ReadCSVAsMapSlice(filePath)
		})
		if err != nil {
			return feed, fmt.Errorf("read %s: %w", entry.FileName, err)
		}

		if err := entry.Loader(&feed, records); err != nil {
			return feed, fmt.Errorf("parse %s: %w", entry.FileName, err)
		}
	}

	return feed, nil
}
