// Package wildfire downloads pre- and post-fire scenes for a list of
// wildfire events.
package wildfire

import (
	"io"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// DateLayout is the date format of the events file.
const DateLayout = "2006-01-02"

// Columns of the events file.
var Columns = []string{"latitude", "longitude", "pre_fire_date", "post_fire_date", "event_name", "location"}

// Event is one wildfire with the dates to image before and after it.
type Event struct {
	Latitude     float64
	Longitude    float64
	PreFireDate  time.Time
	PostFireDate time.Time
	Name         string
	Location     string
}

// ReadEvents parses a CSV with a header holding Columns.
func ReadEvents(r io.Reader) ([]Event, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "read events csv")
	}

	names := make(map[string]bool)
	for _, n := range df.Names() {
		names[n] = true
	}
	for _, c := range Columns {
		if !names[c] {
			return nil, errors.Errorf("events csv is missing column %q", c)
		}
	}

	df = df.Select(Columns)
	var events []Event
	for i, rec := range df.Records()[1:] {
		ev, err := parseEvent(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "event %d", i+1)
		}
		events = append(events, ev)
	}

	return events, nil
}

func parseEvent(rec []string) (Event, error) {
	lat, err := strconv.ParseFloat(rec[0], 64)
	if err != nil {
		return Event{}, errors.Wrap(err, "latitude")
	}
	lng, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return Event{}, errors.Wrap(err, "longitude")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Event{}, errors.Errorf("coordinates (%v, %v) out of range", lat, lng)
	}
	pre, err := time.Parse(DateLayout, rec[2])
	if err != nil {
		return Event{}, errors.Wrap(err, "pre_fire_date")
	}
	post, err := time.Parse(DateLayout, rec[3])
	if err != nil {
		return Event{}, errors.Wrap(err, "post_fire_date")
	}

	return Event{
		Latitude:     lat,
		Longitude:    lng,
		PreFireDate:  pre,
		PostFireDate: post,
		Name:         rec[4],
		Location:     rec[5],
	}, nil
}
