package etl

import (
	"fmt"
	"time"

	"github.com/jwoo-kim/weather-etl/internal/weather"
)

// measuredAtZone is the fixed +9h offset applied to every measurement time.
// This matches the upstream loader's convention exactly; it is a hardcoded
// offset, not a timezone-database lookup.
var measuredAtZone = time.FixedZone("UTC+9", 9*60*60)

const (
	dateKeyLayout = "20060102"
	timeKeyLayout = "150405"
)

// TransformError reports a required field missing from an upstream payload.
// It propagates; malformed input is never coerced to null.
type TransformError struct {
	City  string
	Field string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform: observation for %q is missing required field %q", e.City, e.Field)
}

// Transform converts raw observations into canonical rows, deriving the
// partition keys and the UTC+9-adjusted measurement time. It is pure: no
// I/O, no side effects, input order preserved.
func Transform(observations []weather.Observation) ([]weather.Row, error) {
	rows := make([]weather.Row, 0, len(observations))
	for _, obs := range observations {
		if obs.Timestamp == 0 {
			return nil, &TransformError{City: obs.City, Field: "dt"}
		}
		if obs.StationID == 0 {
			return nil, &TransformError{City: obs.City, Field: "id"}
		}
		if obs.City == "" {
			return nil, &TransformError{City: obs.City, Field: "name"}
		}

		measuredAt := time.Unix(obs.Timestamp, 0).In(measuredAtZone)
		rows = append(rows, weather.Row{
			DateKey:     measuredAt.Format(dateKeyLayout),
			TimeKey:     measuredAt.Format(timeKeyLayout),
			MeasuredAt:  measuredAt,
			StationID:   obs.StationID,
			City:        obs.City,
			Temperature: obs.Temperature,
			Humidity:    obs.Humidity,
			WindSpeed:   obs.WindSpeed,
		})
	}
	return rows, nil
}
