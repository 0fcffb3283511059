package weather

import (
	"time"
)

// Observation is one raw current-weather reading for a single city, reduced
// to the fields the pipeline consumes. Optional measurements stay nil when
// the upstream payload omits them.
type Observation struct {
	StationID int64
	City      string
	Timestamp int64 // unix seconds, as reported by the API

	Temperature *float64 // celsius
	Humidity    *int64   // percent
	WindSpeed   *float64 // m/s
}

// Row is the canonical, table-ready shape of one measurement.
// (DateKey, TimeKey, StationID) forms the primary key of the sink table.
type Row struct {
	DateKey    string    `json:"dateKey"` // YYYYMMDD in UTC+9
	TimeKey    string    `json:"timeKey"` // HHMMSS in UTC+9
	MeasuredAt time.Time `json:"measuredAt"`
	StationID  int64     `json:"stationId"`
	City       string    `json:"city"`

	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *int64   `json:"humidity,omitempty"`
	WindSpeed   *float64 `json:"windSpeed,omitempty"`
}
