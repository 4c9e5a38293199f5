// Package ingest turns raw device telemetry payloads into consistent
// rows across the telemetry tables: strict boundary validation, then a
// transactional multi-entity write.
package ingest

import (
	"encoding/json"
	"time"
)

// TelemetryPayload is the wire format devices report, over HTTP POST or
// the AMQP intake queue. Nested sections are pointers so a missing
// object is distinguishable from an empty one.
type TelemetryPayload struct {
	DeviceID   string          `json:"device_id"`
	CPUTemp    float64         `json:"cpu_temp"`
	UptimeSec  int64           `json:"uptime_sec"`
	AlarmState json.RawMessage `json:"alarm_state"`
	Modem      *ModemSection   `json:"modem"`
	IMU        *IMUSection     `json:"imu"`
	GPS        *GPSSection     `json:"gps"`
	Battery    *BatterySection `json:"battery"`
}

// ModemSection carries the cellular modem state.
type ModemSection struct {
	IMEI           string `json:"imei"`
	ICCID          string `json:"iccid"`
	Operator       string `json:"operator"`
	SignalStrength string `json:"signal_strength"`
	Registration   string `json:"registration"`
	CellInfo       string `json:"cell_info"`
}

// IMUSection carries one 9-axis inertial sample. Each axis array must
// hold exactly three values.
type IMUSection struct {
	Accel       []float64 `json:"accel"`
	Gyro        []float64 `json:"gyro"`
	Mag         []float64 `json:"mag"`
	Temperature float64   `json:"temperature"`
}

// GPSSection carries one position fix. UTC is the device-reported time
// of day as [hour, minute, second].
type GPSSection struct {
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	Altitude      float64   `json:"altitude"`
	Speed         float64   `json:"speed"`
	Course        float64   `json:"course"`
	NumSatellites int       `json:"num_satellites"`
	FixType       int       `json:"fix_type"`
	UTC           []float64 `json:"utc"`
}

// BatterySection carries one battery sample.
type BatterySection struct {
	Voltage float64 `json:"voltage"`
	Status  string  `json:"status"`
}

// Report is a validated payload ready for the writer. RecordedAt is the
// GPS fix time resolved to a full UTC timestamp.
type Report struct {
	RecordedAt time.Time
	DeviceID   string
	CPUTemp    float64
	UptimeSec  int64
	AlarmState int16
	Modem      ModemSection
	IMU        IMUSection
	GPS        GPSSection
	Battery    BatterySection
}
