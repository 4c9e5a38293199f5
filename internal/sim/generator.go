// Package sim generates synthetic device telemetry and publishes it to
// the AMQP intake queue, standing in for a fleet of field devices.
package sim

import (
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/larkin1301/hvcm/internal/ingest"
)

// Device is one simulated tracker with a stable identity and a slowly
// drifting position.
type Device struct {
	startedAt time.Time
	DeviceID  string `fake:"{macaddress}"`
	IMEI      string `fake:"{regex:[0-9]{15}}"`
	ICCID     string `fake:"{regex:89[0-9]{17}}"`
	Operator  string `fake:"{company}"`
	baseTemp  float64
	lat       float64
	lon       float64
	heading   float64
	voltage   float64
}

// NewDevice creates a simulated device with randomized identity and a
// starting position.
// Note: math/rand is acceptable for simulation data.
func NewDevice() (*Device, error) {
	var device Device
	if err := gofakeit.Struct(&device); err != nil {
		return nil, err
	}

	device.startedAt = time.Now()
	device.baseTemp = 35 + rand.Float64()*15           // #nosec G404
	device.lat = gofakeit.Latitude()
	device.lon = gofakeit.Longitude()
	device.heading = rand.Float64() * 360              // #nosec G404
	device.voltage = 3.7 + rand.Float64()*0.5          // #nosec G404
	return &device, nil
}

// NextPayload advances the simulated device and renders its current
// state as a telemetry payload.
func (d *Device) NextPayload(now time.Time) *ingest.TelemetryPayload {
	// Random walk: small heading changes, ~30 m steps.
	d.heading += (rand.Float64() - 0.5) * 30 // #nosec G404
	step := 0.0003 * rand.Float64()          // #nosec G404
	d.lat += step * math.Cos(d.heading*math.Pi/180)
	d.lon += step * math.Sin(d.heading*math.Pi/180)
	d.voltage = math.Max(3.2, d.voltage-0.0001)

	utc := now.UTC()
	alarm := 0
	if rand.Float64() < 0.02 { // #nosec G404
		alarm = 1 + rand.Intn(2) // #nosec G404
	}

	return &ingest.TelemetryPayload{
		DeviceID:   d.DeviceID,
		CPUTemp:    d.baseTemp + (rand.Float64()-0.5)*4, // #nosec G404
		UptimeSec:  int64(now.Sub(d.startedAt).Seconds()),
		AlarmState: []byte(strconv.Itoa(alarm)),
		Modem: &ingest.ModemSection{
			IMEI:           d.IMEI,
			ICCID:          d.ICCID,
			Operator:       d.Operator,
			SignalStrength: gofakeit.RandomString([]string{"-67dBm", "-75dBm", "-82dBm", "-90dBm"}),
			Registration:   "registered,home",
			CellInfo:       gofakeit.RandomString([]string{"LTE B3", "LTE B20", "NB-IoT B8"}),
		},
		IMU: &ingest.IMUSection{
			Accel:       jitter3(0, 0.2),
			Gyro:        jitter3(0, 1.5),
			Mag:         jitter3(25, 5),
			Temperature: d.baseTemp - 10 + rand.Float64()*2, // #nosec G404
		},
		GPS: &ingest.GPSSection{
			Lat:           d.lat,
			Lon:           d.lon,
			Altitude:      40 + rand.Float64()*20, // #nosec G404
			Speed:         rand.Float64() * 60,    // #nosec G404
			Course:        math.Mod(d.heading+360, 360),
			NumSatellites: 4 + rand.Intn(9), // #nosec G404
			FixType:       1,
			UTC:           []float64{float64(utc.Hour()), float64(utc.Minute()), float64(utc.Second())},
		},
		Battery: &ingest.BatterySection{
			Voltage: d.voltage,
			Status:  batteryStatus(d.voltage),
		},
	}
}

func jitter3(center, spread float64) []float64 {
	return []float64{
		center + (rand.Float64()-0.5)*spread, // #nosec G404
		center + (rand.Float64()-0.5)*spread, // #nosec G404
		center + (rand.Float64()-0.5)*spread, // #nosec G404
	}
}

func batteryStatus(voltage float64) string {
	switch {
	case voltage > 3.9:
		return "charging"
	case voltage > 3.5:
		return "good"
	default:
		return "low"
	}
}
