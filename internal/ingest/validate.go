package ingest

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/larkin1301/hvcm/internal/store"
)

// clockSkewGrace is how far ahead of server time a resolved fix
// timestamp may land before it is treated as yesterday's time of day.
const clockSkewGrace = time.Hour

// Validate normalizes and sanity-checks a raw payload. It rejects the
// whole payload on the first invalid field; the only silent coercion is
// alarm_state defaulting to normal for out-of-range values.
func Validate(payload *TelemetryPayload) (*Report, error) {
	return validateAt(payload, time.Now().UTC())
}

// validateAt is Validate with an injectable notion of "now" so the
// midnight-rollover handling is testable.
func validateAt(payload *TelemetryPayload, now time.Time) (*Report, error) {
	if payload == nil {
		return nil, missingSection("payload")
	}

	if strings.TrimSpace(payload.DeviceID) == "" {
		return nil, missingField("device_id")
	}

	switch {
	case payload.Modem == nil:
		return nil, missingSection("modem")
	case payload.IMU == nil:
		return nil, missingSection("imu")
	case payload.GPS == nil:
		return nil, missingSection("gps")
	case payload.Battery == nil:
		return nil, missingSection("battery")
	}

	for _, axis := range []struct {
		name   string
		values []float64
	}{
		{"imu.accel", payload.IMU.Accel},
		{"imu.gyro", payload.IMU.Gyro},
		{"imu.mag", payload.IMU.Mag},
	} {
		if len(axis.values) != 3 {
			return nil, malformedArray(axis.name)
		}
	}

	recordedAt, err := resolveFixTime(payload.GPS.UTC, now)
	if err != nil {
		return nil, err
	}

	return &Report{
		DeviceID:   payload.DeviceID,
		CPUTemp:    payload.CPUTemp,
		UptimeSec:  payload.UptimeSec,
		AlarmState: coerceAlarmState(payload.AlarmState),
		Modem:      *payload.Modem,
		IMU:        *payload.IMU,
		GPS:        *payload.GPS,
		Battery:    *payload.Battery,
		RecordedAt: recordedAt,
	}, nil
}

// coerceAlarmState accepts a JSON number or numeric string and defaults
// anything else, or any value outside {0,1,2}, to normal. Devices with
// corrupt alarm registers still get their telemetry stored.
func coerceAlarmState(raw json.RawMessage) int16 {
	if len(raw) == 0 {
		return store.AlarmNormal
	}

	text := strings.TrimSpace(string(raw))
	text = strings.Trim(text, `"`)

	value, err := strconv.Atoi(text)
	if err != nil {
		return store.AlarmNormal
	}

	switch value {
	case store.AlarmNormal, store.AlarmWarning, store.AlarmCritical:
		return int16(value)
	default:
		return store.AlarmNormal
	}
}

// resolveFixTime validates the [h, m, s] time-of-day array and attaches
// the current UTC date. Devices report only a time of day, so around
// midnight the server's date can be off by one in either direction: a
// fix landing more than clockSkewGrace ahead of now belongs to the
// previous UTC day (the server crossed midnight, the device has not),
// and a fix landing nearly a full day behind now belongs to the next
// one (the device crossed midnight first).
func resolveFixTime(utc []float64, now time.Time) (time.Time, error) {
	if len(utc) != 3 {
		return time.Time{}, malformedArray("gps.utc")
	}

	parts := make([]int, 3)
	for i, v := range utc {
		if v != math.Trunc(v) {
			return time.Time{}, malformedArray("gps.utc")
		}
		parts[i] = int(v)
	}

	hour, minute, second := parts[0], parts[1], parts[2]
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return time.Time{}, malformedArray("gps.utc")
	}

	resolved := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, second, 0, time.UTC)
	switch {
	case resolved.Sub(now) > clockSkewGrace:
		resolved = resolved.AddDate(0, 0, -1)
	case now.Sub(resolved) > 24*time.Hour-clockSkewGrace:
		resolved = resolved.AddDate(0, 0, 1)
	}

	return resolved, nil
}
