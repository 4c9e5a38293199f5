// Package query builds and executes role-scoped telemetry read queries.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/larkin1301/hvcm/internal/auth"
	"github.com/larkin1301/hvcm/internal/store"
)

// DeviceSnapshot is a device's most recent GPS fix joined with its
// latest known health fields. Absent health fields default to zero.
type DeviceSnapshot struct {
	RecordedAt time.Time `json:"timestamp"`
	DeviceID   string    `json:"device_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Altitude   float64   `json:"altitude"`
	CPUTemp    float64   `json:"cpu_temp"`
	AlarmState int16     `json:"alarm_state"`
}

// GpsPoint is one historical position fix.
type GpsPoint struct {
	RecordedAt time.Time `json:"timestamp"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Altitude   float64   `json:"altitude"`
}

// Service executes telemetry read queries constrained by a resolved
// device scope. Reads are single statements and run outside any
// transaction.
type Service struct {
	logger *slog.Logger
	pool   *store.Pool
}

// ServiceConfig holds the configuration for the Service.
type ServiceConfig struct {
	Logger *slog.Logger
	Pool   *store.Pool
}

// NewService creates a new Service instance.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("query service config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Pool == nil {
		return nil, errors.New("pool cannot be nil")
	}

	return &Service{
		logger: cfg.Logger,
		pool:   cfg.Pool,
	}, nil
}

// LatestPositions returns, for every device in scope, its single most
// recent GPS fix joined with the device's health fields. "Most recent"
// is max recorded_at per device; ties break on the larger insertion id
// so the result is deterministic.
func (s *Service) LatestPositions(ctx context.Context, scope auth.DeviceScope) ([]DeviceSnapshot, error) {
	// Inner join picks one row id per device: the newest recorded_at,
	// then the largest id among rows tied at that instant.
	latestFix := s.pool.DB().
		Table("gps_reports").
		Select("device_id, MAX(recorded_at) AS max_recorded_at").
		Group("device_id")

	pick := s.pool.DB().
		Table("gps_reports AS g2").
		Select("g2.device_id, MAX(g2.id) AS pick_id").
		Joins("JOIN (?) latest ON g2.device_id = latest.device_id AND g2.recorded_at = latest.max_recorded_at", latestFix).
		Group("g2.device_id")

	query := s.pool.DB().WithContext(ctx).
		Table("gps_reports AS g").
		Select(`g.device_id, g.latitude, g.longitude, g.altitude,
			g.recorded_at,
			COALESCE(d.cpu_temp, 0) AS cpu_temp,
			COALESCE(d.alarm_state, 0) AS alarm_state`).
		Joins("JOIN (?) pick ON g.id = pick.pick_id", pick).
		Joins("LEFT JOIN devices d ON d.device_id = g.device_id").
		Order("g.device_id")

	query = scope.Apply(query, "g.device_id")

	snapshots := make([]DeviceSnapshot, 0)
	if err := query.Scan(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch latest positions: %w", store.ClassifyError(err))
	}

	s.logger.Debug("fetched latest positions", "count", len(snapshots))
	return snapshots, nil
}

// History returns all GPS fixes for one device, ordered ascending by
// recorded_at (insertion id as tiebreaker). The scope predicate is a
// filter, not a separate authorization check: a device outside the
// scope yields an empty slice, indistinguishable from a device that
// does not exist.
func (s *Service) History(ctx context.Context, deviceID string, scope auth.DeviceScope) ([]GpsPoint, error) {
	if deviceID == "" {
		return nil, errors.New("device id cannot be empty")
	}

	query := s.pool.DB().WithContext(ctx).
		Table("gps_reports").
		Select("latitude, longitude, altitude, recorded_at").
		Where("device_id = ?", deviceID).
		Order("recorded_at, id")

	query = scope.Apply(query, "gps_reports.device_id")

	points := make([]GpsPoint, 0)
	if err := query.Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", store.ClassifyError(err))
	}

	s.logger.Debug("fetched device history", "device_id", deviceID, "count", len(points))
	return points, nil
}
