package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/larkin1301/hvcm/internal/store"
	"github.com/larkin1301/hvcm/pkg/metrics"
)

// Writer persists validated reports. One report becomes exactly one
// Device upsert plus one row in each telemetry table, all inside a
// single transaction.
type Writer struct {
	logger  *slog.Logger
	pool    *store.Pool
	metrics *metrics.IngestMetrics // Optional metrics
}

// WriterConfig holds the configuration for the Writer.
type WriterConfig struct {
	Logger  *slog.Logger
	Pool    *store.Pool
	Metrics *metrics.IngestMetrics
}

// NewWriter creates a new Writer instance.
func NewWriter(cfg *WriterConfig) (*Writer, error) {
	if cfg == nil {
		return nil, errors.New("writer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Pool == nil {
		return nil, errors.New("pool cannot be nil")
	}

	return &Writer{
		logger:  cfg.Logger,
		pool:    cfg.Pool,
		metrics: cfg.Metrics,
	}, nil
}

// Ingest runs the full write path for one validated report: acquire a
// connection, open a transaction, write all sub-records, commit. Any
// failure rolls back every write and surfaces as a StorageError.
func (w *Writer) Ingest(ctx context.Context, report *Report) error {
	if report == nil {
		return errors.New("report cannot be nil")
	}

	err := w.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return w.Write(tx, report)
	})
	if err != nil {
		if w.metrics != nil {
			w.metrics.Rollbacks.Inc()
		}
		return err
	}

	w.logger.Debug("telemetry report committed",
		"device_id", report.DeviceID,
		"recorded_at", report.RecordedAt,
	)
	return nil
}

// Write performs the five dependent writes inside an already-open
// transaction. The Device upsert runs first so sub-records never exist
// without their device row.
func (w *Writer) Write(tx *gorm.DB, report *Report) error {
	device := &store.Device{
		DeviceID:     report.DeviceID,
		CPUTemp:      report.CPUTemp,
		UptimeSec:    report.UptimeSec,
		DeviceStatus: store.DeviceStatusActive,
		AlarmState:   report.AlarmState,
	}

	// Insert-or-update keyed by device_id: first report creates the row
	// with status active, later reports overwrite only the health scalars.
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cpu_temp", "uptime_sec", "alarm_state", "updated_at",
		}),
	}).Create(device).Error
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}

	modem := &store.ModemReport{
		DeviceID:       report.DeviceID,
		IMEI:           report.Modem.IMEI,
		ICCID:          report.Modem.ICCID,
		Operator:       report.Modem.Operator,
		SignalStrength: report.Modem.SignalStrength,
		Registration:   report.Modem.Registration,
		CellInfo:       report.Modem.CellInfo,
	}
	if err := tx.Create(modem).Error; err != nil {
		return fmt.Errorf("failed to create modem report: %w", err)
	}

	imu := &store.ImuReport{
		DeviceID:    report.DeviceID,
		AccelX:      report.IMU.Accel[0],
		AccelY:      report.IMU.Accel[1],
		AccelZ:      report.IMU.Accel[2],
		GyroX:       report.IMU.Gyro[0],
		GyroY:       report.IMU.Gyro[1],
		GyroZ:       report.IMU.Gyro[2],
		MagX:        report.IMU.Mag[0],
		MagY:        report.IMU.Mag[1],
		MagZ:        report.IMU.Mag[2],
		Temperature: report.IMU.Temperature,
	}
	if err := tx.Create(imu).Error; err != nil {
		return fmt.Errorf("failed to create imu report: %w", err)
	}

	gps := &store.GpsReport{
		DeviceID:      report.DeviceID,
		Latitude:      report.GPS.Lat,
		Longitude:     report.GPS.Lon,
		Altitude:      report.GPS.Altitude,
		Speed:         report.GPS.Speed,
		Course:        report.GPS.Course,
		NumSatellites: report.GPS.NumSatellites,
		FixType:       report.GPS.FixType,
		RecordedAt:    report.RecordedAt,
	}
	if err := tx.Create(gps).Error; err != nil {
		return fmt.Errorf("failed to create gps report: %w", err)
	}

	battery := &store.BatteryReport{
		DeviceID: report.DeviceID,
		Voltage:  report.Battery.Voltage,
		Status:   report.Battery.Status,
	}
	if err := tx.Create(battery).Error; err != nil {
		return fmt.Errorf("failed to create battery report: %w", err)
	}

	return nil
}
