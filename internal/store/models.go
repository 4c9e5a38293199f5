// Package store provides the PostgreSQL persistence layer: GORM models,
// database bootstrap with a bounded connection pool, and scoped
// transactional execution.
package store

import (
	"time"
)

// Device status values. Devices are created active; no code path
// currently transitions a device to inactive.
const (
	DeviceStatusActive   = "active"
	DeviceStatusInactive = "inactive"
)

// Alarm states reported by devices.
const (
	AlarmNormal   = 0
	AlarmWarning  = 1
	AlarmCritical = 2
)

// User roles.
const (
	RoleAdmin          = "admin"
	RoleAccountManager = "account_manager"
	RoleUser           = "user"
)

// Device holds the latest reported health state for a device.
// Every ingested payload overwrites the scalar fields (last-write-wins);
// no history is kept at this level.
type Device struct {
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
	DeviceID     string    `gorm:"uniqueIndex;not null" json:"device_id"`
	DeviceStatus string    `gorm:"not null;default:active" json:"device_status"`
	CPUTemp      float64   `gorm:"not null" json:"cpu_temp"`
	UptimeSec    int64     `gorm:"not null" json:"uptime_sec"`
	AlarmState   int16     `gorm:"not null;default:0" json:"alarm_state"`
	ID           uint      `gorm:"primaryKey" json:"-"`
}

func (Device) TableName() string {
	return "devices"
}

// ModemReport is an append-only record of the cellular modem state
// carried by one telemetry payload.
type ModemReport struct {
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	DeviceID       string    `gorm:"index;not null" json:"device_id"`
	IMEI           string    `json:"imei"`
	ICCID          string    `json:"iccid"`
	Operator       string    `json:"operator"`
	SignalStrength string    `json:"signal_strength"`
	Registration   string    `json:"registration"`
	CellInfo       string    `json:"cell_info"`
	ID             uint      `gorm:"primaryKey" json:"-"`
}

func (ModemReport) TableName() string {
	return "modem_reports"
}

// ImuReport is an append-only 9-axis inertial sample plus sensor temperature.
type ImuReport struct {
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	DeviceID    string    `gorm:"index;not null" json:"device_id"`
	AccelX      float64   `gorm:"not null" json:"accel_x"`
	AccelY      float64   `gorm:"not null" json:"accel_y"`
	AccelZ      float64   `gorm:"not null" json:"accel_z"`
	GyroX       float64   `gorm:"not null" json:"gyro_x"`
	GyroY       float64   `gorm:"not null" json:"gyro_y"`
	GyroZ       float64   `gorm:"not null" json:"gyro_z"`
	MagX        float64   `gorm:"not null" json:"mag_x"`
	MagY        float64   `gorm:"not null" json:"mag_y"`
	MagZ        float64   `gorm:"not null" json:"mag_z"`
	Temperature float64   `json:"temperature"`
	ID          uint      `gorm:"primaryKey" json:"-"`
}

func (ImuReport) TableName() string {
	return "imu_reports"
}

// GpsReport is an append-only position fix. RecordedAt carries the
// device-reported UTC time of day attached to the ingestion date; it is
// the ordering key for history queries, with ID as tiebreaker.
type GpsReport struct {
	RecordedAt    time.Time `gorm:"index:idx_gps_device_recorded,priority:2;not null" json:"recorded_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	DeviceID      string    `gorm:"index:idx_gps_device_recorded,priority:1;not null" json:"device_id"`
	Latitude      float64   `gorm:"not null" json:"latitude"`
	Longitude     float64   `gorm:"not null" json:"longitude"`
	Altitude      float64   `json:"altitude"`
	Speed         float64   `json:"speed"`
	Course        float64   `json:"course"`
	NumSatellites int       `json:"num_satellites"`
	FixType       int       `json:"fix_type"`
	ID            uint      `gorm:"primaryKey" json:"-"`
}

func (GpsReport) TableName() string {
	return "gps_reports"
}

// BatteryReport is an append-only battery sample.
type BatteryReport struct {
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	DeviceID  string    `gorm:"index;not null" json:"device_id"`
	Voltage   float64   `json:"voltage"`
	Status    string    `json:"status"`
	ID        uint      `gorm:"primaryKey" json:"-"`
}

func (BatteryReport) TableName() string {
	return "battery_reports"
}

// User is an account that can read telemetry. OrganisationID groups
// users for account_manager scoping and is nullable for unaffiliated
// accounts.
type User struct {
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
	Name           string    `gorm:"not null"`
	Email          string    `gorm:"uniqueIndex;not null"`
	PasswordHash   string    `gorm:"not null"`
	Role           string    `gorm:"not null;default:user"`
	OrganisationID *uint     `gorm:"index"`
	ID             uint      `gorm:"primaryKey"`
}

func (User) TableName() string {
	return "users"
}

// UserDevice is a read-grant: the user may query telemetry for the device.
type UserDevice struct {
	CreatedAt time.Time `gorm:"autoCreateTime"`
	DeviceID  string    `gorm:"uniqueIndex:idx_user_device,priority:2;index;not null"`
	UserID    uint      `gorm:"uniqueIndex:idx_user_device,priority:1;not null"`
	ID        uint      `gorm:"primaryKey"`
}

func (UserDevice) TableName() string {
	return "user_devices"
}
