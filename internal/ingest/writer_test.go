package ingest_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/larkin1301/hvcm/internal/ingest"
	"github.com/larkin1301/hvcm/internal/store"
)

// newTestPool opens an isolated in-memory sqlite database with the
// schema migrated.
func newTestPool() *store.Pool {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	Expect(err).NotTo(HaveOccurred())

	sqlDB, err := db.DB()
	Expect(err).NotTo(HaveOccurred())
	sqlDB.SetMaxOpenConns(1)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	pool, err := store.NewPoolFromDB(db, logger)
	Expect(err).NotTo(HaveOccurred())
	Expect(pool.Migrate()).To(Succeed())
	return pool
}

func testReport(deviceID string, at time.Time) *ingest.Report {
	payload := validPayload()
	payload.DeviceID = deviceID
	report, err := ingest.ValidateAt(payload, at)
	Expect(err).NotTo(HaveOccurred())
	return report
}

var _ = Describe("Writer", func() {
	var (
		logger *slog.Logger
		pool   *store.Pool
		writer *ingest.Writer
		ctx    context.Context
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
		pool = newTestPool()
		ctx = context.Background()

		var err error
		writer, err = ingest.NewWriter(&ingest.WriterConfig{
			Logger: logger,
			Pool:   pool,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(pool.Close()).To(Succeed())
	})

	Describe("NewWriter", func() {
		It("should return error when config is nil", func() {
			w, err := ingest.NewWriter(nil)
			Expect(err).To(HaveOccurred())
			Expect(w).To(BeNil())
		})

		It("should return error when logger is nil", func() {
			w, err := ingest.NewWriter(&ingest.WriterConfig{Pool: pool})
			Expect(err).To(HaveOccurred())
			Expect(w).To(BeNil())
		})

		It("should return error when pool is nil", func() {
			w, err := ingest.NewWriter(&ingest.WriterConfig{Logger: logger})
			Expect(err).To(HaveOccurred())
			Expect(w).To(BeNil())
		})
	})

	Describe("Ingest", func() {
		It("should reject a nil report", func() {
			Expect(writer.Ingest(ctx, nil)).To(HaveOccurred())
		})

		It("should write one row to every telemetry table", func() {
			now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
			Expect(writer.Ingest(ctx, testReport("dev-1", now))).To(Succeed())

			db := pool.DB()
			var devices, modems, imus, gps, batteries int64
			Expect(db.Model(&store.Device{}).Count(&devices).Error).To(Succeed())
			Expect(db.Model(&store.ModemReport{}).Count(&modems).Error).To(Succeed())
			Expect(db.Model(&store.ImuReport{}).Count(&imus).Error).To(Succeed())
			Expect(db.Model(&store.GpsReport{}).Count(&gps).Error).To(Succeed())
			Expect(db.Model(&store.BatteryReport{}).Count(&batteries).Error).To(Succeed())

			Expect(devices).To(Equal(int64(1)))
			Expect(modems).To(Equal(int64(1)))
			Expect(imus).To(Equal(int64(1)))
			Expect(gps).To(Equal(int64(1)))
			Expect(batteries).To(Equal(int64(1)))
		})

		It("should upsert the device row on repeat reports", func() {
			now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

			first := testReport("dev-1", now)
			Expect(writer.Ingest(ctx, first)).To(Succeed())

			second := testReport("dev-1", now.Add(time.Minute))
			second.CPUTemp = 55.5
			second.UptimeSec = 7200
			Expect(writer.Ingest(ctx, second)).To(Succeed())

			var devices, gps int64
			Expect(pool.DB().Model(&store.Device{}).Count(&devices).Error).To(Succeed())
			Expect(pool.DB().Model(&store.GpsReport{}).Count(&gps).Error).To(Succeed())
			Expect(devices).To(Equal(int64(1)))
			Expect(gps).To(Equal(int64(2)))

			var device store.Device
			Expect(pool.DB().Where("device_id = ?", "dev-1").First(&device).Error).To(Succeed())
			Expect(device.CPUTemp).To(Equal(55.5))
			Expect(device.UptimeSec).To(Equal(int64(7200)))
		})

		It("should keep devices independent", func() {
			now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
			Expect(writer.Ingest(ctx, testReport("dev-1", now))).To(Succeed())
			Expect(writer.Ingest(ctx, testReport("dev-2", now))).To(Succeed())

			var devices int64
			Expect(pool.DB().Model(&store.Device{}).Count(&devices).Error).To(Succeed())
			Expect(devices).To(Equal(int64(2)))
		})
	})

	Describe("transactional behavior", func() {
		It("should roll back every write when the transaction fails", func() {
			now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
			report := testReport("dev-1", now)

			err := pool.WithTransaction(ctx, func(tx *gorm.DB) error {
				if writeErr := writer.Write(tx, report); writeErr != nil {
					return writeErr
				}
				return errors.New("simulated failure after writes")
			})
			Expect(err).To(HaveOccurred())

			db := pool.DB()
			var devices, modems, imus, gps, batteries int64
			Expect(db.Model(&store.Device{}).Count(&devices).Error).To(Succeed())
			Expect(db.Model(&store.ModemReport{}).Count(&modems).Error).To(Succeed())
			Expect(db.Model(&store.ImuReport{}).Count(&imus).Error).To(Succeed())
			Expect(db.Model(&store.GpsReport{}).Count(&gps).Error).To(Succeed())
			Expect(db.Model(&store.BatteryReport{}).Count(&batteries).Error).To(Succeed())

			Expect(devices).To(BeZero())
			Expect(modems).To(BeZero())
			Expect(imus).To(BeZero())
			Expect(gps).To(BeZero())
			Expect(batteries).To(BeZero())
		})

		It("should leave earlier commits intact after a later rollback", func() {
			now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
			Expect(writer.Ingest(ctx, testReport("dev-1", now))).To(Succeed())

			err := pool.WithTransaction(ctx, func(tx *gorm.DB) error {
				if writeErr := writer.Write(tx, testReport("dev-2", now)); writeErr != nil {
					return writeErr
				}
				return errors.New("boom")
			})
			Expect(err).To(HaveOccurred())

			var devices int64
			Expect(pool.DB().Model(&store.Device{}).Count(&devices).Error).To(Succeed())
			Expect(devices).To(Equal(int64(1)))
		})
	})
})
