package ingest_test

import (
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/larkin1301/hvcm/internal/ingest"
	"github.com/larkin1301/hvcm/internal/store"
)

// validPayload returns a payload that passes every check. Tests mutate
// one field at a time.
func validPayload() *ingest.TelemetryPayload {
	return &ingest.TelemetryPayload{
		DeviceID:   "AA:BB:CC:DD:EE:01",
		CPUTemp:    42.5,
		UptimeSec:  3600,
		AlarmState: json.RawMessage(`0`),
		Modem: &ingest.ModemSection{
			IMEI:           "356938035643809",
			ICCID:          "8944500212345678912",
			Operator:       "TestNet",
			SignalStrength: "-75dBm",
			Registration:   "registered,home",
			CellInfo:       "LTE B3",
		},
		IMU: &ingest.IMUSection{
			Accel:       []float64{0.01, -0.02, 0.98},
			Gyro:        []float64{0.1, 0.2, -0.1},
			Mag:         []float64{25.1, 24.9, 26.0},
			Temperature: 31.2,
		},
		GPS: &ingest.GPSSection{
			Lat:           52.52,
			Lon:           13.405,
			Altitude:      34.0,
			Speed:         12.5,
			Course:        180.0,
			NumSatellites: 8,
			FixType:       1,
			UTC:           []float64{10, 30, 15},
		},
		Battery: &ingest.BatterySection{
			Voltage: 3.9,
			Status:  "good",
		},
	}
}

var _ = Describe("Validate", func() {
	var now time.Time

	BeforeEach(func() {
		now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	})

	Context("with a valid payload", func() {
		It("should produce a report with all sections", func() {
			report, err := ingest.ValidateAt(validPayload(), now)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.DeviceID).To(Equal("AA:BB:CC:DD:EE:01"))
			Expect(report.CPUTemp).To(Equal(42.5))
			Expect(report.UptimeSec).To(Equal(int64(3600)))
			Expect(report.Modem.IMEI).To(Equal("356938035643809"))
			Expect(report.Battery.Voltage).To(Equal(3.9))
		})

		It("should resolve the fix time against today's UTC date", func() {
			report, err := ingest.ValidateAt(validPayload(), now)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.RecordedAt).To(Equal(time.Date(2026, 3, 14, 10, 30, 15, 0, time.UTC)))
		})
	})

	Context("with missing fields", func() {
		It("should reject a nil payload", func() {
			_, err := ingest.ValidateAt(nil, now)
			Expect(err).To(HaveOccurred())
		})

		It("should reject an empty device_id", func() {
			payload := validPayload()
			payload.DeviceID = ""
			_, err := ingest.ValidateAt(payload, now)

			var validationErr *ingest.ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(validationErr.Kind).To(Equal(ingest.ErrKindMissingField))
			Expect(validationErr.Field).To(Equal("device_id"))
		})

		It("should reject a whitespace-only device_id", func() {
			payload := validPayload()
			payload.DeviceID = "   "
			_, err := ingest.ValidateAt(payload, now)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with missing sections", func() {
		It("should reject a missing modem section", func() {
			payload := validPayload()
			payload.Modem = nil
			_, err := ingest.ValidateAt(payload, now)

			var validationErr *ingest.ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(validationErr.Kind).To(Equal(ingest.ErrKindMissingSection))
			Expect(validationErr.Field).To(Equal("modem"))
		})

		It("should reject a missing imu section", func() {
			payload := validPayload()
			payload.IMU = nil
			_, err := ingest.ValidateAt(payload, now)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a missing gps section", func() {
			payload := validPayload()
			payload.GPS = nil
			_, err := ingest.ValidateAt(payload, now)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a missing battery section", func() {
			payload := validPayload()
			payload.Battery = nil
			_, err := ingest.ValidateAt(payload, now)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with malformed axis arrays", func() {
		It("should reject a two-element accel array", func() {
			payload := validPayload()
			payload.IMU.Accel = []float64{0.1, 0.2}
			_, err := ingest.ValidateAt(payload, now)

			var validationErr *ingest.ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(validationErr.Kind).To(Equal(ingest.ErrKindMalformedArray))
			Expect(validationErr.Field).To(Equal("imu.accel"))
		})

		It("should reject a four-element gyro array", func() {
			payload := validPayload()
			payload.IMU.Gyro = []float64{0.1, 0.2, 0.3, 0.4}
			_, err := ingest.ValidateAt(payload, now)
			Expect(err).To(HaveOccurred())
		})

		It("should reject an empty mag array", func() {
			payload := validPayload()
			payload.IMU.Mag = nil
			_, err := ingest.ValidateAt(payload, now)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("gps fix time", func() {
		It("should reject a short utc array", func() {
			payload := validPayload()
			payload.GPS.UTC = []float64{10, 30}
			_, err := ingest.ValidateAt(payload, now)

			var validationErr *ingest.ValidationError
			Expect(errors.As(err, &validationErr)).To(BeTrue())
			Expect(validationErr.Field).To(Equal("gps.utc"))
		})

		It("should reject fractional components", func() {
			payload := validPayload()
			payload.GPS.UTC = []float64{10.5, 30, 15}
			_, err := ingest.ValidateAt(payload, now)
			Expect(err).To(HaveOccurred())
		})

		It("should reject an out-of-range hour", func() {
			payload := validPayload()
			payload.GPS.UTC = []float64{24, 0, 0}
			_, err := ingest.ValidateAt(payload, now)
			Expect(err).To(HaveOccurred())
		})

		It("should reject negative components", func() {
			payload := validPayload()
			payload.GPS.UTC = []float64{10, -1, 0}
			_, err := ingest.ValidateAt(payload, now)
			Expect(err).To(HaveOccurred())
		})

		It("should accept midnight exactly", func() {
			payload := validPayload()
			payload.GPS.UTC = []float64{0, 0, 0}
			report, err := ingest.ValidateAt(payload, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.RecordedAt.Hour()).To(BeZero())
		})

		It("should roll a fix far ahead of server time back one day", func() {
			// Server already crossed midnight, device has not.
			serverNow := time.Date(2026, 3, 15, 0, 2, 0, 0, time.UTC)
			payload := validPayload()
			payload.GPS.UTC = []float64{23, 58, 0}

			report, err := ingest.ValidateAt(payload, serverNow)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.RecordedAt).To(Equal(time.Date(2026, 3, 14, 23, 58, 0, 0, time.UTC)))
		})

		It("should roll a fix far behind server time forward one day", func() {
			// Device already crossed midnight, server has not.
			serverNow := time.Date(2026, 3, 14, 23, 58, 0, 0, time.UTC)
			payload := validPayload()
			payload.GPS.UTC = []float64{0, 1, 0}

			report, err := ingest.ValidateAt(payload, serverNow)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.RecordedAt).To(Equal(time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)))
		})

		It("should keep a fix within the clock-skew grace on today", func() {
			serverNow := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
			payload := validPayload()
			payload.GPS.UTC = []float64{12, 45, 0}

			report, err := ingest.ValidateAt(payload, serverNow)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.RecordedAt).To(Equal(time.Date(2026, 3, 14, 12, 45, 0, 0, time.UTC)))
		})
	})

	Context("alarm state coercion", func() {
		DescribeTable("accepts and defaults alarm values",
			func(raw string, expected int16) {
				payload := validPayload()
				payload.AlarmState = json.RawMessage(raw)
				report, err := ingest.ValidateAt(payload, now)
				Expect(err).NotTo(HaveOccurred())
				Expect(report.AlarmState).To(Equal(expected))
			},
			Entry("numeric zero", `0`, int16(store.AlarmNormal)),
			Entry("numeric warning", `1`, int16(store.AlarmWarning)),
			Entry("numeric critical", `2`, int16(store.AlarmCritical)),
			Entry("quoted string", `"1"`, int16(store.AlarmWarning)),
			Entry("out of range", `7`, int16(store.AlarmNormal)),
			Entry("negative", `-1`, int16(store.AlarmNormal)),
			Entry("garbage string", `"offline"`, int16(store.AlarmNormal)),
			Entry("empty", ``, int16(store.AlarmNormal)),
		)
	})
})
