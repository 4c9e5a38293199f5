package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/larkin1301/hvcm/internal/store"
)

// telemetryPayload renders a complete valid payload for deviceID.
func telemetryPayload(deviceID string, hour, minute, second int) map[string]any {
	return map[string]any{
		"device_id":   deviceID,
		"cpu_temp":    42.5,
		"uptime_sec":  3600,
		"alarm_state": 0,
		"modem": map[string]any{
			"imei":            "356938035643809",
			"iccid":           "8944500212345678912",
			"operator":        "TestNet",
			"signal_strength": "-75dBm",
			"registration":    "registered,home",
			"cell_info":       "LTE B3",
		},
		"imu": map[string]any{
			"accel":       []float64{0.01, -0.02, 0.98},
			"gyro":        []float64{0.1, 0.2, -0.1},
			"mag":         []float64{25.1, 24.9, 26.0},
			"temperature": 31.2,
		},
		"gps": map[string]any{
			"lat":            52.52,
			"lon":            13.405,
			"altitude":       34.0,
			"speed":          12.5,
			"course":         180.0,
			"num_satellites": 8,
			"fix_type":       1,
			"utc":            []int{hour, minute, second},
		},
		"battery": map[string]any{
			"voltage": 3.9,
			"status":  "good",
		},
	}
}

func postJSON(path string, body any) *http.Response {
	data, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())

	resp, err := http.Post(baseURL+path, "application/json", bytes.NewReader(data))
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func tableCounts() map[string]int64 {
	db := pool.DB()
	counts := map[string]int64{}
	for name, model := range map[string]any{
		"devices":         &store.Device{},
		"modem_reports":   &store.ModemReport{},
		"imu_reports":     &store.ImuReport{},
		"gps_reports":     &store.GpsReport{},
		"battery_reports": &store.BatteryReport{},
	} {
		var count int64
		Expect(db.Model(model).Count(&count).Error).To(Succeed())
		counts[name] = count
	}
	return counts
}

var _ = Describe("Telemetry ingestion", func() {
	Describe("HTTP intake", func() {
		It("should commit one row to every table atomically", func() {
			before := tableCounts()

			resp := postJSON("/ingest", telemetryPayload("e2e-http-1", 10, 30, 0))
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			after := tableCounts()
			for _, table := range []string{"modem_reports", "imu_reports", "gps_reports", "battery_reports"} {
				Expect(after[table]).To(Equal(before[table]+1), table)
			}

			var device store.Device
			Expect(pool.DB().Where("device_id = ?", "e2e-http-1").First(&device).Error).To(Succeed())
			Expect(device.CPUTemp).To(Equal(42.5))
			Expect(device.DeviceStatus).To(Equal(store.DeviceStatusActive))
		})

		It("should write nothing for a rejected payload", func() {
			before := tableCounts()

			payload := telemetryPayload("e2e-http-bad", 10, 30, 0)
			delete(payload, "battery")

			resp := postJSON("/ingest", payload)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			Expect(tableCounts()).To(Equal(before))
		})

		It("should update the device row in place on repeat reports", func() {
			first := telemetryPayload("e2e-http-upsert", 9, 0, 0)
			resp := postJSON("/ingest", first)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			second := telemetryPayload("e2e-http-upsert", 9, 5, 0)
			second["cpu_temp"] = 77.0
			resp = postJSON("/ingest", second)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var devices int64
			Expect(pool.DB().Model(&store.Device{}).
				Where("device_id = ?", "e2e-http-upsert").
				Count(&devices).Error).To(Succeed())
			Expect(devices).To(Equal(int64(1)))

			var device store.Device
			Expect(pool.DB().Where("device_id = ?", "e2e-http-upsert").First(&device).Error).To(Succeed())
			Expect(device.CPUTemp).To(Equal(77.0))
		})

		It("should handle concurrent ingests without losing rows", func() {
			const workers = 10

			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					defer GinkgoRecover()

					payload := telemetryPayload(fmt.Sprintf("e2e-conc-%d", n), 11, n, 0)
					resp := postJSON("/ingest", payload)
					defer resp.Body.Close()
					if resp.StatusCode != http.StatusOK {
						errs <- fmt.Errorf("worker %d got status %d", n, resp.StatusCode)
					}
				}(i)
			}
			wg.Wait()
			close(errs)
			for workerErr := range errs {
				Expect(workerErr).NotTo(HaveOccurred())
			}

			var devices int64
			Expect(pool.DB().Model(&store.Device{}).
				Where("device_id LIKE ?", "e2e-conc-%").
				Count(&devices).Error).To(Succeed())
			Expect(devices).To(Equal(int64(workers)))

			var fixes int64
			Expect(pool.DB().Model(&store.GpsReport{}).
				Where("device_id LIKE ?", "e2e-conc-%").
				Count(&fixes).Error).To(Succeed())
			Expect(fixes).To(Equal(int64(workers)))
		})
	})

	Describe("AMQP intake", func() {
		It("should consume a published payload into storage", func() {
			conn, err := amqp.Dial(rabbitmqURL)
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			channel, err := conn.Channel()
			Expect(err).NotTo(HaveOccurred())
			defer channel.Close()

			body, err := json.Marshal(telemetryPayload("e2e-amqp-1", 12, 0, 0))
			Expect(err).NotTo(HaveOccurred())

			Expect(channel.Publish("", queueName, false, false, amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			})).To(Succeed())

			Eventually(func() int64 {
				var count int64
				_ = pool.DB().Model(&store.Device{}).
					Where("device_id = ?", "e2e-amqp-1").
					Count(&count).Error
				return count
			}).WithTimeout(30 * time.Second).WithPolling(time.Second).Should(Equal(int64(1)))
		})

		It("should drop a malformed payload without crashing", func() {
			conn, err := amqp.Dial(rabbitmqURL)
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			channel, err := conn.Channel()
			Expect(err).NotTo(HaveOccurred())
			defer channel.Close()

			Expect(channel.Publish("", queueName, false, false, amqp.Publishing{
				ContentType: "application/json",
				Body:        []byte("{not json"),
			})).To(Succeed())

			// The pipeline keeps working afterwards.
			body, err := json.Marshal(telemetryPayload("e2e-amqp-2", 12, 30, 0))
			Expect(err).NotTo(HaveOccurred())
			Expect(channel.Publish("", queueName, false, false, amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			})).To(Succeed())

			Eventually(func() int64 {
				var count int64
				_ = pool.DB().Model(&store.Device{}).
					Where("device_id = ?", "e2e-amqp-2").
					Count(&count).Error
				return count
			}).WithTimeout(30 * time.Second).WithPolling(time.Second).Should(Equal(int64(1)))
		})
	})
})
