package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/larkin1301/hvcm/internal/sim"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish synthetic device telemetry",
	Long: `Run a fleet of simulated devices that:
- Generate realistic telemetry payloads with drifting positions
- Publish them to the RabbitMQ intake queue at a fixed interval`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	// Simulate-specific flags
	simulateCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	simulateCmd.Flags().String("queue-name", "telemetry", "RabbitMQ queue name for telemetry payloads")
	simulateCmd.Flags().Int("devices", 5, "number of simulated devices")
	simulateCmd.Flags().Duration("interval", 2*time.Second, "interval between reports")

	// Bind flags to viper
	_ = viper.BindPFlag("simulate.rabbitmq.url", simulateCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("simulate.rabbitmq.queue_name", simulateCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("simulate.devices", simulateCmd.Flags().Lookup("devices"))
	_ = viper.BindPFlag("simulate.interval", simulateCmd.Flags().Lookup("interval"))
}

func runSimulate(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting device simulator")

	publisher, err := sim.NewPublisher(&sim.PublisherConfig{
		Logger:      logger,
		RabbitMQURL: viper.GetString("simulate.rabbitmq.url"),
		QueueName:   viper.GetString("simulate.rabbitmq.queue_name"),
		DeviceCount: viper.GetInt("simulate.devices"),
		Interval:    viper.GetDuration("simulate.interval"),
	})
	if err != nil {
		logger.Error("failed to create simulator", "error", err)
		return err
	}

	if err := publisher.Run(context.Background()); err != nil {
		logger.Error("simulator error", "error", err)
		return err
	}

	return nil
}
