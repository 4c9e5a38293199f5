package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/larkin1301/hvcm/internal/api"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the telemetry server",
	Long: `Run the telemetry server that:
- Accepts device telemetry over HTTP and RabbitMQ
- Persists reports transactionally to PostgreSQL
- Serves the role-scoped fleet query API
- Manages user sessions`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	serverCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	serverCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	serverCmd.Flags().String("db-password", "", "PostgreSQL password")
	serverCmd.Flags().String("db-name", "hvcm", "PostgreSQL database name")
	serverCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	serverCmd.Flags().Int("db-max-conns", 10, "maximum open database connections")
	serverCmd.Flags().Duration("db-acquire-timeout", 5*time.Second, "transaction acquire timeout")
	serverCmd.Flags().Int("http-port", 8080, "HTTP server port")
	serverCmd.Flags().String("session-secret", "", "secret used to sign session tokens")
	serverCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL (empty disables the AMQP intake)")
	serverCmd.Flags().String("queue-name", "telemetry", "RabbitMQ queue name for telemetry payloads")
	serverCmd.Flags().Bool("metrics", true, "expose prometheus metrics on /metrics")

	// Bind flags to viper
	_ = viper.BindPFlag("server.db.host", serverCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("server.db.port", serverCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("server.db.user", serverCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("server.db.password", serverCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("server.db.name", serverCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("server.db.sslmode", serverCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("server.db.max_conns", serverCmd.Flags().Lookup("db-max-conns"))
	_ = viper.BindPFlag("server.db.acquire_timeout", serverCmd.Flags().Lookup("db-acquire-timeout"))
	_ = viper.BindPFlag("server.http.port", serverCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("server.session.secret", serverCmd.Flags().Lookup("session-secret"))
	_ = viper.BindPFlag("server.rabbitmq.url", serverCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("server.rabbitmq.queue_name", serverCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("server.metrics.enabled", serverCmd.Flags().Lookup("metrics"))
}

func runServer(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting telemetry server")

	// Create server configuration from viper
	config := &api.ServerConfig{
		Logger:           logger,
		DBHost:           viper.GetString("server.db.host"),
		DBPort:           viper.GetInt("server.db.port"),
		DBUser:           viper.GetString("server.db.user"),
		DBPassword:       viper.GetString("server.db.password"),
		DBName:           viper.GetString("server.db.name"),
		DBSSLMode:        viper.GetString("server.db.sslmode"),
		DBMaxConns:       viper.GetInt("server.db.max_conns"),
		DBAcquireTimeout: viper.GetDuration("server.db.acquire_timeout"),
		HTTPPort:         viper.GetInt("server.http.port"),
		SessionSecret:    viper.GetString("server.session.secret"),
		RabbitMQURL:      viper.GetString("server.rabbitmq.url"),
		QueueName:        viper.GetString("server.rabbitmq.queue_name"),
		EnableMetrics:    viper.GetBool("server.metrics.enabled"),
	}

	// Create and run server
	server, err := api.NewServer(config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return err
	}

	logger.Info("server configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"http_port", config.HTTPPort,
		"rabbitmq_url", config.RabbitMQURL,
		"queue_name", config.QueueName,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
