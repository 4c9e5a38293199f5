package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/larkin1301/hvcm/internal/seed"
	"github.com/larkin1301/hvcm/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with development fixtures",
	Long: `Populate the database with development fixtures:
- An admin, plus account managers and users per organisation
- A simulated device fleet with telemetry history
- Device assignments for every non-admin user`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	// Seed-specific flags
	seedCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	seedCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	seedCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	seedCmd.Flags().String("db-password", "", "PostgreSQL password")
	seedCmd.Flags().String("db-name", "hvcm", "PostgreSQL database name")
	seedCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	seedCmd.Flags().Int("organisations", 2, "number of organisations to seed")
	seedCmd.Flags().Int("users-per-org", 3, "users per organisation (first one is the manager)")
	seedCmd.Flags().Int("devices", 8, "number of devices to seed")
	seedCmd.Flags().Int("reports-per-device", 30, "telemetry reports per device")
	seedCmd.Flags().String("password", "changeme", "password for every seeded user")

	// Bind flags to viper
	_ = viper.BindPFlag("seed.db.host", seedCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("seed.db.port", seedCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("seed.db.user", seedCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("seed.db.password", seedCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("seed.db.name", seedCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("seed.db.sslmode", seedCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("seed.organisations", seedCmd.Flags().Lookup("organisations"))
	_ = viper.BindPFlag("seed.users_per_org", seedCmd.Flags().Lookup("users-per-org"))
	_ = viper.BindPFlag("seed.devices", seedCmd.Flags().Lookup("devices"))
	_ = viper.BindPFlag("seed.reports_per_device", seedCmd.Flags().Lookup("reports-per-device"))
	_ = viper.BindPFlag("seed.password", seedCmd.Flags().Lookup("password"))
}

func runSeed(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("seeding database")

	pool, err := store.NewPool(&store.Config{
		Logger:   logger,
		Host:     viper.GetString("seed.db.host"),
		Port:     viper.GetInt("seed.db.port"),
		User:     viper.GetString("seed.db.user"),
		Password: viper.GetString("seed.db.password"),
		DBName:   viper.GetString("seed.db.name"),
		SSLMode:  viper.GetString("seed.db.sslmode"),
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	defer pool.Close()

	seeder, err := seed.New(&seed.Config{
		Logger:        logger,
		Pool:          pool,
		Organisations: viper.GetInt("seed.organisations"),
		UsersPerOrg:   viper.GetInt("seed.users_per_org"),
		Devices:       viper.GetInt("seed.devices"),
		ReportsPer:    viper.GetInt("seed.reports_per_device"),
		Password:      viper.GetString("seed.password"),
	})
	if err != nil {
		logger.Error("failed to create seeder", "error", err)
		return err
	}

	if err := seeder.Run(context.Background()); err != nil {
		logger.Error("seeding failed", "error", err)
		return err
	}

	return nil
}
