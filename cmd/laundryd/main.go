package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"laundry-smart-queue/config"
	"laundry-smart-queue/internal/logging"
	"laundry-smart-queue/internal/model"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "laundryd",
		Short:         "Laundry room machine lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml" // Default path for local development
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "Path to the YAML configuration file")

	load := func() (*config.Config, *logrus.Logger, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		log, err := logging.Setup(cfg.Log)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("path", configPath).Info("configuration loaded")
		return cfg, log, nil
	}

	cmd.AddCommand(serveCmd(load), migrateCmd(load), seedCmd(load), tokenCmd(load))
	return cmd
}

type loader func() (*config.Config, *logrus.Logger, error)

func machinesFromConfig(cfg *config.Config) []model.Machine {
	machines := make([]model.Machine, 0, len(cfg.Laundry.Machines))
	for _, m := range cfg.Laundry.Machines {
		machines = append(machines, model.Machine{
			ID:   m.ID,
			Name: m.Name,
			Type: model.MachineType(m.Type),
		})
	}
	return machines
}
