package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:           "archguard",
		Short:         "Check that module layers only import inward",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			violations, err := check(cfg, debug)
			if err != nil {
				return err
			}
			for _, v := range violations {
				logger.Warn(v.Error())
			}
			if len(violations) > 0 {
				return errLayering
			}
			logger.Info("layering check passed")
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", ".archguard.yml", "path to the layering config")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable go-cleanarch debug output")

	if err := cmd.Execute(); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
