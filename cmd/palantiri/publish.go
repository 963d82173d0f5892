package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/palantiri/internal/jobs"
)

var publishCmd = &cobra.Command{
	Use:   "publish JOB",
	Short: "Validate and publish one job",
	Long: `Validate a JSON payload against the job's schema and publish it.

Example:
  palantiri publish dock.disk.filled --payload '{"host":"10.0.0.1:4242"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, _ := cmd.Flags().GetString("payload")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		appLogger, err := initLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer appLogger.Close()

		rabbitClient, err := initRabbitMQ(cmd, &cfg.RabbitMQ, appLogger.Component("rabbitmq"))
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		publisher := jobs.NewPublisher(rabbitClient, appLogger.Component("publisher"))
		correlationID, err := publisher.PublishRaw(cmd.Context(), args[0], []byte(payload))
		if err != nil {
			return err
		}

		appLogger.Info("Job published",
			slog.String("job", args[0]),
			slog.String("correlation_id", correlationID),
		)
		fmt.Fprintln(cmd.OutOrStdout(), correlationID)
		return nil
	},
}

func init() {
	publishCmd.Flags().String("payload", "{}", "JSON payload of the job")
}
