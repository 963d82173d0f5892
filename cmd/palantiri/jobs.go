package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/palantiri/internal/config"
	"github.com/cuongbtq/palantiri/internal/jobs"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Print the job catalogue with retry budgets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			// the catalogue is useful without a config file
			cfg = &config.Config{}
			cfg.ApplyDefaults()
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tMAX ATTEMPTS\tRETRY INTERVAL")
		for _, def := range jobs.Catalogue() {
			budget := cfg.RetryBudget(def.Name)
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", def.Name, def.Kind, budget.MaxAttempts, budget.RetryInterval)
		}
		return w.Flush()
	},
}
