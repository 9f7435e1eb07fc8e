package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/featmine/internal/config"
)

var analyzeStorePath string

var analyzeCmd = &cobra.Command{
	Use:   "analyze [question]",
	Short: "Analyze persisted extraction data",
	Long: `Run statistical analysis over previously persisted rows.

With no question, all analyses run: a data summary, the correlation table
against the target property, and graph patterns when the knowledge graph
is enabled.

Examples:
  # Everything
  featmine analyze --store features.csv

  # Just the correlation table
  featmine analyze --store features.csv "correlations with ionic conductivity"

  # Just summary statistics
  featmine analyze --store features.csv "data summary"`,
	Args: cobra.ArbitraryArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeStorePath, "store", "", "CSV file the rows were persisted to")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx, func(cfg *config.Config) {
		if analyzeStorePath != "" {
			cfg.Store.Path = analyzeStorePath
		}
	})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		question = "analyze the persisted data"
	} else if !strings.Contains(strings.ToLower(question), "analy") {
		question = "analyze " + question
	}

	result, err := a.service.Run(ctx, question, nil)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Response)
	return nil
}
