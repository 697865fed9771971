package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"triagebench/internal/config"
	"triagebench/internal/report"
)

var reportFlags struct {
	results    string
	events     string
	out        string
	configPath string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a Markdown report from run logs",
	RunE:  runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportFlags.results, "results", "logs/results.jsonl", "Path to results JSONL")
	f.StringVar(&reportFlags.events, "events", "logs/events.jsonl", "Path to events JSONL")
	f.StringVar(&reportFlags.out, "out", "reports/report.md", "Where to write the report")
	f.StringVar(&reportFlags.configPath, "config", "", "Optional run config carrying gate overrides")
}

func runReport(_ *cobra.Command, _ []string) error {
	var gates map[string]float64
	if reportFlags.configPath != "" {
		cfg, err := config.Load(reportFlags.configPath)
		if err != nil {
			return err
		}
		gates = cfg.Gates
	}

	summary, err := report.SummarizeFiles(reportFlags.results, reportFlags.events)
	if err != nil {
		return err
	}
	if err := report.WriteMarkdown(summary, reportFlags.out, gates); err != nil {
		return err
	}
	fmt.Printf("Report written to %s\n", reportFlags.out)
	return nil
}
