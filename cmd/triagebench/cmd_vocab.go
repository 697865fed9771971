package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"triagebench/internal/dataset"
)

var vocabFlags struct {
	dataset string
}

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Print the canonical missing-field vocabulary of a dataset",
	RunE:  runVocab,
}

func init() {
	f := vocabCmd.Flags()
	f.StringVar(&vocabFlags.dataset, "dataset", "data/tickets_eval.jsonl", "Path to JSONL eval dataset")
}

func runVocab(_ *cobra.Command, _ []string) error {
	cases, err := dataset.Load(vocabFlags.dataset)
	if err != nil {
		return err
	}
	vocab := dataset.BuildVocabulary(cases)

	fields := make([]string, 0, len(vocab))
	for field := range vocab {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	fmt.Printf("%d canonical fields in %s\n", len(fields), vocabFlags.dataset)
	for _, field := range fields {
		fmt.Println(field)
	}
	return nil
}
