package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/inspect"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/stores"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <doc-id>",
	Short: "Print the stored positions of one document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid doc id %q: %w", args[0], err)
	}
	docID := index.DocID(n)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	set, err := stores.Open(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer set.Close()

	doc, err := inspect.New(set.URLs, set.Texts, set.Offsets, set.Math).Document(ctx, docID)
	if err != nil {
		return err
	}
	out := struct {
		inspect.Document
		Terms int `json:"terms"`
	}{Document: doc, Terms: set.Terms.DocLen(docID)}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
