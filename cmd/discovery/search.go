package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omicsearch/discovery-service/internal/domain"
)

// newSearchCommand runs a single search from the command line and
// prints the outcome as JSON.
func newSearchCommand() *cobra.Command {
	var (
		organism   string
		yearFrom   int
		yearTo     int
		sourceList []string
		maxResults int
	)

	cmd := &cobra.Command{
		Use:   "search [terms...]",
		Short: "Run one search and print the ranked results as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(args, organism, yearFrom, yearTo, sourceList, maxResults)
		},
	}

	cmd.Flags().StringVar(&organism, "organism", "", "restrict results to an organism")
	cmd.Flags().IntVar(&yearFrom, "year-from", 0, "earliest publication year")
	cmd.Flags().IntVar(&yearTo, "year-to", 0, "latest publication year")
	cmd.Flags().StringSliceVar(&sourceList, "sources", nil, "sources to query (geo, europepmc, crossref)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "maximum results to return")

	return cmd
}

func runSearch(terms []string, organism string, yearFrom, yearTo int, sourceList []string, maxResults int) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	var allowed []domain.SourceType
	for _, name := range sourceList {
		st := domain.SourceType(strings.ToLower(strings.TrimSpace(name)))
		switch st {
		case domain.SourceTypeGEO, domain.SourceTypeEuropePMC, domain.SourceTypeCrossref:
			allowed = append(allowed, st)
		default:
			return fmt.Errorf("unsupported source: %s", name)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, err := a.search.Search(ctx, domain.Query{
		Terms:      terms,
		Organism:   organism,
		YearFrom:   yearFrom,
		YearTo:     yearTo,
		Sources:    allowed,
		MaxResults: maxResults,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}
