package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/memereact/internal/reactor"
)

func matchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match <text>",
		Short: "Show which meme a message would trigger, without posting",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			text := strings.Join(args, " ")

			cat, err := buildCatalog(logger)
			if err != nil {
				return fmt.Errorf("match: %w", err)
			}
			store, snap, err := loadWeights(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("match: %w", err)
			}
			defer func() { _ = snap.Close() }()

			rx, err := newReactor(cat, store, reactor.NewLogPoster(logger), logger)
			if err != nil {
				return fmt.Errorf("match: %w", err)
			}

			m, ok := rx.Preview(text)
			if !ok {
				fmt.Println("No meme matches.")
				return nil
			}
			kind := "partial"
			if m.Exact {
				kind = "exact"
			}
			info := rx.Policy().Info(m.Entry.ID)
			fmt.Printf("Match (%s): %s\n", kind, m.Entry.ID)
			fmt.Printf("  Keywords:   %s\n", strings.Join(m.Keywords, ", "))
			fmt.Printf("  Candidates: %d\n", m.Candidates)
			fmt.Printf("  Weight:     %d\n", info.Weight)
			fmt.Printf("  Post rate:  %.1f%%\n", info.Probability*100)
			return nil
		},
	}
}
