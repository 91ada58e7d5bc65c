package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func catalogCmd() *cobra.Command {
	var keywords bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Build the meme catalog and list its entries",
		Long: `Scans the catalog root the same way serve does. A missing contributor folder or an
alias line naming an unknown file fails the build with a non-zero exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cat, err := buildCatalog(logger)
			if err != nil {
				return fmt.Errorf("catalog: %w", err)
			}

			if keywords {
				for _, kw := range cat.Keywords() {
					fmt.Printf("%-24s %d\n", kw, len(cat.LookupExact(kw)))
				}
				return nil
			}

			for i, e := range cat.Entries() {
				fmt.Printf("[%d] %s\n", i+1, e.ID)
				fmt.Printf("    Keywords: %s\n", truncate(strings.Join(e.Keywords, ", "), 100))
			}
			fmt.Printf("\n%d entries, %d keywords\n", cat.Len(), len(cat.Keywords()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&keywords, "keywords", false, "list keywords with their entry counts instead of entries")
	return cmd
}
