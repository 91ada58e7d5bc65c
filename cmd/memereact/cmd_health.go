package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/memereact/internal/config"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the catalog, the weight snapshot and the Telegram settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			allOK := true

			fmt.Println("Config: OK")

			// Check catalog
			cat, err := buildCatalog(logger)
			if err != nil {
				fmt.Printf("Catalog: FAIL (%v)\n", err)
				allOK = false
			} else {
				fmt.Printf("Catalog: OK (%d entries, %d keywords)\n", cat.Len(), len(cat.Keywords()))
			}

			// Check weight snapshot
			store, snap, err := loadWeights(cmd.Context(), logger)
			if err != nil {
				fmt.Printf("Weights: FAIL (%v)\n", err)
				allOK = false
			} else {
				_ = snap.Close()
				fmt.Printf("Weights: OK (%s, %d entries)\n", cfg.Persistence.Backend, store.Len())
				if cfg.Persistence.Backend == config.BackendFile {
					if _, statErr := os.Stat(cfg.Persistence.Path); os.IsNotExist(statErr) {
						fmt.Println("  (no snapshot yet; it is created on the first flush)")
					}
				}
			}

			// Check Telegram settings
			switch {
			case !cfg.Telegram.Enabled:
				fmt.Println("Telegram: disabled")
			case cfg.Telegram.Token == "":
				fmt.Println("Telegram: FAIL (no token configured)")
				allOK = false
			default:
				fmt.Println("Telegram: OK (token configured)")
			}

			if len(cfg.Reactions) == 0 {
				fmt.Println("Reactions: WARN (no emote scores configured; weights will never change)")
			}

			if !allOK {
				return fmt.Errorf("one or more health checks failed")
			}
			return nil
		},
	}
}
