package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/memereact/internal/policy"
	"github.com/ajitpratap0/memereact/pkg/randsrc"
)

func weightsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Dump the persisted meme weights and their post rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			store, snap, err := loadWeights(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("weights: %w", err)
			}
			defer func() { _ = snap.Close() }()

			pol := policy.New(store, randsrc.Global(), policyParams())
			data := store.Snapshot()
			ids := make([]string, 0, len(data))
			for id := range data {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool {
				if data[ids[i]] != data[ids[j]] {
					return data[ids[i]] > data[ids[j]]
				}
				return ids[i] < ids[j]
			})

			if len(ids) == 0 {
				fmt.Println("No weights recorded.")
				return nil
			}
			for i, id := range ids {
				if limit > 0 && i >= limit {
					fmt.Printf("... %d more\n", len(ids)-limit)
					break
				}
				info := pol.Info(id)
				fmt.Printf("%6d  %5.1f%%  %s\n", info.Weight, info.Probability*100, id)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "max entries to print (0 = all)")
	return cmd
}
