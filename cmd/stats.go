package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simon-b/atuin/internal/output"
)

var statsTop int

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show simple history statistics",
	GroupID: "history",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.List(0)
		if err != nil {
			return err
		}
		total, err := store.Count()
		if err != nil {
			return err
		}

		counts := map[string]int{}
		failed := 0
		for _, r := range recs {
			head := r.Command
			if i := strings.IndexByte(head, ' '); i > 0 {
				head = head[:i]
			}
			counts[head]++
			if r.ExitCode != 0 {
				failed++
			}
		}

		type entry struct {
			cmd string
			n   int
		}
		top := make([]entry, 0, len(counts))
		for c, n := range counts {
			top = append(top, entry{c, n})
		}
		sort.Slice(top, func(i, j int) bool {
			if top[i].n != top[j].n {
				return top[i].n > top[j].n
			}
			return top[i].cmd < top[j].cmd
		})
		if len(top) > statsTop {
			top = top[:statsTop]
		}

		output.KV("Commands", "%d (%d deleted)", total, total-int64(len(recs)))
		output.KV("Failed", "%d", failed)
		if len(top) > 0 {
			output.Header("Most used")
			for _, e := range top {
				fmt.Printf("  %5d  %s\n", e.n, e.cmd)
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVarP(&statsTop, "top", "t", 10, "How many top commands to show")
	rootCmd.AddCommand(statsCmd)
}
