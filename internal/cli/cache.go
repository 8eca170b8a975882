package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/focus/internal/cache"
	"github.com/dshills/focus/internal/pipeline"
)

var cacheShowJSON bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the analysis and context caches",
}

// withCaches opens a session and runs fn when caching is enabled. The
// caches are persisted when the session closes.
func withCaches(fn func(s *session) error) {
	s, err := openSession()
	if err != nil {
		fail("%v", err)
		return
	}
	if s.caches.Analyses == nil {
		fmt.Fprintln(os.Stdout, "Cache is disabled.")
		s.Close()
		return
	}
	err = fn(s)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fail("%v", err)
	}
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached analysis and context for this project",
	RunE: func(cmd *cobra.Command, args []string) error {
		withCaches(func(s *session) error {
			n := s.caches.Analyses.Stats().Entries + s.caches.Contexts.Stats().Entries
			s.caches.Analyses.Clear()
			s.caches.Contexts.Clear()
			fmt.Fprintf(os.Stdout, "Removed %d entries.\n", n)
			return nil
		})
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		withCaches(func(s *session) error {
			n := s.caches.Analyses.Sweep() + s.caches.Contexts.Sweep()
			fmt.Fprintf(os.Stdout, "Removed %d expired entries.\n", n)
			return nil
		})
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		withCaches(func(s *session) error {
			stats := pipeline.CacheStats{
				Analyses: s.caches.Analyses.Stats(),
				Contexts: s.caches.Contexts.Stats(),
			}
			if cacheShowJSON {
				data, err := json.MarshalIndent(stats, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, string(data))
				return nil
			}
			return writeCacheStats(os.Stdout, stats)
		})
		return nil
	},
}

func writeCacheStats(w io.Writer, stats pipeline.CacheStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "CACHE\tPOLICY\tENTRIES\tBYTES\tHITS\tMISSES\tHIT RATE\tEVICTIONS\n")
	for _, row := range []struct {
		name string
		st   cache.Stats
	}{
		{"analyses", stats.Analyses},
		{"contexts", stats.Contexts},
	} {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%.0f%%\t%d\n",
			row.name, row.st.Policy, row.st.Entries, row.st.TotalBytes, row.st.Hits, row.st.Misses,
			row.st.HitRate*100, row.st.Evictions)
	}
	return tw.Flush()
}

func init() {
	cacheShowCmd.Flags().BoolVar(&cacheShowJSON, "json", false, "Print statistics as JSON")
	cacheCmd.AddCommand(cacheClearCmd, cachePruneCmd, cacheShowCmd)
}
