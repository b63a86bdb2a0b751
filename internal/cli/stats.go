package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory subsystem statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print stats as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		if info, err := os.Stat(pidFile); err == nil {
			fmt.Printf("Service: running (up %s)\n", formatDuration(time.Since(info.ModTime())))
		} else {
			fmt.Println("Service: running")
		}
	} else {
		fmt.Println("Service: stopped")
	}

	rt, err := buildRuntime(true)
	if err != nil {
		return err
	}
	defer rt.close()

	stats := rt.manager.Stats(context.Background())
	if statsJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Stored memories:  %d\n", stats.StoreCount)
	fmt.Printf("Cached records:   %d\n", stats.CachedCount)
	fmt.Printf("Index:            %d vectors (ready=%t)\n", stats.IndexSize, stats.IndexReady)
	fmt.Printf("Embedding:        configured=%t, dimension=%d\n", stats.EmbeddingConfigured, stats.EmbeddingDimension)
	fmt.Printf("Scheduler:        %s\n", stats.SchedulerState)
	if !stats.LastFlushTime.IsZero() {
		fmt.Printf("Last flush:       %s\n", stats.LastFlushTime.Format(time.RFC3339))
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
