// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hydrostat/internal/export"
)

var (
	historyLimit int
	historyPath  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent snapshots from the SQLite history",
	Long: `Print the most recent status snapshots recorded by 'hydrostat run'
when export.history is enabled, newest first.

Columns are the time taken, connectivity, every sensor in schema order and
the relays that were ON.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of snapshots to show")
	historyCmd.Flags().StringVar(&historyPath, "db", "", "History database (default: export.history.path)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hcfg := cfg.Export.History
	if historyPath != "" {
		hcfg.Path = historyPath
	}
	if _, err := os.Stat(hcfg.Path); err != nil {
		return fmt.Errorf("history database %s: %w", hcfg.Path, err)
	}

	ctx := context.Background()
	h, err := export.OpenHistory(ctx, hcfg)
	if err != nil {
		return err
	}
	defer h.Close()

	rows, err := h.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("No snapshots in %s\n", h.Path())
		return nil
	}

	schema, _ := cfg.Schema()
	names := schema.Names()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TIME\tLINK\t%s\tRELAYS ON\n", strings.ToUpper(strings.Join(names, "\t")))
	for _, row := range rows {
		values := make([]string, len(names))
		for i, n := range names {
			v, ok := row.Sensors[n]
			if !ok {
				values[i] = "-"
				continue
			}
			values[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}

		var on []string
		for _, d := range cfg.Devices() {
			if row.Relays[d.Key] {
				on = append(on, d.Code)
			}
		}
		link := "down"
		if row.Connected {
			link = "up"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			row.TakenAt.Local().Format("2006-01-02 15:04:05"),
			link,
			strings.Join(values, "\t"),
			strings.Join(on, ","),
		)
	}
	return w.Flush()
}
