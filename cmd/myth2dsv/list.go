// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/ManuGH/myth2dsv/internal/mythtv"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newListCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			host, err := c.requireHost()
			if err != nil {
				return err
			}
			recs, err := listRecordings(cmd.Context(), host, mythtv.Options{
				Port:    c.cfg.Backend.Port,
				Timeout: c.cfg.Backend.Timeout,
			})
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			return printRecordings(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print recordings as JSON")
	return cmd
}

func listRecordings(ctx context.Context, host string, opts mythtv.Options) ([]catalog.Recording, error) {
	conn, err := mythtv.Connect(ctx, host, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()
	return conn.ListRecordings(ctx)
}

func printRecordings(w io.Writer, recs []catalog.Recording) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FILENAME\tTITLE\tCHANNEL\tSTART\tDURATION\tSIZE")
	var total int64
	for _, r := range recs {
		total += r.Size
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Filename, r.DisplayTitle(), r.Channel, r.DisplayStart(), r.HumanDuration(), r.HumanSize())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s in %s\n",
		humanize.Comma(int64(len(recs)))+" recordings", humanize.IBytes(uint64(max(total, 0))))
	return err
}
