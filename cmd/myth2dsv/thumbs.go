// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"io"

	"github.com/ManuGH/myth2dsv/internal/config"
	"github.com/ManuGH/myth2dsv/internal/events"
	"github.com/spf13/cobra"
)

func newThumbsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "thumbs",
		Short: "Prefetch preview thumbnails for every recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			host, err := c.requireHost()
			if err != nil {
				return err
			}
			return runThumbs(cmd.Context(), cmd.OutOrStdout(), c.cfg, host)
		},
	}
}

func runThumbs(ctx context.Context, out io.Writer, cfg config.Config, host string) error {
	bus := events.NewBus()
	sub := bus.Subscribe(0)
	defer sub.Close()

	sess := newSession(cfg, bus, sessionOptions{withCache: true})
	defer func() {
		_, _ = sess.RequestShutdown(context.Background(), nil)
		_ = sess.WaitPrefetch(context.Background())
	}()

	if err := sess.Refresh(ctx, host); err != nil {
		return err
	}

	finished := make(chan error, 1)
	go func() { finished <- sess.WaitPrefetch(ctx) }()

	p := progressLine{w: out}
	show := func(e events.Event) {
		if e.Kind == events.KindThumbnailProgress {
			p.update(e.String())
		}
	}
	for {
		select {
		case e := <-sub.C():
			show(e)
		case err := <-finished:
			drain(sub, show)
			p.done()
			return err
		}
	}
}
