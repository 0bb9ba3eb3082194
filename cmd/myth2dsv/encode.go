// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/ManuGH/myth2dsv/internal/config"
	"github.com/ManuGH/myth2dsv/internal/encode"
	"github.com/ManuGH/myth2dsv/internal/events"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var errEncodeCancelled = errors.New("encode cancelled")

func newEncodeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "encode <filename>",
		Short: "Encode one recording; interrupt once to cancel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := c.requireHost()
			if err != nil {
				return err
			}
			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)
			return runEncode(cmd.Context(), cmd.OutOrStdout(), c.cfg, host, args[0], interrupts)
		},
	}
}

// runEncode encodes filename and reports progress on out. A value on
// interrupts cancels the running job; it never starts another one.
func runEncode(ctx context.Context, out io.Writer, cfg config.Config, host, filename string, interrupts <-chan os.Signal) error {
	bus := events.NewBus()
	sub := bus.Subscribe(0)
	defer sub.Close()

	sess := newSession(cfg, bus, sessionOptions{})
	defer func() {
		_, _ = sess.RequestShutdown(context.Background(), func(context.Context) bool { return true })
	}()

	if err := sess.Refresh(ctx, host); err != nil {
		return err
	}
	if _, err := sess.StartOrCancelEncode(ctx, filename); err != nil {
		return err
	}

	idle := make(chan struct{})
	go func() {
		_ = sess.WaitEncode(context.Background())
		close(idle)
	}()

	p := progressLine{w: out}
	cancelling := false
	show := func(e events.Event) {
		if e.Kind == events.KindEncodeProgress && !cancelling {
			p.update(fmt.Sprintf("%s (%s)", e.String(), humanize.IBytes(uint64(max(e.Bytes, 0)))))
		}
	}
	for running := true; running; {
		select {
		case e := <-sub.C():
			show(e)
		case <-interrupts:
			if sess.CancelEncode() {
				cancelling = true
				p.update("cancelling after the current chunk...")
			}
		case <-idle:
			running = false
		}
	}
	drain(sub, show)
	p.done()

	sum, ok := sess.LastEncode()
	if !ok {
		return errors.New("encode ended without a result")
	}
	switch sum.Result {
	case encode.ResultFinished:
		_, _ = fmt.Fprintf(out, "wrote %s (%s in %s)\n", sum.Output, humanize.IBytes(uint64(max(sum.Bytes, 0))), sum.Elapsed.Round(time.Millisecond))
		return nil
	case encode.ResultCancelled:
		return errEncodeCancelled
	default:
		return sum.Err
	}
}

// drain hands every already queued event to fn.
func drain(sub *events.Subscription, fn func(events.Event)) {
	for {
		select {
		case e := <-sub.C():
			fn(e)
		default:
			return
		}
	}
}

// progressLine rewrites a single terminal line.
type progressLine struct {
	w     io.Writer
	dirty bool
}

func (p *progressLine) update(s string) {
	_, _ = fmt.Fprintf(p.w, "\r\033[K%s", s)
	p.dirty = true
}

func (p *progressLine) done() {
	if p.dirty {
		_, _ = fmt.Fprintln(p.w)
		p.dirty = false
	}
}
