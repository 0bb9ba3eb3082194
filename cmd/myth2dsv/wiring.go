// SPDX-License-Identifier: MIT

package main

import (
	"github.com/ManuGH/myth2dsv/internal/config"
	"github.com/ManuGH/myth2dsv/internal/encode"
	"github.com/ManuGH/myth2dsv/internal/events"
	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/mythtv"
	"github.com/ManuGH/myth2dsv/internal/session"
	"github.com/ManuGH/myth2dsv/internal/thumbcache"
)

// sessionOptions tweaks a session built from configuration.
type sessionOptions struct {
	withCache bool
}

func newSession(cfg config.Config, pub events.Publisher, opts sessionOptions) *session.Session {
	var cache *thumbcache.Cache
	if opts.withCache {
		cache = thumbcache.New(cfg.Thumbnails.Dir, cfg.Thumbnails.Prefix, thumbcache.WithHeight(cfg.Thumbnails.Height))
	}
	return session.New(session.Config{
		Dial: session.MythTVDialer(mythtv.Options{
			Port:    cfg.Backend.Port,
			Timeout: cfg.Backend.Timeout,
		}),
		Launcher: &encode.ExecLauncher{
			Dir:    cfg.Encoder.Dir,
			Binary: cfg.Encoder.Binary,
			Args:   cfg.Encoder.Args,
			Logger: xglog.WithComponent("encoder"),
		},
		Cache:         cache,
		Publisher:     pub,
		OutputDir:     cfg.Encoder.OutputDir,
		Extension:     cfg.Encoder.Extension,
		ThumbHeight:   cfg.Thumbnails.Height,
		FetchRate:     cfg.Thumbnails.FetchRate,
		ShutdownGrace: cfg.Encoder.ShutdownGrace,
		ReapOrphans:   cfg.Encoder.ReapOrphans,
	})
}
