// SPDX-License-Identifier: MIT

package session

import (
	"context"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/ManuGH/myth2dsv/internal/encode"
	"github.com/ManuGH/myth2dsv/internal/mythtv"
)

// Backend is an open connection to the recording backend.
type Backend interface {
	Host() string
	ListRecordings(ctx context.Context) ([]catalog.Recording, error)
	FetchThumbnail(ctx context.Context, rec catalog.Recording, height int) ([]byte, error)
	StreamRecording(ctx context.Context, rec catalog.Recording) (encode.ChunkStream, error)
	Close() error
}

// Dialer opens a Backend for host.
type Dialer func(ctx context.Context, host string) (Backend, error)

// MythTVDialer dials the MythTV Services API with opts.
func MythTVDialer(opts mythtv.Options) Dialer {
	return func(ctx context.Context, host string) (Backend, error) {
		c, err := mythtv.Connect(ctx, host, opts)
		if err != nil {
			return nil, err
		}
		return mythConn{c}, nil
	}
}

type mythConn struct {
	*mythtv.Conn
}

func (m mythConn) StreamRecording(ctx context.Context, rec catalog.Recording) (encode.ChunkStream, error) {
	s, err := m.Conn.StreamRecording(ctx, rec)
	if err != nil {
		return nil, err
	}
	return s, nil
}
