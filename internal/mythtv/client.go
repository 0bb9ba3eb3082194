// SPDX-License-Identifier: MIT

// Package mythtv is a client for the MythTV backend Services API. A Conn is
// the unit of ownership: one Conn per logical session, never shared between
// goroutines that issue calls concurrently.
package mythtv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultPort is the Services API port of mythbackend.
	DefaultPort = 6544

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 16 << 20
	maxErrorBody   = 512
)

// Options tunes a connection. The zero value is usable.
type Options struct {
	Port             int           // used when host carries no port; defaults to 6544
	Timeout          time.Duration // per query request; streaming has no overall timeout
	FailureThreshold int           // consecutive failures before the breaker opens
	ResetTimeout     time.Duration // how long the breaker stays open
}

func (o Options) withDefaults() Options {
	if o.Port <= 0 {
		o.Port = DefaultPort
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.ResetTimeout <= 0 {
		o.ResetTimeout = 30 * time.Second
	}
	return o
}

// Conn is an open session against one backend host.
type Conn struct {
	host      string
	base      string
	transport *http.Transport
	query     *http.Client
	stream    *http.Client
	breaker   *CircuitBreaker
	logger    zerolog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
}

// Connect opens a session to host and performs the handshake. host may be a
// bare name ("mythbox") or carry an explicit port ("mythbox:6544").
func Connect(ctx context.Context, host string, opts Options) (*Conn, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, &Error{Sentinel: ErrConnection, Operation: "connect", Err: errors.New("empty host")}
	}
	opts = opts.withDefaults()

	// Each Conn owns its transport so sockets are never pooled across connections.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	rt := otelhttp.NewTransport(transport)

	c := &Conn{
		host:      host,
		base:      "http://" + hostPort(host, opts.Port),
		transport: transport,
		query:     &http.Client{Transport: rt, Timeout: opts.Timeout},
		stream:    &http.Client{Transport: rt},
		breaker:   NewCircuitBreaker("mythtv", opts.FailureThreshold, opts.ResetTimeout),
	}
	c.logger = xglog.WithComponent("mythtv").With().Str(xglog.FieldHost, host).Logger()

	var hello struct {
		String string `json:"String"`
	}
	body, err := c.get(ctx, "/Myth/GetHostName", "handshake")
	if err == nil {
		err = json.Unmarshal(body, &hello)
	}
	if err != nil {
		c.transport.CloseIdleConnections()
		return nil, &Error{Sentinel: ErrConnection, Operation: "connect", Err: err}
	}

	metrics.BackendConnections.Inc()
	c.logger.Info().
		Str(xglog.FieldEvent, "mythtv.connected").
		Str(xglog.FieldBaseURL, c.base).
		Str("backend_hostname", hello.String).
		Msg("connected to backend")
	return c, nil
}

// Host returns the host the connection was opened against.
func (c *Conn) Host() string {
	return c.host
}

// Close releases the connection. It is safe to call more than once; only
// the first call releases anything.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.transport.CloseIdleConnections()
		metrics.BackendConnections.Dec()
		c.logger.Debug().Str(xglog.FieldEvent, "mythtv.closed").Msg("backend connection closed")
	})
	return nil
}

// get performs a bounded GET through the circuit breaker and returns the body.
func (c *Conn) get(ctx context.Context, path, operation string) ([]byte, error) {
	if c.closed.Load() {
		return nil, &Error{Sentinel: ErrClosed, Operation: operation}
	}

	var body []byte
	var reqErr error
	err := c.breaker.Execute(func() error {
		body, reqErr = c.do(ctx, path, operation)
		if countsAsFailure(reqErr) {
			return reqErr
		}
		return nil
	})
	metrics.IncBackendRequest(operation, firstErr(err, reqErr))
	if errors.Is(err, ErrCircuitOpen) {
		return nil, &Error{Sentinel: ErrQuery, Operation: operation, Err: ErrCircuitOpen}
	}
	if reqErr != nil {
		return nil, reqErr
	}
	return body, nil
}

func (c *Conn) do(ctx context.Context, path, operation string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, &Error{Sentinel: ErrQuery, Operation: operation, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.query.Do(req)
	if err != nil {
		return nil, &Error{Sentinel: ErrQuery, Operation: operation, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &Error{
			Sentinel:  ErrQuery,
			Operation: operation,
			Status:    res.StatusCode,
			Body:      strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Sentinel: ErrQuery, Operation: operation, Err: err}
	}
	return body, nil
}

// countsAsFailure reports whether err says something about backend health.
// A 404 for one recording's preview does not.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) && e.Status > 0 && e.Status < http.StatusInternalServerError {
		return false
	}
	return true
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func hostPort(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	if strings.Count(host, ":") > 1 && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(port)
}

// String implements fmt.Stringer for log fields.
func (c *Conn) String() string {
	return fmt.Sprintf("mythtv(%s)", c.base)
}
