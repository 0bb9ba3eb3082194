// SPDX-License-Identifier: MIT

package mythtv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	xglog "github.com/ManuGH/myth2dsv/internal/log"
)

// FlexInt64 handles JSON fields that can be "123" or 123. The Services API
// serialises most integers as strings.
type FlexInt64 int64

func (v *FlexInt64) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		*v = 0
		return nil
	}
	// If it's a JSON string: "12345"
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*v = 0
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("int64: invalid string %q", s)
		}
		*v = FlexInt64(i)
		return nil
	}
	// Otherwise treat as number
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("int64: invalid json value: %s", string(b))
	}
	i, err := n.Int64()
	if err != nil {
		return fmt.Errorf("int64: not int64: %s", n.String())
	}
	*v = FlexInt64(i)
	return nil
}

// Timestamp decodes the backend's UTC timestamps; empty strings decode to zero.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: invalid value %q", s)
}

// Program is one entry of Dvr/GetRecordedList.
type Program struct {
	StartTime   Timestamp `json:"StartTime"`
	EndTime     Timestamp `json:"EndTime"`
	Title       string    `json:"Title"`
	SubTitle    string    `json:"SubTitle"`
	Description string    `json:"Description"`
	FileSize    FlexInt64 `json:"FileSize"`
	FileName    string    `json:"FileName"`
	Channel     struct {
		ChanID      FlexInt64 `json:"ChanId"`
		CallSign    string    `json:"CallSign"`
		ChannelName string    `json:"ChannelName"`
	} `json:"Channel"`
	Recording struct {
		RecordedID FlexInt64 `json:"RecordedId"`
		StartTs    Timestamp `json:"StartTs"`
		EndTs      Timestamp `json:"EndTs"`
	} `json:"Recording"`
}

// RecordedList is the response envelope of Dvr/GetRecordedList.
type RecordedList struct {
	ProgramList struct {
		Count          FlexInt64 `json:"Count"`
		TotalAvailable FlexInt64 `json:"TotalAvailable"`
		Programs       []Program `json:"Programs"`
	} `json:"ProgramList"`
}

// ToRecording maps the wire representation onto the catalog model.
func (p Program) ToRecording() catalog.Recording {
	start, end := p.Recording.StartTs.Time, p.Recording.EndTs.Time
	if start.IsZero() || end.IsZero() {
		start, end = p.StartTime.Time, p.EndTime.Time
	}
	var dur time.Duration
	if !start.IsZero() && end.After(start) {
		dur = end.Sub(start).Truncate(time.Second)
	}
	channel := strings.TrimSpace(p.Channel.ChannelName)
	if channel == "" {
		channel = strings.TrimSpace(p.Channel.CallSign)
	}
	return catalog.Recording{
		Filename:    p.FileName,
		Title:       p.Title,
		Subtitle:    p.SubTitle,
		Channel:     channel,
		Start:       start,
		Duration:    dur,
		Size:        int64(p.FileSize),
		Description: p.Description,
		RecordedID:  int64(p.Recording.RecordedID),
		ChanID:      int64(p.Channel.ChanID),
	}
}

// ListRecordings returns the backend's recordings in listing order.
func (c *Conn) ListRecordings(ctx context.Context) ([]catalog.Recording, error) {
	body, err := c.get(ctx, "/Dvr/GetRecordedList", "list_recordings")
	if err != nil {
		return nil, err
	}

	var list RecordedList
	if err := json.Unmarshal(body, &list); err != nil {
		logger := xglog.WithContext(ctx, c.logger)
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "mythtv.decode").
			Str("operation", "list_recordings").
			Msg("failed to decode recorded list")
		return nil, &Error{Sentinel: ErrQuery, Operation: "list_recordings", Err: fmt.Errorf("decode: %w", err)}
	}

	out := make([]catalog.Recording, 0, len(list.ProgramList.Programs))
	for _, p := range list.ProgramList.Programs {
		if p.FileName == "" {
			continue
		}
		out = append(out, p.ToRecording())
	}
	return out, nil
}

// recordingQuery addresses a recording by RecordedId when the backend
// provides one, else by channel and start time.
func recordingQuery(rec catalog.Recording) url.Values {
	q := url.Values{}
	if rec.RecordedID > 0 {
		q.Set("RecordedId", strconv.FormatInt(rec.RecordedID, 10))
		return q
	}
	q.Set("ChanId", strconv.FormatInt(rec.ChanID, 10))
	q.Set("StartTime", rec.Start.UTC().Format("2006-01-02T15:04:05Z"))
	return q
}
