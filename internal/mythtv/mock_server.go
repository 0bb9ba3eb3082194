// SPDX-License-Identifier: MIT
package mythtv

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/ManuGH/myth2dsv/internal/catalog"
)

// MockServer provides a configurable MythTV Services API mock for testing.
type MockServer struct {
	*httptest.Server
	mu         sync.RWMutex
	recordings []catalog.Recording
	content    map[string][]byte
	failures   map[string]int // Number of 500s to return before succeeding, per endpoint
	hits       map[string]int
}

// NewMockServer creates a new mock backend with no recordings.
func NewMockServer() *MockServer {
	m := &MockServer{
		content:  make(map[string][]byte),
		failures: make(map[string]int),
		hits:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/Myth/GetHostName", m.handleHostName)
	mux.HandleFunc("/Dvr/GetRecordedList", m.handleRecordedList)
	mux.HandleFunc("/Content/GetPreviewImage", m.handlePreview)
	mux.HandleFunc("/Content/GetRecording", m.handleRecording)

	m.Server = httptest.NewServer(mux)
	return m
}

// Host returns the "host:port" to pass to Connect.
func (m *MockServer) Host() string {
	u, _ := url.Parse(m.URL)
	return u.Host
}

// AddRecording registers a recording and its content. If rec.Size is zero it
// is set to len(content).
func (m *MockServer) AddRecording(rec catalog.Recording, content []byte) catalog.Recording {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.RecordedID == 0 {
		rec.RecordedID = int64(len(m.recordings) + 1)
	}
	if rec.Size == 0 {
		rec.Size = int64(len(content))
	}
	m.recordings = append(m.recordings, rec)
	m.content[strconv.FormatInt(rec.RecordedID, 10)] = content
	return rec
}

// FailNext makes the next n requests to path answer 500.
func (m *MockServer) FailNext(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = n
}

// Hits returns how many requests path has received.
func (m *MockServer) Hits(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits[path]
}

func (m *MockServer) shouldFail(w http.ResponseWriter, r *http.Request) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[r.URL.Path]++
	if m.failures[r.URL.Path] > 0 {
		m.failures[r.URL.Path]--
		http.Error(w, "injected failure", http.StatusInternalServerError)
		return true
	}
	return false
}

func (m *MockServer) handleHostName(w http.ResponseWriter, r *http.Request) {
	if m.shouldFail(w, r) {
		return
	}
	writeMockJSON(w, map[string]string{"String": "mockbackend"})
}

func (m *MockServer) handleRecordedList(w http.ResponseWriter, r *http.Request) {
	if m.shouldFail(w, r) {
		return
	}
	m.mu.RLock()
	programs := make([]map[string]any, 0, len(m.recordings))
	for _, rec := range m.recordings {
		programs = append(programs, map[string]any{
			"Title":       rec.Title,
			"SubTitle":    rec.Subtitle,
			"Description": rec.Description,
			"FileName":    rec.Filename,
			"FileSize":    strconv.FormatInt(rec.Size, 10),
			"StartTime":   formatMockTime(rec),
			"EndTime":     formatMockEnd(rec),
			"Channel": map[string]any{
				"ChanId":      strconv.FormatInt(rec.ChanID, 10),
				"ChannelName": rec.Channel,
			},
			"Recording": map[string]any{
				"RecordedId": strconv.FormatInt(rec.RecordedID, 10),
			},
		})
	}
	m.mu.RUnlock()

	writeMockJSON(w, map[string]any{
		"ProgramList": map[string]any{
			"Count":          strconv.Itoa(len(programs)),
			"TotalAvailable": strconv.Itoa(len(programs)),
			"Programs":       programs,
		},
	})
}

func (m *MockServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	if m.shouldFail(w, r) {
		return
	}
	if _, ok := m.lookup(r); !ok {
		http.NotFound(w, r)
		return
	}
	height, _ := strconv.Atoi(r.URL.Query().Get("Height"))
	if height <= 0 {
		height = 64
	}
	img := image.NewRGBA(image.Rect(0, 0, height*16/9, height))
	for x := 0; x < img.Bounds().Dx(); x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (m *MockServer) handleRecording(w http.ResponseWriter, r *http.Request) {
	if m.shouldFail(w, r) {
		return
	}
	content, ok := m.lookup(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	_, _ = w.Write(content)
}

func (m *MockServer) lookup(r *http.Request) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.content[r.URL.Query().Get("RecordedId")]
	return content, ok
}

func formatMockTime(rec catalog.Recording) string {
	if rec.Start.IsZero() {
		return ""
	}
	return rec.Start.UTC().Format("2006-01-02T15:04:05Z")
}

func formatMockEnd(rec catalog.Recording) string {
	if rec.Start.IsZero() {
		return ""
	}
	return rec.Start.Add(rec.Duration).UTC().Format("2006-01-02T15:04:05Z")
}

func writeMockJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
