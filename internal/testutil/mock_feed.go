// Package testutil provides testing utilities for the news feed client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Shape selects the envelope the mock server renders.
type Shape string

const (
	// ShapeCursor renders result.data.feed.{list,page_info}.
	ShapeCursor Shape = "cursor"

	// ShapeRoll renders result.data as the item array.
	ShapeRoll Shape = "roll"
)

// MockPage defines the response for one page number.
type MockPage struct {
	// Items rendered into the envelope.
	Items []map[string]any

	// TotalPage is reported in page_info (cursor only). 0 omits page_info.
	TotalPage int

	// Code is the envelope status code.
	Code int

	// StatusCode overrides the HTTP status (default 200).
	StatusCode int

	// Body replaces the rendered envelope verbatim.
	Body string

	// Headers are set on the response.
	Headers map[string]string

	// Drop closes the connection without a response.
	Drop bool

	Delay time.Duration
}

// MockFeed is a configurable mock news feed server for testing.
type MockFeed struct {
	server *httptest.Server
	shape  Shape

	mu       sync.RWMutex
	pages    map[int]MockPage
	requests []url.Values
}

// NewMockFeed creates a new mock feed server rendering the given shape.
// Pages without an explicit response return an empty item list.
func NewMockFeed(shape Shape) *MockFeed {
	mock := &MockFeed{
		shape: shape,
		pages: make(map[int]MockPage),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockFeed) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockFeed) Close() {
	m.server.Close()
}

// SetPage configures the response for a page number.
func (m *MockFeed) SetPage(page int, resp MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = resp
}

// RequestCount returns the number of requests served.
func (m *MockFeed) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// RequestedPages returns the page parameter of every request, in order.
func (m *MockFeed) RequestedPages() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pages := make([]int, 0, len(m.requests))
	for _, q := range m.requests {
		p, _ := strconv.Atoi(q.Get("page"))
		pages = append(pages, p)
	}
	return pages
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockFeed) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

func (m *MockFeed) handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))

	m.mu.Lock()
	m.requests = append(m.requests, query)
	resp, ok := m.pages[page]
	m.mu.Unlock()

	if !ok {
		resp = MockPage{}
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	if resp.Drop {
		hj, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "hijacking not supported", http.StatusInternalServerError)
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if resp.Body != "" {
		w.Write([]byte(resp.Body))
		return
	}
	w.Write(m.render(resp))
}

func (m *MockFeed) render(resp MockPage) []byte {
	items := resp.Items
	if items == nil {
		items = []map[string]any{}
	}

	var data any
	switch m.shape {
	case ShapeRoll:
		data = items
	default:
		feed := map[string]any{"list": items}
		if resp.TotalPage > 0 {
			feed["page_info"] = map[string]any{
				"totalPage": resp.TotalPage,
				"pageSize":  len(items),
				"totalNum":  resp.TotalPage * len(items),
			}
		}
		data = map[string]any{"feed": feed}
	}

	body, _ := json.Marshal(map[string]any{
		"result": map[string]any{
			"status": map[string]any{"code": resp.Code, "msg": ""},
			"data":   data,
		},
	})
	return body
}

// FeedItems builds n zhibo-style items whose rich_text is "<prefix>-<i>".
func FeedItems(prefix string, n int) []map[string]any {
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{
			"id":          1000 + i,
			"rich_text":   fmt.Sprintf("%s-%d", prefix, i),
			"create_time": "2026-10-19 09:30:00",
		}
	}
	return items
}

// RollItems builds n roll-style items whose intro is "<prefix>-<i>".
func RollItems(prefix string, n int) []map[string]any {
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{
			"docid": fmt.Sprintf("doc%d", i),
			"title": fmt.Sprintf("title %d", i),
			"intro": fmt.Sprintf("%s-%d", prefix, i),
		}
	}
	return items
}

// Texts lists the given field of items, for building expectations.
func Texts(items []map[string]any, field string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i], _ = item[field].(string)
	}
	return out
}
