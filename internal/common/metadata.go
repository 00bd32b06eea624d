package common

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// Metadata carries one outbound request through the rewrite rules.
// Request is always a private clone, never the caller's value.
type Metadata struct {
	Request *http.Request

	body     []byte
	bodyRead bool
}

func NewMetadata(req *http.Request) *Metadata {
	return &Metadata{Request: req}
}

func (m *Metadata) UpdateRequest(req *http.Request) {
	m.Request = req
}

func (m *Metadata) URL() string {
	if m.Request == nil || m.Request.URL == nil {
		return ""
	}
	return m.Request.URL.String()
}

func (m *Metadata) Path() string {
	if m.Request == nil || m.Request.URL == nil {
		return ""
	}
	return m.Request.URL.Path
}

func (m *Metadata) Host() string {
	if m.Request == nil || m.Request.URL == nil {
		return ""
	}
	return m.Request.URL.Hostname()
}

func (m *Metadata) Method() string {
	if m.Request == nil {
		return ""
	}
	if m.Request.Method == "" {
		return http.MethodGet
	}
	return m.Request.Method
}

// RequestBody drains the request body once and re-arms it so the request can
// still be sent. Subsequent calls return the buffered bytes.
func (m *Metadata) RequestBody() ([]byte, error) {
	if m.bodyRead {
		return m.body, nil
	}
	m.bodyRead = true
	if m.Request == nil || m.Request.Body == nil || m.Request.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(m.Request.Body)
	_ = m.Request.Body.Close()
	if err != nil {
		// keep whatever was read so the request still goes out with it
		m.setBody(data)
		return data, fmt.Errorf("read request body: %w", err)
	}
	m.setBody(data)
	return data, nil
}

// UpdateRequestBody replaces the outgoing body.
func (m *Metadata) UpdateRequestBody(data []byte) {
	m.bodyRead = true
	m.setBody(data)
	if m.Request != nil && m.Request.Header != nil && m.Request.Header.Get("Content-Length") != "" {
		m.Request.Header.Set("Content-Length", strconv.Itoa(len(data)))
	}
}

func (m *Metadata) setBody(data []byte) {
	m.body = data
	if m.Request == nil {
		return
	}
	m.Request.ContentLength = int64(len(data))
	if len(data) == 0 {
		m.Request.Body = http.NoBody
		m.Request.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		return
	}
	m.Request.Body = io.NopCloser(bytes.NewReader(data))
	m.Request.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func (m *Metadata) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("method", m.Method()),
		slog.String("url", m.URL()),
	)
}
