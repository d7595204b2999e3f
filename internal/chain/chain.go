package chain

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Response is the slice of an HTTP response that chained placeholders can
// reference. Entries live in memory only and are never persisted.
type Response struct {
	Status     string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// StatusText returns the reason phrase without the leading status code.
func (r *Response) StatusText() string {
	text := strings.TrimSpace(r.Status)
	if idx := strings.IndexByte(text, ' '); idx >= 0 {
		if _, err := strconv.Atoi(text[:idx]); err == nil {
			return strings.TrimSpace(text[idx+1:])
		}
	}
	return text
}

// Select resolves one section of the response. Section is one of body,
// headers, status or statusText (case-insensitive); path is the optional
// remainder of the reference after the section.
func (r *Response) Select(section, path string) (string, bool) {
	if r == nil {
		return "", false
	}
	switch strings.ToLower(section) {
	case "status":
		return strconv.Itoa(r.StatusCode), true
	case "statustext":
		return r.StatusText(), true
	case "headers":
		if path == "" {
			return "", false
		}
		value := r.Headers.Get(path)
		return value, value != ""
	case "body":
		if path == "" {
			return string(r.Body), true
		}
		return r.selectBodyPath(path)
	default:
		return "", false
	}
}

func (r *Response) selectBodyPath(path string) (string, bool) {
	var data any
	if err := json.Unmarshal(r.Body, &data); err != nil {
		return "", false
	}
	result, err := jmespath.Search(path, data)
	if err != nil || result == nil {
		return "", false
	}
	return formatValue(result), true
}

func formatValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// Store holds the most recent response per request name. The transport
// writes after a send completes; the resolver only reads.
type Store interface {
	Response(name string) (*Response, bool)
	Put(name string, resp *Response)
}

type MemoryStore struct {
	mu     sync.RWMutex
	byName map[string]*Response
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byName: make(map[string]*Response)}
}

func (s *MemoryStore) Response(name string) (*Response, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp, ok := s.byName[name]
	return resp, ok
}

func (s *MemoryStore) Put(name string, resp *Response) {
	name = strings.TrimSpace(name)
	if name == "" || resp == nil {
		return
	}
	s.mu.Lock()
	s.byName[name] = resp
	s.mu.Unlock()
}
