package cache

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

type Header struct {
	Key   string
	Value string
}

// Entry is a stored response. Entries are treated as immutable once built.
type Entry struct {
	Key        string
	StatusCode int
	Headers    []Header
	Body       []byte
	StoredAt   time.Time
}

// EntryFromResponse copies resp into a new Entry. The response is left
// untouched and can still be delivered to the caller.
func EntryFromResponse(key string, resp *fasthttp.Response) *Entry {
	entry := &Entry{
		Key:        key,
		StatusCode: resp.StatusCode(),
		Body:       append([]byte(nil), resp.Body()...),
		StoredAt:   time.Now(),
	}

	resp.Header.VisitAll(func(k, v []byte) {
		name := string(k)
		if skipHeader(name) {
			return
		}
		entry.Headers = append(entry.Headers, Header{Key: name, Value: string(v)})
	})

	return entry
}

// CopyTo writes the entry into resp, replacing whatever resp held.
func (e *Entry) CopyTo(resp *fasthttp.Response) {
	resp.Reset()
	resp.SetStatusCode(e.StatusCode)
	for _, h := range e.Headers {
		resp.Header.Add(h.Key, h.Value)
	}
	resp.SetBody(e.Body)
}

// Response returns a fresh response built from the entry.
func (e *Entry) Response() *fasthttp.Response {
	resp := &fasthttp.Response{}
	e.CopyTo(resp)
	return resp
}

func (e *Entry) Size() int {
	return len(e.Body)
}

func skipHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "connection", "transfer-encoding", "date":
		return true
	}
	return false
}
