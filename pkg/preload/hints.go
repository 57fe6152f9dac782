package preload

import (
	"fmt"
	"strings"
	"sync"
)

type HintKind string

const (
	HintVideo HintKind = "video"
	HintImage HintKind = "image"
)

// Hint asks the client to start fetching URL before it is needed.
type Hint struct {
	URL         string
	As          HintKind
	CrossOrigin bool
}

func (h Hint) Link() string {
	link := fmt.Sprintf("<%s>; rel=preload; as=%s", h.URL, h.As)
	if h.CrossOrigin {
		link += "; crossorigin=anonymous"
	}
	return link
}

type HintSink interface {
	Insert(h Hint)
}

// HintSet collects hints for the lifetime of the process. Hints are never
// removed, even after the preload they belong to is retracted.
type HintSet struct {
	mu    sync.Mutex
	hints []Hint
}

func (s *HintSet) Insert(h Hint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hints = append(s.hints, h)
}

func (s *HintSet) Hints() []Hint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Hint(nil), s.hints...)
}

// LinkHeader renders the hints for urls (all hints when urls is empty) as a
// Link header value.
func (s *HintSet) LinkHeader(urls ...string) string {
	want := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		want[u] = struct{}{}
	}

	var links []string
	for _, h := range s.Hints() {
		if len(want) > 0 {
			if _, ok := want[h.URL]; !ok {
				continue
			}
		}
		links = append(links, h.Link())
	}
	return strings.Join(links, ", ")
}
