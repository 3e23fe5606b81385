package aggregate

import (
	"sync"
	"time"

	"github.com/EmediongPeter/tiwi-routing-core/routing/models"
)

// SourceHealth is one quote source's rolling health view.
type SourceHealth struct {
	Calls       int64         `json:"calls"`
	Failures    int64         `json:"failures"`
	LastLatency time.Duration `json:"last_latency_ms"`
	LastError   string        `json:"last_error,omitempty"`
	LastSuccess time.Time     `json:"last_success,omitempty"`
}

type sourceStats struct {
	mu       sync.Mutex
	bySource map[string]*SourceHealth
}

func newSourceStats() *sourceStats {
	return &sourceStats{bySource: make(map[string]*SourceHealth)}
}

func (s *sourceStats) record(source string, latency time.Duration, aerr *models.AdapterError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.bySource[source]
	if !ok {
		h = &SourceHealth{}
		s.bySource[source] = h
	}
	h.Calls++
	h.LastLatency = latency
	if aerr != nil {
		h.Failures++
		h.LastError = aerr.Error()
	} else {
		h.LastError = ""
		h.LastSuccess = time.Now()
	}
}

func (s *sourceStats) snapshot() map[string]SourceHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]SourceHealth, len(s.bySource))
	for k, v := range s.bySource {
		out[k] = *v
	}
	return out
}
