// Package conference issues video meeting links for events.
package conference

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// DefaultBaseURL hosts rooms on the public Jitsi Meet service.
const DefaultBaseURL = "https://meet.jit.si/"

// Generator mints one room per call under a base URL.
type Generator struct {
	base  string
	newID func() string
}

// NewGenerator validates baseURL. An empty baseURL uses DefaultBaseURL.
func NewGenerator(baseURL string) (*Generator, error) {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("conference: parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("conference: base url %q must be an absolute http(s) url", base)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("conference: base url %q must not carry a query or fragment", base)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Generator{base: base, newID: uuid.NewString}, nil
}

// MeetingLink returns a link to a fresh room.
func (g *Generator) MeetingLink() string {
	return g.base + g.newID()
}
