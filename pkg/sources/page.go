package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// PageSignals is whatever structured data an event page exposed. Any field
// may be zero; callers treat the snippet-derived value as the fallback.
type PageSignals struct {
	Title string
	Start *time.Time
	End   *time.Time
	Place string
}

// PageScraper refines snippet-derived signals by reading the JSON-LD
// structured data block of the event page itself. Pages behind a login wall
// return no markup worth parsing; that surfaces as a nil result, not an
// error.
type PageScraper struct {
	client    *http.Client
	loc       *time.Location
	userAgent string
}

func NewPageScraper(client *http.Client, loc *time.Location, userAgent string) *PageScraper {
	if client == nil {
		client = http.DefaultClient
	}
	return &PageScraper{client: client, loc: loc, userAgent: userAgent}
}

func (p *PageScraper) Scrape(ctx context.Context, pageURL string) (*PageSignals, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	req.Header.Set("Accept-Language", "en")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page scrape: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page scrape: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("page scrape: read body: %w", err)
	}
	return p.ParseHTML(body)
}

// ParseHTML extracts event signals from raw page markup. Exposed separately
// so parsing can be exercised without a live fetch.
func (p *PageScraper) ParseHTML(body []byte) (*PageSignals, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("page scrape: parse html: %w", err)
	}

	var blocks []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && attr(n, "type") == "application/ld+json" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				blocks = append(blocks, n.FirstChild.Data)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, block := range blocks {
		if sig := p.eventFromJSONLD(block); sig != nil {
			return sig, nil
		}
	}
	return nil, nil
}

func (p *PageScraper) eventFromJSONLD(block string) *PageSignals {
	var raw interface{}
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil
	}
	for _, node := range flattenJSONLD(raw) {
		typ, _ := node["@type"].(string)
		if !strings.Contains(strings.ToLower(typ), "event") {
			continue
		}

		sig := &PageSignals{}
		sig.Title, _ = node["name"].(string)
		sig.Title = strings.TrimSpace(sig.Title)
		if s := p.parseJSONLDTime(node["startDate"]); s != nil {
			sig.Start = s
		}
		if e := p.parseJSONLDTime(node["endDate"]); e != nil {
			sig.End = e
		}
		sig.Place = placeFromJSONLD(node["location"])
		if sig.Title != "" || sig.Start != nil || sig.Place != "" {
			return sig
		}
	}
	return nil
}

// flattenJSONLD yields candidate nodes from the top-level value, an array,
// or an @graph container.
func flattenJSONLD(raw interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	switch t := raw.(type) {
	case map[string]interface{}:
		if graph, ok := t["@graph"].([]interface{}); ok {
			for _, g := range graph {
				if m, ok := g.(map[string]interface{}); ok {
					out = append(out, m)
				}
			}
		}
		out = append(out, t)
	case []interface{}:
		for _, item := range t {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func (p *PageScraper) parseJSONLDTime(v interface{}) *time.Time {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return &ts
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return &ts
		}
	}
	return nil
}

func placeFromJSONLD(v interface{}) string {
	loc, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	parts := make([]string, 0, 3)
	if name, _ := loc["name"].(string); strings.TrimSpace(name) != "" {
		parts = append(parts, strings.TrimSpace(name))
	}
	if addr, ok := loc["address"].(map[string]interface{}); ok {
		for _, key := range []string{"streetAddress", "addressLocality", "addressCountry"} {
			if s, _ := addr[key].(string); strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
	} else if addr, ok := loc["address"].(string); ok && strings.TrimSpace(addr) != "" {
		parts = append(parts, strings.TrimSpace(addr))
	}
	return strings.Join(parts, ", ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
