package onboarding

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
)

// maxSitemapBytes bounds how much sitemap XML we are willing to read
const maxSitemapBytes = 8 << 20

// sitemapDoc matches both <urlset> and <sitemapindex> documents: in either
// case the interesting part is the nested <loc> elements.
type sitemapDoc struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// FetchSitemap downloads and parses a sitemap, returning at most maxURLs
// page URLs. For a sitemap index the child sitemap URLs are returned.
func FetchSitemap(ctx context.Context, client *http.Client, url string, maxURLs int) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if maxURLs <= 0 {
		maxURLs = 500
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sitemap request: %w", err)
	}
	req.Header.Set("User-Agent", "LamontAI-Bot/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read sitemap: %w", err)
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap XML: %w", err)
	}

	var urls []string
	for _, u := range doc.URLs {
		if u.Loc == "" {
			continue
		}
		urls = append(urls, u.Loc)
		if len(urls) >= maxURLs {
			return urls, nil
		}
	}
	for _, sm := range doc.Sitemaps {
		if sm.Loc == "" {
			continue
		}
		urls = append(urls, sm.Loc)
		if len(urls) >= maxURLs {
			break
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("sitemap contained no URLs")
	}
	return urls, nil
}
