package clients

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// ErrPageNotFound is returned when the article does not exist
var ErrPageNotFound = errors.New("Page does not exist")

// Summary is the lead section of a Wikipedia article
type Summary struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	Type    string `json:"type"`
}

// Wikipedia reads article summaries from the Wikipedia REST API
type Wikipedia struct {
	base
}

// NewWikipedia creates a client for the REST API at baseURL
func NewWikipedia(baseURL string, opts ...Option) *Wikipedia {
	return &Wikipedia{base: newBase(strings.TrimRight(baseURL, "/"), opts)}
}

// TitleFromURL returns the article title at the end of a Wikipedia URL
func TitleFromURL(articleURL string) string {
	parts := strings.Split(strings.TrimRight(articleURL, "/"), "/")
	title := parts[len(parts)-1]
	if unescaped, err := url.PathUnescape(title); err == nil {
		title = unescaped
	}
	return title
}

// Summary fetches the summary of the article with the given title
func (c *Wikipedia) Summary(ctx context.Context, title string) (*Summary, error) {
	var s Summary
	err := c.getJSON(ctx, c.baseURL+"/page/summary/"+url.PathEscape(title), &s)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, ErrPageNotFound
		}
		return nil, err
	}
	if s.Type == "no-extract" && s.Extract == "" {
		return nil, ErrPageNotFound
	}
	return &s, nil
}
