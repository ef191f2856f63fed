// Package webshare is the client for the Webshare.cz XML API: file search
// and ident-to-direct-link resolution. All endpoints are form POSTs
// authenticated with HTTP basic auth.
package webshare

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
	"github.com/brabijan/webshare-arr-connector/internal/search"
)

const (
	defaultEndpoint  = "https://webshare.cz/api"
	defaultUserAgent = "webshare-arr-connector/1.0"
	defaultCategory  = "video"
	defaultSort      = "rating"

	maxResponseBytes = 4 * 1024 * 1024
)

type Config struct {
	Endpoint  string
	Username  string
	Password  string
	Category  string
	Sort      string
	UserAgent string
	Client    *http.Client
}

type Client struct {
	client    *http.Client
	endpoint  string
	username  string
	password  string
	category  string
	sort      string
	userAgent string
}

type searchResponse struct {
	XMLName xml.Name     `xml:"response"`
	Status  string       `xml:"status"`
	Files   []searchFile `xml:"file"`
}

type searchFile struct {
	Ident         string `xml:"ident"`
	Name          string `xml:"name"`
	Size          int64  `xml:"size"`
	Type          string `xml:"type"`
	PositiveVotes int    `xml:"positive_votes"`
	NegativeVotes int    `xml:"negative_votes"`
	Password      bool   `xml:"password"`
}

type linkResponse struct {
	XMLName xml.Name `xml:"response"`
	Status  string   `xml:"status"`
	Link    string   `xml:"link"`
	Message string   `xml:"message"`
}

func NewClient(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	category := strings.TrimSpace(cfg.Category)
	if category == "" {
		category = defaultCategory
	}
	sort := strings.TrimSpace(cfg.Sort)
	if sort == "" {
		sort = defaultSort
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		client:    client,
		endpoint:  endpoint,
		username:  cfg.Username,
		password:  cfg.Password,
		category:  category,
		sort:      sort,
		userAgent: userAgent,
	}
}

func (c *Client) Name() string {
	return "webshare"
}

// Search queries /search/ and maps each file element to a raw candidate.
// Files that lack an ident or name are skipped.
func (c *Client) Search(ctx context.Context, text string, limit int) ([]domain.RawCandidate, error) {
	if limit <= 0 {
		limit = 50
	}
	form := url.Values{}
	form.Set("what", strings.TrimSpace(text))
	form.Set("category", c.category)
	form.Set("sort", c.sort)
	form.Set("limit", fmt.Sprintf("%d", limit))

	body, err := c.postForm(ctx, "/search/", form)
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("webshare: decode search response: %w", err)
	}

	candidates := make([]domain.RawCandidate, 0, len(parsed.Files))
	for _, file := range parsed.Files {
		ident := strings.TrimSpace(file.Ident)
		name := strings.TrimSpace(file.Name)
		if ident == "" || name == "" {
			continue
		}
		candidates = append(candidates, domain.RawCandidate{
			Ident:         ident,
			Name:          name,
			SizeBytes:     file.Size,
			PositiveVotes: file.PositiveVotes,
			NegativeVotes: file.NegativeVotes,
			Protected:     file.Password,
		})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}

// Resolve queries /file_link/ and returns the direct download URL for an
// ident. Idents are also accepted embedded in webshare.cz file URLs.
func (c *Client) Resolve(ctx context.Context, ident string) (string, error) {
	extracted, err := extractIdent(ident)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("ident", extracted)
	form.Set("wst", "")

	body, err := c.postForm(ctx, "/file_link/", form)
	if err != nil {
		return "", err
	}

	var parsed linkResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("webshare: decode link response: %w", err)
	}
	link := strings.TrimSpace(parsed.Link)
	if link == "" {
		if parsed.Message != "" {
			return "", fmt.Errorf("webshare: no link for ident %s: %s", extracted, parsed.Message)
		}
		return "", fmt.Errorf("webshare: no link for ident %s (status %s)", extracted, parsed.Status)
	}
	return link, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/xml")
	req.Header.Set("User-Agent", c.userAgent)
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("webshare: HTTP %d on %s: %s", resp.StatusCode, path, trimBody(body))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, search.MarkTransient(err)
		}
		return nil, err
	}
	return body, nil
}

// extractIdent accepts either a bare ident or a webshare.cz file URL,
// including SPA URLs where the path lives in the fragment.
func extractIdent(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("webshare: empty ident")
	}
	if !strings.Contains(value, "webshare.cz") {
		return value, nil
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("webshare: invalid file URL: %w", err)
	}
	path := parsed.Fragment
	if path == "" {
		path = parsed.Path
	}
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	for i, part := range parts {
		if part == "file" && i+1 < len(parts) {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("webshare: cannot extract ident from URL %s", raw)
}

func trimBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
