// Package pyload is the client for the pyLoad download manager JSON API.
// The connector only needs addPackage: handing a set of direct links to
// pyLoad as one named package queued for immediate download.
package pyload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/brabijan/webshare-arr-connector/internal/search"
)

const (
	defaultUserAgent = "webshare-arr-connector/1.0"

	// destQueue queues the package for immediate download instead of
	// parking it in the collector.
	destQueue = 1

	maxResponseBytes = 64 * 1024
)

// ErrUnauthorized is returned on HTTP 401 so callers can distinguish bad
// credentials from transient upstream trouble.
var ErrUnauthorized = errors.New("pyload: authentication failed")

type Config struct {
	BaseURL   string
	Username  string
	Password  string
	UserAgent string
	Client    *http.Client
}

type Client struct {
	client    *http.Client
	baseURL   string
	username  string
	password  string
	userAgent string
}

type addPackageRequest struct {
	Name  string   `json:"name"`
	Links []string `json:"links"`
	Dest  int      `json:"dest"`
}

func NewClient(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		client:    client,
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		username:  cfg.Username,
		password:  cfg.Password,
		userAgent: userAgent,
	}
}

// Push adds the links to pyLoad as a single package and returns the package
// id assigned by pyLoad.
func (c *Client) Push(ctx context.Context, links []string, packageName string) (string, error) {
	if len(links) == 0 {
		return "", errors.New("pyload: no links to push")
	}
	if strings.TrimSpace(packageName) == "" {
		packageName = "Webshare Download"
	}

	payload, err := json.Marshal(addPackageRequest{
		Name:  packageName,
		Links: links,
		Dest:  destQueue,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/addPackage", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		packageID := strings.Trim(strings.TrimSpace(string(body)), `"`)
		if packageID == "" {
			return "", errors.New("pyload: empty package id in response")
		}
		return packageID, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return "", ErrUnauthorized
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", search.MarkTransient(fmt.Errorf("pyload: HTTP %d: %s", resp.StatusCode, trimBody(body)))
	default:
		return "", fmt.Errorf("pyload: HTTP %d: %s", resp.StatusCode, trimBody(body))
	}
}

func trimBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
