package webshare

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const searchXML = `<?xml version="1.0" encoding="utf-8"?>
<response>
  <status>OK</status>
  <file>
    <ident>abc123</ident>
    <name>The.Rookie.S01E05.1080p.WEB-DL.CZ.mkv</name>
    <size>2147483648</size>
    <type>video</type>
    <positive_votes>7</positive_votes>
    <negative_votes>1</negative_votes>
    <password>false</password>
  </file>
  <file>
    <ident>def456</ident>
    <name>The.Rookie.S01E05.720p.HDTV.mkv</name>
    <size>1073741824</size>
    <type>video</type>
    <positive_votes>2</positive_votes>
    <negative_votes>0</negative_votes>
    <password>true</password>
  </file>
  <file>
    <ident></ident>
    <name>broken entry</name>
  </file>
</response>`

const linkXML = `<?xml version="1.0" encoding="utf-8"?>
<response>
  <status>OK</status>
  <link>https://free.webshare.cz/download/abc123/file.mkv</link>
</response>`

const linkErrXML = `<?xml version="1.0" encoding="utf-8"?>
<response>
  <status>FATAL</status>
  <message>File not found</message>
</response>`

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(Config{
		Endpoint: server.URL,
		Username: "user",
		Password: "secret",
		Client:   server.Client(),
	})
	return client, server
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func TestSearchParsesFilesAndSkipsBrokenEntries(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "user" || pass != "secret" {
			t.Errorf("missing or wrong basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostFormValue("what"); got != "The Rookie S01E05" {
			t.Errorf("unexpected query %q", got)
		}
		if got := r.PostFormValue("category"); got != "video" {
			t.Errorf("unexpected category %q", got)
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(searchXML))
	})
	defer server.Close()

	candidates, err := client.Search(context.Background(), "The Rookie S01E05", 50)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	first := candidates[0]
	if first.Ident != "abc123" {
		t.Fatalf("unexpected ident %q", first.Ident)
	}
	if first.SizeBytes != 2147483648 {
		t.Fatalf("unexpected size %d", first.SizeBytes)
	}
	if first.PositiveVotes != 7 || first.NegativeVotes != 1 {
		t.Fatalf("unexpected votes %d/%d", first.PositiveVotes, first.NegativeVotes)
	}
	if first.Protected {
		t.Fatalf("first file is not password protected")
	}
	if !candidates[1].Protected {
		t.Fatalf("second file is password protected")
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(searchXML))
	})
	defer server.Close()

	candidates, err := client.Search(context.Background(), "The Rookie", 1)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
}

func TestSearchServerErrorIsTransient(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	defer server.Close()

	_, err := client.Search(context.Background(), "The Rookie", 10)
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !strings.Contains(err.Error(), "HTTP 503") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestSearchMalformedXML(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not xml at all"))
	})
	defer server.Close()

	if _, err := client.Search(context.Background(), "The Rookie", 10); err == nil {
		t.Fatalf("expected a decode error")
	}
}

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func TestResolveReturnsDirectLink(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file_link/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.PostFormValue("ident"); got != "abc123" {
			t.Errorf("unexpected ident %q", got)
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(linkXML))
	})
	defer server.Close()

	link, err := client.Resolve(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if link != "https://free.webshare.cz/download/abc123/file.mkv" {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestResolveMissingLinkSurfacesMessage(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(linkErrXML))
	})
	defer server.Close()

	_, err := client.Resolve(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), "File not found") {
		t.Fatalf("expected upstream message in error, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// ident extraction
// ---------------------------------------------------------------------------

func TestExtractIdentVariants(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare ident", "abc123", "abc123", false},
		{"plain file URL", "https://webshare.cz/file/abc123/movie-mkv", "abc123", false},
		{"spa fragment URL", "https://webshare.cz/#/file/abc123/movie-mkv", "abc123", false},
		{"no ident in URL", "https://webshare.cz/about", "", true},
		{"empty", "   ", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractIdent(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
