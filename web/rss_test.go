package web

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/deemkeen/inboxd/domain"
)

func TestGetCommunityRSS(t *testing.T) {
	s, _ := newTestServer(&fakeInbox{})

	rss, err := GetCommunityRSS(context.Background(), s.Store, s.Conf, "golang")
	if err != nil {
		t.Fatalf("GetCommunityRSS failed: %v", err)
	}

	var doc struct {
		Channel struct {
			Title string `xml:"title"`
			Link  string `xml:"link"`
			Items []struct {
				Title string `xml:"title"`
				Link  string `xml:"link"`
				Guid  string `xml:"guid"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal([]byte(rss), &doc); err != nil {
		t.Fatalf("RSS is not valid XML: %v", err)
	}

	if doc.Channel.Title != "The Go Programming Language" {
		t.Errorf("Expected community title, got %q", doc.Channel.Title)
	}
	if doc.Channel.Link != "https://inboxd.example/c/golang" {
		t.Errorf("Expected community link, got %q", doc.Channel.Link)
	}
	if len(doc.Channel.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(doc.Channel.Items))
	}

	first := doc.Channel.Items[0]
	if first.Title != "Range over func" || first.Link != "https://go.dev/blog/range-functions" {
		t.Errorf("Link posts should point at their url, got %+v", first)
	}
	second := doc.Channel.Items[1]
	if second.Link != "https://lemmy.example/post/1" {
		t.Errorf("Text posts should point at their id, got %q", second.Link)
	}
}

func TestGetCommunityRSSUnknownCommunity(t *testing.T) {
	s, store := newTestServer(&fakeInbox{})

	rss, err := GetCommunityRSS(context.Background(), s.Store, s.Conf, "rust")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if rss != "" {
		t.Error("Expected empty RSS for unknown community")
	}

	store.communities["golang"].Deleted = true
	if _, err := GetCommunityRSS(context.Background(), s.Store, s.Conf, "golang"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for deleted community, got %v", err)
	}
}

func TestFeedRoute(t *testing.T) {
	s, _ := newTestServer(&fakeInbox{})
	router := s.Handler()

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/feeds/c/golang.xml", http.StatusOK},
		{"/feeds/c/golang", http.StatusNotFound},
		{"/feeds/c/rust.xml", http.StatusNotFound},
		{"/feeds/c/.xml", http.StatusNotFound},
	}

	for _, tt := range tests {
		w := get(router, tt.path)
		if w.Code != tt.wantStatus {
			t.Errorf("GET %s: expected %d, got %d", tt.path, tt.wantStatus, w.Code)
		}
		if w.Code == http.StatusOK && !strings.Contains(w.Body.String(), "Generics in practice") {
			t.Errorf("GET %s: feed missing posts", tt.path)
		}
	}
}
