package s3

import (
	"context"
	"strings"
	"testing"
)

func TestNewPublisherValidatesOptions(t *testing.T) {
	if _, err := NewPublisher(Options{Bucket: "feeds"}, nil); err == nil {
		t.Fatal("expected endpoint error")
	}
	if _, err := NewPublisher(Options{Endpoint: "localhost:9000"}, nil); err == nil {
		t.Fatal("expected bucket error")
	}
}

func TestObjectURLUsesPublicEndpoint(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want string
	}{
		{"plain endpoint", Options{Endpoint: "localhost:9000", Bucket: "feeds"}, "http://localhost:9000/feeds/calendars/room-1.ics"},
		{"tls endpoint", Options{Endpoint: "s3.local", Bucket: "feeds", UseSSL: true}, "https://s3.local/feeds/calendars/room-1.ics"},
		{"public override", Options{Endpoint: "http://minio:9000", PublicEndpoint: "https://cdn.example.org/", Bucket: "feeds"}, "https://cdn.example.org/feeds/calendars/room-1.ics"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewPublisher(tc.opts, nil)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			if got := p.objectURL(cleanKey("/calendars/room-1.ics")); got != tc.want {
				t.Fatalf("url = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "/", "../etc/passwd", " .. "} {
		if got := cleanKey(key); got != "" {
			t.Fatalf("cleanKey(%q) = %q", key, got)
		}
	}
	if got := cleanKey("calendars//room-1/./feed.ics"); got != "calendars/room-1/feed.ics" {
		t.Fatalf("cleaned = %q", got)
	}
}

func TestUploadRejectsEmptyKey(t *testing.T) {
	p, err := NewPublisher(Options{Endpoint: "localhost:9000", Bucket: "feeds"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = p.Upload(context.Background(), "/", strings.NewReader("x"), "text/calendar")
	if err == nil || !strings.Contains(err.Error(), "key") {
		t.Fatalf("expected key error, got %v", err)
	}
}
