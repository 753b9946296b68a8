package httpserver

import (
	"net/url"
	"testing"

	"github.com/Clark-Hu/post-ratings/internal/config"
)

func TestBuildRatingFilters(t *testing.T) {
	values, _ := url.ParseQuery("limit= 50 ")
	filters, err := buildRatingFilters(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filters.Limit != 50 || filters.Cursor != nil {
		t.Fatalf("unexpected filters %+v", filters)
	}

	// cursor with a non-uuid id: {"createdAt":"2024-05-01T12:30:00Z","id":"a"}
	forged := "cursor=eyJjcmVhdGVkQXQiOiIyMDI0LTA1LTAxVDEyOjMwOjAwWiIsImlkIjoiYSJ9"
	for _, raw := range []string{"limit=abc", "limit=-1", "cursor=!!!", forged} {
		values, _ := url.ParseQuery(raw)
		if _, err := buildRatingFilters(values); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestVerifyBearer(t *testing.T) {
	srv := &Server{cfg: config.Config{AuthToken: "secret"}}
	cases := []struct {
		header  string
		allowed bool
	}{
		{"Bearer secret", true},
		{"Bearer secret ", true},
		{"Bearer other", false},
		{"Bearer ", false},
		{"secret", false},
		{"", false},
	}
	for _, c := range cases {
		if srv.verifyBearer(c.header) != c.allowed {
			t.Fatalf("verifyBearer(%q) expected %v", c.header, c.allowed)
		}
	}
}

func FuzzBuildRatingFilters(f *testing.F) {
	seeds := []string{
		"limit=20",
		"limit=abc",
		"cursor=eyJ9",
		"",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		values, err := url.ParseQuery(raw)
		if err != nil {
			return
		}
		_, _ = buildRatingFilters(values)
	})
}
