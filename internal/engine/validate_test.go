package engine

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lazypower/newswire/internal/store"
)

func TestValidateCandidate(t *testing.T) {
	tests := []struct {
		name string
		it   store.Item
		want error
	}{
		{"url only", store.Item{URL: "https://a/b", Title: "t", SourceKind: store.SourceFeed}, nil},
		{"external id only", store.Item{ExternalID: "x:1", Title: "t", SourceKind: store.SourceSocial}, nil},
		{"both", store.Item{URL: "https://a/b", ExternalID: "x:1", Title: "t", SourceKind: store.SourceFeed}, ErrInvalidIdentity},
		{"neither", store.Item{Title: "t", SourceKind: store.SourceFeed}, ErrInvalidIdentity},
		{"blank identity", store.Item{URL: "  ", Title: "t", SourceKind: store.SourceFeed}, ErrInvalidIdentity},
		{"blank title", store.Item{URL: "https://a/b", Title: "   ", SourceKind: store.SourceFeed}, ErrEmptyContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := tt.it
			err := validateCandidate(&it)
			if !errors.Is(err, tt.want) {
				t.Errorf("validateCandidate = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateCandidateSourceKind(t *testing.T) {
	it := store.Item{URL: "https://a/b", Title: "t", SourceKind: "rss"}
	if err := validateCandidate(&it); err == nil {
		t.Error("expected error for unknown source kind")
	}
}

func TestValidateCandidateTrims(t *testing.T) {
	it := store.Item{
		URL:        " https://a/b ",
		Title:      "  " + strings.Repeat("word ", 100),
		Summary:    strings.Repeat("s", maxSummaryRunes+10),
		SourceKind: store.SourceManual,
	}
	if err := validateCandidate(&it); err != nil {
		t.Fatalf("validateCandidate: %v", err)
	}
	if it.URL != "https://a/b" {
		t.Errorf("url = %q", it.URL)
	}
	if n := utf8.RuneCountInString(it.Title); n > maxTitleRunes {
		t.Errorf("title runes = %d, want <= %d", n, maxTitleRunes)
	}
	if strings.HasSuffix(it.Title, " ") || strings.HasSuffix(it.Title, "wor") {
		t.Errorf("title not cut cleanly: %q", it.Title[len(it.Title)-10:])
	}
	if n := utf8.RuneCountInString(it.Summary); n != maxSummaryRunes {
		t.Errorf("summary runes = %d, want %d", n, maxSummaryRunes)
	}
}

func TestTruncateClean(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"the quick brown fox jumps", 18, "the quick brown"},
		{"abcdefghijklmnop", 5, "abcde"},
		{"తెలుగు వార్తలు ఈరోజు", 8, "తెలుగు"},
	}
	for _, tt := range tests {
		got := truncateClean(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("truncateClean(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncateClean(%q) produced invalid utf-8", tt.in)
		}
	}
}

func TestNormalizeTagNames(t *testing.T) {
	got := NormalizeTagNames([]any{" Cricket ", "cricket", 42, "", "  ", nil, "LINK:Budget", "link:", "IPL"})
	want := []string{"cricket", "link:budget", "ipl"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeTagNames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsLinkTag(t *testing.T) {
	tests := map[string]bool{
		"link:budget": true,
		"link:":       false,
		"budget":      false,
		"linked":      false,
	}
	for name, want := range tests {
		if got := IsLinkTag(name); got != want {
			t.Errorf("IsLinkTag(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSplitTags(t *testing.T) {
	link, ordinary := splitTags([]store.Tag{
		{ID: 1, Name: "cricket"},
		{ID: 2, Name: "link:final"},
		{ID: 3, Name: "ipl"},
	})
	if len(link) != 1 || link[0].ID != 2 {
		t.Errorf("link = %v", link)
	}
	if len(ordinary) != 2 || ordinary[0].ID != 1 || ordinary[1].ID != 3 {
		t.Errorf("ordinary = %v", ordinary)
	}
}
