package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lazypower/newswire/internal/store"
)

var (
	// ErrInvalidIdentity rejects candidates without exactly one of URL and
	// external ID.
	ErrInvalidIdentity = errors.New("item needs exactly one of url or external id")
	// ErrEmptyContent rejects candidates with nothing to show.
	ErrEmptyContent = errors.New("item has no title or text")
)

// Content size limits, in runes.
const (
	maxTitleRunes   = 300
	maxSummaryRunes = 2000
	maxBodyRunes    = 50000
	fallbackTitle   = 50
)

// validateCandidate checks a candidate item for obvious garbage and trims
// oversized fields in place.
func validateCandidate(it *store.Item) error {
	it.URL = strings.TrimSpace(it.URL)
	it.ExternalID = strings.TrimSpace(it.ExternalID)
	if (it.URL == "") == (it.ExternalID == "") {
		return ErrInvalidIdentity
	}
	if !it.SourceKind.Valid() {
		return fmt.Errorf("invalid source kind %q", it.SourceKind)
	}

	it.Title = strings.TrimSpace(it.Title)
	it.Summary = strings.TrimSpace(it.Summary)
	it.Body = strings.TrimSpace(it.Body)
	if it.Title == "" {
		return ErrEmptyContent
	}

	it.Title = truncateClean(it.Title, maxTitleRunes)
	it.Summary = truncateClean(it.Summary, maxSummaryRunes)
	it.Body = truncateClean(it.Body, maxBodyRunes)
	return nil
}

// truncateClean truncates s to at most maxRunes runes, cutting at the last
// word boundary when one is reasonably close to the limit.
func truncateClean(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}

	runes := []rune(s)
	truncated := runes[:maxRunes]
	cut := -1
	for i := len(truncated) - 1; i >= 0 && i > maxRunes*2/3; i-- {
		if unicode.IsSpace(truncated[i]) {
			cut = i
			break
		}
	}
	if cut > 0 {
		truncated = truncated[:cut]
	}
	return strings.TrimSpace(string(truncated))
}
