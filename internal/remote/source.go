// Package remote provides the remote side of a sync pass: sources that report
// what changed on a provider since a saved cursor.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/openmined/deltasync/internal/delta"
)

var (
	ErrSourceNotConfigured = errors.New("remote source not configured")
	ErrNilPage             = errors.New("source returned no page")
)

// maxPages bounds Collect against sources that never finish paging.
const maxPages = 10000

// ChangesPage is one page of a remote change feed.
type ChangesPage struct {
	Entries       []delta.DeltaEntry `json:"changes"`
	NextPageToken string             `json:"next_page_token,omitempty"`
	NewCursor     string             `json:"new_cursor,omitempty"`
}

// Source reports remote changes since a cursor. An empty cursor asks for
// everything the provider knows about.
type Source interface {
	// Name identifies the provider. Cursors are stored per name.
	Name() string
	// Changes returns one page. An empty NextPageToken marks the last page.
	Changes(ctx context.Context, cursor, pageToken string) (*ChangesPage, error)
}

// Collect drains every page of src and returns the full change list together
// with the cursor of the last page. When a path appears on several pages the
// later entry replaces the earlier one.
func Collect(ctx context.Context, src Source, cursor string) ([]delta.DeltaEntry, string, error) {
	if src == nil {
		return nil, "", ErrSourceNotConfigured
	}

	var entries []delta.DeltaEntry
	index := make(map[string]int)
	pageToken := ""
	newCursor := cursor

	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, "", fmt.Errorf("collect %s: more than %d pages", src.Name(), maxPages)
		}
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		resp, err := src.Changes(ctx, cursor, pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("collect %s: %w", src.Name(), err)
		}
		if resp == nil {
			return nil, "", fmt.Errorf("collect %s: page %q: %w", src.Name(), pageToken, ErrNilPage)
		}

		for _, entry := range resp.Entries {
			if i, ok := index[entry.Path]; ok {
				entries[i] = entry
				continue
			}
			index[entry.Path] = len(entries)
			entries = append(entries, entry)
		}

		if resp.NewCursor != "" {
			newCursor = resp.NewCursor
		}
		if resp.NextPageToken == "" {
			break
		}
		if resp.NextPageToken == pageToken {
			return nil, "", fmt.Errorf("collect %s: page token %q repeated", src.Name(), pageToken)
		}
		pageToken = resp.NextPageToken
	}

	return entries, newCursor, nil
}

// NoopSource never reports remote changes.
type NoopSource struct{}

func (NoopSource) Name() string { return "none" }

func (NoopSource) Changes(context.Context, string, string) (*ChangesPage, error) {
	return &ChangesPage{}, nil
}
