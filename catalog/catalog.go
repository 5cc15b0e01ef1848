// Package catalog lists the videos of a channel and reconciles them against
// a locally tracked catalog, reporting videos missing from either side.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"
)

// Sentinel errors for listing operations.
var (
	ErrChannelNotFound = errors.New("catalog: channel not found")
	ErrInvalidChannel  = errors.New("catalog: cannot resolve channel")
)

// channelIDRegex matches channel IDs (UC followed by 22 chars).
var channelIDRegex = regexp.MustCompile(`UC[\w-]{22}`)

// VideoInfo describes one video in a channel's upload list.
type VideoInfo struct {
	ID        string
	Title     string
	Published time.Time
}

// ListOptions configures video listing behavior.
type ListOptions struct {
	// MaxResults limits the number of videos returned. 0 means no limit.
	MaxResults int
}

// VideoLister fetches the upload list of a channel. The channel argument
// may be a channel URL, a handle (@name), or a bare channel ID.
type VideoLister interface {
	ListVideos(ctx context.Context, channel string, opts *ListOptions) ([]VideoInfo, error)
}

// ListerError wraps listing failures with context about what failed.
type ListerError struct {
	Source  string // "innertube" or "api"
	Channel string
	Err     error
}

func (e *ListerError) Error() string {
	return fmt.Sprintf("%s lister for %s: %v", e.Source, e.Channel, e.Err)
}

func (e *ListerError) Unwrap() error {
	return e.Err
}

// Report is the outcome of reconciling channel uploads against a catalog.
type Report struct {
	// Missing are uploads not present in the catalog.
	Missing []string
	// Extra are catalog entries not present in the channel uploads.
	Extra []string
}

// Reconcile compares the uploads of one or more channels with the catalog's
// video IDs. Both result lists are sorted.
func Reconcile(channelIDs, catalogIDs []string) Report {
	channel := toSet(channelIDs)
	catalog := toSet(catalogIDs)

	var report Report
	for id := range channel {
		if !catalog[id] {
			report.Missing = append(report.Missing, id)
		}
	}
	for id := range catalog {
		if !channel[id] {
			report.Extra = append(report.Extra, id)
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Extra)
	return report
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	return set
}
