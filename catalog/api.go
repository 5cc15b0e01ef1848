package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ytcomments/retry"
)

// APILister lists channel uploads via the YouTube Data API v3. Unlike the
// Innertube lister it can resolve handles and custom URLs, at the cost of
// an API key and daily quota.
type APILister struct {
	service     *youtube.Service
	retryConfig retry.Config
}

// NewAPILister creates a Data API backed lister. Extra client options are
// passed through to the service constructor.
func NewAPILister(ctx context.Context, apiKey string, clientOpts ...option.ClientOption) (*APILister, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, clientOpts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &APILister{
		service:     service,
		retryConfig: retry.DefaultConfig(),
	}, nil
}

// ListVideos fetches the channel's uploads playlist page by page.
func (a *APILister) ListVideos(ctx context.Context, channel string, opts *ListOptions) ([]VideoInfo, error) {
	channelID, err := a.resolveChannelID(ctx, channel)
	if err != nil {
		return nil, &ListerError{Source: "api", Channel: channel, Err: err}
	}

	uploadsID, err := a.uploadsPlaylistID(ctx, channelID)
	if err != nil {
		return nil, &ListerError{Source: "api", Channel: channel, Err: err}
	}

	videos, err := a.listPlaylist(ctx, uploadsID, opts)
	if err != nil {
		return nil, &ListerError{Source: "api", Channel: channel, Err: err}
	}
	return videos, nil
}

// resolveChannelID converts a channel URL, handle, or bare ID to a channel
// ID, using a search call when the input is a handle.
func (a *APILister) resolveChannelID(ctx context.Context, input string) (string, error) {
	if id := channelIDRegex.FindString(input); id != "" {
		return id, nil
	}

	handle := input
	if i := strings.Index(handle, "youtube.com/"); i >= 0 {
		handle = handle[i+len("youtube.com/"):]
		handle = strings.SplitN(handle, "/", 2)[0]
		handle = strings.SplitN(handle, "?", 2)[0]
	}
	if !strings.HasPrefix(handle, "@") {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, input)
	}

	var channelID string
	err := retry.Do(ctx, a.retryConfig, apiErrorClassifier, func(ctx context.Context) error {
		resp, err := a.service.Channels.List([]string{"id"}).
			ForHandle(handle).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return ErrChannelNotFound
		}
		channelID = resp.Items[0].Id
		return nil
	})
	if err != nil {
		return "", err
	}
	return channelID, nil
}

// uploadsPlaylistID returns the channel's uploads playlist.
func (a *APILister) uploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	var playlistID string
	err := retry.Do(ctx, a.retryConfig, apiErrorClassifier, func(ctx context.Context) error {
		resp, err := a.service.Channels.List([]string{"contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return ErrChannelNotFound
		}
		playlistID = resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
		return nil
	})
	if err != nil {
		return "", err
	}
	return playlistID, nil
}

// listPlaylist pages through a playlist 50 items at a time.
func (a *APILister) listPlaylist(ctx context.Context, playlistID string, opts *ListOptions) ([]VideoInfo, error) {
	maxResults := 0
	if opts != nil {
		maxResults = opts.MaxResults
	}

	var videos []VideoInfo
	pageToken := ""
	for {
		if maxResults > 0 && len(videos) >= maxResults {
			return videos[:maxResults], nil
		}

		var resp *youtube.PlaylistItemListResponse
		err := retry.Do(ctx, a.retryConfig, apiErrorClassifier, func(ctx context.Context) error {
			var err error
			resp, err = a.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
				PlaylistId(playlistID).
				MaxResults(50).
				PageToken(pageToken).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, item := range resp.Items {
			info := VideoInfo{ID: item.ContentDetails.VideoId}
			if item.Snippet != nil {
				info.Title = item.Snippet.Title
				if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
					info.Published = t
				}
			}
			videos = append(videos, info)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return videos, nil
		}
	}
}

// apiErrorClassifier retries server-side and rate-limit failures; quota
// exhaustion and not-found are permanent.
func apiErrorClassifier(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	if errors.Is(err, ErrChannelNotFound) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	return true
}
