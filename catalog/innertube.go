package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	ythttp "ytcomments/http"
	"ytcomments/retry"
)

const (
	// defaultBrowseURL is the internal endpoint serving channel uploads.
	defaultBrowseURL = "https://www.youtube.com/youtubei/v1/browse"

	browseClientName    = "WEB"
	browseClientVersion = "2.20240101.00.00"

	// videosTabParams selects the Videos tab of a channel.
	videosTabParams = "EgZ2aWRlb3PyBgQKAjoA"
)

// browseRequest is the JSON body for the browse endpoint.
type browseRequest struct {
	Context      browseContext `json:"context"`
	BrowseID     string        `json:"browseId,omitempty"`
	Params       string        `json:"params,omitempty"`
	Continuation string        `json:"continuation,omitempty"`
}

type browseContext struct {
	Client browseClient `json:"client"`
}

type browseClient struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	HL            string `json:"hl"`
	GL            string `json:"gl"`
}

// browseResponse is the subset of the browse endpoint's response the lister
// reads: the initial tab grid and incremental continuation batches.
type browseResponse struct {
	Contents *struct {
		TwoColumnBrowseResultsRenderer struct {
			Tabs []struct {
				TabRenderer *struct {
					Selected bool `json:"selected"`
					Content  *struct {
						RichGridRenderer *richGrid `json:"richGridRenderer"`
					} `json:"content"`
				} `json:"tabRenderer"`
			} `json:"tabs"`
		} `json:"twoColumnBrowseResultsRenderer"`
	} `json:"contents"`
	OnResponseReceivedActions []struct {
		AppendContinuationItemsAction *struct {
			ContinuationItems []gridItem `json:"continuationItems"`
		} `json:"appendContinuationItemsAction"`
	} `json:"onResponseReceivedActions"`
}

type richGrid struct {
	Contents []gridItem `json:"contents"`
}

type gridItem struct {
	RichItemRenderer *struct {
		Content struct {
			VideoRenderer *videoRenderer `json:"videoRenderer"`
		} `json:"content"`
	} `json:"richItemRenderer"`
	ContinuationItemRenderer *struct {
		ContinuationEndpoint struct {
			ContinuationCommand struct {
				Token string `json:"token"`
			} `json:"continuationCommand"`
		} `json:"continuationEndpoint"`
	} `json:"continuationItemRenderer"`
}

type videoRenderer struct {
	VideoID string `json:"videoId"`
	Title   struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
		SimpleText string `json:"simpleText"`
	} `json:"title"`
}

func (v *videoRenderer) titleText() string {
	if v.Title.SimpleText != "" {
		return v.Title.SimpleText
	}
	var parts []string
	for _, r := range v.Title.Runs {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "")
}

// InnertubeLister lists channel uploads through the web player's internal
// browse endpoint. It needs no API key or quota.
type InnertubeLister struct {
	client      *ythttp.Client
	retryConfig retry.Config

	// BrowseURL overrides the browse endpoint (for testing).
	BrowseURL string
}

// NewInnertubeLister creates a lister on top of the given HTTP client.
func NewInnertubeLister(client *ythttp.Client) *InnertubeLister {
	return &InnertubeLister{
		client:      client,
		retryConfig: retry.DefaultConfig(),
		BrowseURL:   defaultBrowseURL,
	}
}

// ListVideos fetches the full upload list of a channel, following
// continuation tokens until the grid is exhausted or MaxResults is reached.
func (l *InnertubeLister) ListVideos(ctx context.Context, channel string, opts *ListOptions) ([]VideoInfo, error) {
	channelID, err := resolveChannelID(channel)
	if err != nil {
		return nil, &ListerError{Source: "innertube", Channel: channel, Err: err}
	}

	maxResults := 0
	if opts != nil {
		maxResults = opts.MaxResults
	}

	var videos []VideoInfo
	token := ""
	for {
		if maxResults > 0 && len(videos) >= maxResults {
			return videos[:maxResults], nil
		}

		resp, err := l.browse(ctx, channelID, token)
		if err != nil {
			return nil, &ListerError{Source: "innertube", Channel: channel, Err: err}
		}

		items := gridItems(resp)
		token = ""
		for _, item := range items {
			if item.RichItemRenderer != nil {
				if vr := item.RichItemRenderer.Content.VideoRenderer; vr != nil && vr.VideoID != "" {
					videos = append(videos, VideoInfo{ID: vr.VideoID, Title: vr.titleText()})
				}
			}
			if item.ContinuationItemRenderer != nil {
				token = item.ContinuationItemRenderer.ContinuationEndpoint.ContinuationCommand.Token
			}
		}
		if token == "" {
			return videos, nil
		}
	}
}

// browse issues one request against the browse endpoint.
func (l *InnertubeLister) browse(ctx context.Context, channelID, token string) (*browseResponse, error) {
	req := browseRequest{
		Context: browseContext{Client: browseClient{
			ClientName:    browseClientName,
			ClientVersion: browseClientVersion,
			HL:            "en",
			GL:            "US",
		}},
	}
	if token != "" {
		req.Continuation = token
	} else {
		req.BrowseID = channelID
		req.Params = videosTabParams
	}

	var resp *browseResponse
	err := retry.Do(ctx, l.retryConfig, ythttp.IsRetryableDefault, func(ctx context.Context) error {
		body, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode browse request: %w", err)
		}
		httpResp, err := l.client.Do(ctx, http.MethodPost, l.BrowseURL, body, map[string]string{
			"Content-Type": "application/json",
		})
		if err != nil {
			return fmt.Errorf("browse request: %w", err)
		}
		if err := json.Unmarshal(httpResp.Body, &resp); err != nil {
			return fmt.Errorf("decode browse response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// gridItems pulls the video grid items out of either response shape.
func gridItems(resp *browseResponse) []gridItem {
	for _, action := range resp.OnResponseReceivedActions {
		if action.AppendContinuationItemsAction != nil {
			return action.AppendContinuationItemsAction.ContinuationItems
		}
	}
	if resp.Contents == nil {
		return nil
	}
	for _, tab := range resp.Contents.TwoColumnBrowseResultsRenderer.Tabs {
		tr := tab.TabRenderer
		if tr == nil || tr.Content == nil || tr.Content.RichGridRenderer == nil {
			continue
		}
		return tr.Content.RichGridRenderer.Contents
	}
	return nil
}

// resolveChannelID extracts a channel ID from a URL or bare ID. Handles
// require the Data API lister; the browse endpoint needs a real ID.
func resolveChannelID(input string) (string, error) {
	if id := channelIDRegex.FindString(input); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChannel, input)
}
