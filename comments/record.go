package comments

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/markusmobius/go-dateparser"
)

// Comment is one extracted comment. Field names follow the JSONL output
// format of the downloader.
type Comment struct {
	// ID is the comment identifier. Reply identifiers contain a dot
	// separating the parent identifier from the reply's own.
	ID string `json:"cid"`
	// Text is the comment body.
	Text string `json:"text"`
	// Time is the human-readable relative age, e.g. "2 hours ago".
	Time string `json:"time"`
	// TimeParsed is the approximate absolute publication time as Unix
	// seconds, derived from Time. Zero when Time could not be parsed.
	TimeParsed float64 `json:"time_parsed,omitempty"`
	// Author is the display name of the comment author.
	Author string `json:"author"`
	// Channel is the author's channel identifier.
	Channel string `json:"channel"`
	// Votes is the like count as displayed, "0" when none shown.
	Votes string `json:"votes"`
	// Replies is the reply count as displayed.
	Replies string `json:"replies"`
	// Photo is the author's avatar URL.
	Photo string `json:"photo"`
	// Heart reports whether the video owner hearted the comment.
	Heart bool `json:"heart"`
	// Reply reports whether this comment is a reply to another comment.
	Reply bool `json:"reply"`
	// AuthorURL is the author's channel URL, when resolvable.
	AuthorURL string `json:"author_url,omitempty"`
	// VideoTitle is the title of the video the comment belongs to.
	VideoTitle string `json:"video_title,omitempty"`
	// Paid carries the paid-comment chip label (e.g. a Super Thanks
	// amount) when present.
	Paid string `json:"paid,omitempty"`
}

// heartedState is the toolbar state value marking an owner-hearted comment.
const heartedState = "TOOLBAR_HEART_STATE_HEARTED"

// trailingParenRE strips a trailing parenthetical such as "(edited)" from a
// relative age string before date parsing.
var trailingParenRE = regexp.MustCompile(`^(.*?)(?:\s*\(.*\))?$`)

// parseRelativeTime converts a human-readable relative age into Unix
// seconds. Returns 0, false when the text is not parseable.
func parseRelativeTime(text string) (float64, bool) {
	cleaned := strings.TrimSpace(regexSearch(text, trailingParenRE))
	if cleaned == "" {
		return 0, false
	}
	dt, err := dateparser.Parse(nil, cleaned)
	if err != nil || dt.Time.IsZero() {
		return 0, false
	}
	return float64(dt.Time.Unix()), true
}

// normalizeVotes trims a displayed vote count, substituting "0" when the
// page shows nothing.
func normalizeVotes(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "0"
	}
	return v
}

// assembleFromEntity builds a Comment from a comment entity payload plus
// the response's side tables: toolbarStates keyed by toolbar state key, and
// paidLabels keyed by comment identifier. Returns false when the payload
// lacks an identifier or body text.
func assembleFromEntity(payload map[string]any, toolbarStates map[string]map[string]any, paidLabels map[string]string, videoTitle string) (Comment, bool) {
	properties := asMap(payload["properties"])
	author := asMap(payload["author"])
	toolbar := asMap(payload["toolbar"])

	id := strAt(properties, "commentId")
	text := strAt(asMap(properties["content"]), "content")
	if id == "" || text == "" {
		return Comment{}, false
	}

	c := Comment{
		ID:         id,
		Text:       text,
		Time:       strAt(properties, "publishedTime"),
		Author:     strAt(author, "displayName"),
		Channel:    strAt(author, "channelId"),
		Votes:      normalizeVotes(strAt(toolbar, "likeCountNotliked")),
		Replies:    strAt(toolbar, "replyCount"),
		Photo:      strAt(author, "avatarThumbnailUrl"),
		Reply:      strings.Contains(id, "."),
		VideoTitle: videoTitle,
	}

	if ts, ok := parseRelativeTime(c.Time); ok {
		c.TimeParsed = ts
	}
	if c.Channel != "" {
		c.AuthorURL = "https://www.youtube.com/channel/" + c.Channel
	}
	if state, ok := toolbarStates[strAt(properties, "toolbarStateKey")]; ok {
		c.Heart = strAt(state, "heartState") == heartedState
	}
	if label, ok := paidLabels[id]; ok {
		c.Paid = label
	}
	return c, true
}

// assembleFromRenderer builds a Comment from a legacy comment renderer.
// Returns false when the renderer lacks an identifier or body text.
func assembleFromRenderer(renderer map[string]any, videoTitle string) (Comment, bool) {
	id := strAt(renderer, "commentId")
	text := runsText(asMap(renderer["contentText"]))
	if id == "" || text == "" {
		return Comment{}, false
	}

	c := Comment{
		ID:         id,
		Text:       text,
		Time:       runsText(asMap(renderer["publishedTimeText"])),
		Author:     runsText(asMap(renderer["authorText"])),
		Votes:      normalizeVotes(runsText(asMap(renderer["voteCount"]))),
		Reply:      strings.Contains(id, "."),
		VideoTitle: videoTitle,
	}

	if ts, ok := parseRelativeTime(c.Time); ok {
		c.TimeParsed = ts
	}
	if n, ok := renderer["replyCount"].(float64); ok {
		c.Replies = fmt.Sprintf("%d", int64(n))
	}
	if endpoint := asMap(asMap(renderer["authorEndpoint"])["browseEndpoint"]); endpoint != nil {
		c.Channel = strAt(endpoint, "browseId")
		if base := strAt(endpoint, "canonicalBaseUrl"); base != "" {
			c.AuthorURL = "https://www.youtube.com" + base
		} else if c.Channel != "" {
			c.AuthorURL = "https://www.youtube.com/channel/" + c.Channel
		}
	}
	if thumbs := asSlice(asMap(renderer["authorThumbnail"])["thumbnails"]); len(thumbs) > 0 {
		c.Photo = strAt(asMap(thumbs[len(thumbs)-1]), "url")
	}
	if _, ok := firstKey(renderer["actionButtons"], "creatorHeart"); ok {
		c.Heart = true
	}
	if chip, ok := firstKey(renderer, "pdgCommentChip"); ok {
		if label, ok := firstKey(chip, "simpleText"); ok {
			c.Paid, _ = label.(string)
		}
	}
	return c, true
}
