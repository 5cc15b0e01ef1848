package catalog

import (
	"net/url"
	"regexp"
	"strings"
)

// videoIDRegex matches an 11-character video identifier.
var videoIDRegex = regexp.MustCompile(`[A-Za-z0-9_-]{11}`)

// ExtractVideoID pulls a video identifier out of the URL formats commonly
// found in catalog exports: watch URLs, embed and shorts paths, youtu.be
// short links, and bare identifiers. Returns "" when nothing matches.
func ExtractVideoID(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		host := strings.ToLower(u.Hostname())
		path := u.Path

		if strings.Contains(host, "youtube.com") {
			for _, prefix := range []string{"/embed/", "/shorts/", "/live/", "/v/"} {
				if strings.HasPrefix(path, prefix) {
					if id := pathSegment(path, prefix); id != "" {
						return id
					}
				}
			}
			if path == "/watch" {
				if id := u.Query().Get("v"); id != "" {
					return id
				}
			}
		}
		if strings.Contains(host, "youtu.be") {
			if id := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]; id != "" {
				return id
			}
		}
	}

	return videoIDRegex.FindString(raw)
}

func pathSegment(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.SplitN(rest, "/", 2)[0]
	return strings.SplitN(rest, "?", 2)[0]
}
