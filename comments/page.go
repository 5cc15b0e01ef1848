package comments

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// clientConfigRE pulls the first ytcfg.set({...}) blob out of a watch
	// page. The page inlines the client configuration as one JSON object.
	clientConfigRE = regexp.MustCompile(`ytcfg\.set\s*\(\s*({.+?})\s*\)\s*;`)

	// initialDataRE pulls the ytInitialData JSON object. Both assignment
	// forms appear in the wild, and the terminator varies between a
	// following var statement, a closing script tag, and a bare newline.
	initialDataRE = regexp.MustCompile(`(?s)(?:window\s*\[\s*["']ytInitialData["']\s*\]|ytInitialData)\s*=\s*({.+?})\s*;\s*(?:var\s+meta|</script|\n)`)

	// watchMetadataTitleRE matches the title attribute of the formatted
	// title element in the watch page metadata block.
	watchMetadataTitleRE = regexp.MustCompile(`(?i)<yt-formatted-string[^>]+class="[^"]*ytd-watch-metadata[^"]*"[^>]+title="([^"]+)"`)

	// metaTitleRE matches the page's title meta tag.
	metaTitleRE = regexp.MustCompile(`(?i)<meta[^>]+name="title"[^>]+content="([^"]+)"`)

	// titleTagRE matches the document title element.
	titleTagRE = regexp.MustCompile(`(?is)<title>(.*?)</title>`)
)

// regexSearch returns the first capture group of the first match of re in
// text, or "" when there is no match.
func regexSearch(text string, re *regexp.Regexp) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// clientConfig is the subset of the inlined page configuration the
// pagination engine needs to issue continuation requests.
type clientConfig struct {
	apiKey  string
	context map[string]any
}

// parseClientConfig extracts the inlined client configuration from a watch
// page. The boolean reports whether a usable configuration was found; the
// pagination engine treats a missing configuration as end of data.
func parseClientConfig(html string) (clientConfig, bool) {
	raw := regexSearch(html, clientConfigRE)
	if raw == "" {
		return clientConfig{}, false
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return clientConfig{}, false
	}
	cc := clientConfig{
		apiKey:  strAt(cfg, "INNERTUBE_API_KEY"),
		context: asMap(cfg["INNERTUBE_CONTEXT"]),
	}
	if cc.apiKey == "" || cc.context == nil {
		return clientConfig{}, false
	}
	return cc, true
}

// setLanguage overrides the request locale inside the client context.
func (c clientConfig) setLanguage(lang string) {
	if lang == "" {
		return
	}
	if client := asMap(c.context["client"]); client != nil {
		client["hl"] = lang
	}
}

// parseInitialData extracts the inlined initial data object from a watch
// page. The boolean reports whether the object was found and parsed.
func parseInitialData(html string) (map[string]any, bool) {
	raw := regexSearch(html, initialDataRE)
	if raw == "" {
		return nil, false
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, false
	}
	return data, true
}

// runsText joins the text of all runs in a formatted text node. Nodes carry
// either a runs array or a simpleText string.
func runsText(node map[string]any) string {
	if node == nil {
		return ""
	}
	if runs := asSlice(node["runs"]); runs != nil {
		parts := make([]string, 0, len(runs))
		for _, r := range runs {
			if t := strAt(asMap(r), "text"); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, " ")
	}
	return strAt(node, "simpleText")
}

// extractTitle recovers the video title, trying the structured data first
// and then progressively weaker HTML patterns. Returns "" when every
// strategy fails.
func extractTitle(data map[string]any, html string) string {
	if node, ok := firstKey(data, "videoTitle"); ok {
		switch v := node.(type) {
		case map[string]any:
			if t := runsText(v); t != "" {
				return t
			}
		case string:
			if v != "" {
				return v
			}
		}
	}
	if t := regexSearch(html, watchMetadataTitleRE); t != "" {
		return t
	}
	if t := regexSearch(html, metaTitleRE); t != "" {
		return t
	}
	if t := regexSearch(html, titleTagRE); t != "" {
		return strings.TrimSpace(strings.ReplaceAll(t, "- YouTube", ""))
	}
	return ""
}
