// Package comments extracts full comment threads from public video watch
// pages by driving the same continuation-token pagination the web player
// uses. A Downloader owns the HTTP session; each call to Comments returns a
// pull-based Stream of Comment records in traversal order, with replies
// interleaved directly after their parent thread's page.
package comments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ytcomments/config"
	ythttp "ytcomments/http"
	"ytcomments/retry"
)

// SortOrder selects the comment ordering requested from the platform.
type SortOrder int

const (
	// SortByPopular orders threads by the platform's "Top comments"
	// ranking.
	SortByPopular SortOrder = iota
	// SortByRecent orders threads newest first.
	SortByRecent
)

// Options controls a single extraction run.
type Options struct {
	// Sort selects the thread ordering.
	Sort SortOrder
	// Language overrides the request locale for this run. Empty keeps
	// the Downloader's configured language.
	Language string
	// Sleep is the pause between continuation requests. Zero uses the
	// configured default; negative disables the pause.
	Sleep time.Duration
	// Limit stops the stream after this many comments. Zero means
	// unlimited.
	Limit int
}

// DefaultOptions returns the options used when the caller passes none.
func DefaultOptions() Options {
	return Options{Sort: SortByRecent}
}

// ServerError is a structured error message returned by the continuation
// endpoint in place of comment data.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// ErrSetSorting is returned when the requested sort order cannot be applied
// because the page's sort menu does not offer it.
var ErrSetSorting = fmt.Errorf("failed to set sorting")

// Continuation list target identifiers for top-level comment sections.
var commentSectionTargets = map[string]bool{
	"comments-section":                         true,
	"engagement-panel-comments-section":        true,
	"shorts-engagement-panel-comments-section": true,
}

// replyTargetPrefix marks continuation lists carrying replies to one thread.
const replyTargetPrefix = "comment-replies-item"

// Downloader extracts comment threads. It is safe for concurrent use; each
// Stream it produces is not.
type Downloader struct {
	cfg    *config.Config
	client *ythttp.Client
}

// New creates a Downloader. A nil cfg uses defaults.
func New(cfg *config.Config) (*Downloader, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	session, err := ythttp.NewSession(nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	// Pre-set consent so most regions skip the interstitial entirely.
	if err := session.SetCookie(cfg.BaseURL, &http.Cookie{
		Name:   "CONSENT",
		Value:  "YES+cb",
		Domain: ".youtube.com",
		Path:   "/",
	}); err != nil {
		return nil, fmt.Errorf("set consent cookie: %w", err)
	}

	httpCfg := ythttp.DefaultConfig()
	httpCfg.Timeout = cfg.RequestTimeout
	httpCfg.UserAgent = cfg.UserAgent
	httpCfg.Retry = retry.FixedConfig(cfg.MaxRetries, cfg.RetryDelay)
	httpCfg.Classifier = ythttp.IsRetryableTimeoutOnly

	return &Downloader{
		cfg:    cfg,
		client: ythttp.New(httpCfg, session),
	}, nil
}

// Close releases the Downloader's network resources.
func (d *Downloader) Close() error {
	return d.client.Close()
}

// Comments streams the comments of a video by its identifier.
func (d *Downloader) Comments(ctx context.Context, videoID string, opts Options) *Stream {
	return d.CommentsFromURL(ctx, d.cfg.BaseURL+"/watch?v="+url.QueryEscape(videoID), opts)
}

// CommentsFromURL streams the comments of a video by its watch page URL.
func (d *Downloader) CommentsFromURL(ctx context.Context, pageURL string, opts Options) *Stream {
	sleep := opts.Sleep
	if sleep == 0 {
		sleep = d.cfg.PageDelay
	}
	lang := opts.Language
	if lang == "" {
		lang = d.cfg.Language
	}
	return &Stream{
		d:     d,
		ctx:   ctx,
		url:   pageURL,
		opts:  opts,
		sleep: sleep,
		lang:  lang,
	}
}

// Stream iterates over the comments of one video. Use it like
// bufio.Scanner: call Next until it returns false, then check Err.
type Stream struct {
	d     *Downloader
	ctx   context.Context
	url   string
	opts  Options
	sleep time.Duration
	lang  string

	cfg     clientConfig
	title   string
	queue   []any
	pending []Comment
	cur     Comment

	started bool
	fetched bool
	done    bool
	count   int
	err     error
}

// Next advances to the next comment. It returns false when the stream is
// exhausted or failed; Err distinguishes the two.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	if !s.started {
		s.started = true
		if err := s.init(); err != nil {
			s.fail(err)
			return false
		}
	}
	// Checked before refilling so reaching the limit never triggers
	// another continuation request.
	if s.opts.Limit > 0 && s.count >= s.opts.Limit {
		s.done = true
		return false
	}
	for len(s.pending) == 0 {
		if s.done || len(s.queue) == 0 {
			s.done = true
			return false
		}
		if err := s.fetchPage(); err != nil {
			s.fail(err)
			return false
		}
	}
	s.cur = s.pending[0]
	s.pending = s.pending[1:]
	s.count++
	return true
}

// Comment returns the comment produced by the last successful Next.
func (s *Stream) Comment() Comment {
	return s.cur
}

// Err returns the first error encountered by the stream, nil on normal
// exhaustion.
func (s *Stream) Err() error {
	return s.err
}

// Title returns the video title, available after the first Next call.
func (s *Stream) Title() string {
	return s.title
}

func (s *Stream) fail(err error) {
	s.done = true
	if err != nil && s.err == nil {
		s.err = err
	}
}

// init loads the watch page, resolves consent if needed, extracts the
// client configuration and initial data, checks that comments exist, and
// seeds the continuation queue with the requested sort order's endpoint.
// A nil return with an empty queue means clean end of data.
func (s *Stream) init() error {
	resp, err := s.d.client.Get(s.ctx, s.url)
	if err != nil {
		if ythttp.IsDenied(err) {
			return nil
		}
		return fmt.Errorf("load watch page: %w", err)
	}
	html := string(resp.Body)

	if strings.Contains(resp.URL, "consent") {
		resp, err = resolveConsent(s.ctx, s.d.client, s.d.cfg.ConsentURL, resp, s.url)
		if err != nil {
			return err
		}
		html = string(resp.Body)
	}

	cfg, ok := parseClientConfig(html)
	if !ok {
		// Unable to extract configuration; nothing to paginate.
		return nil
	}
	cfg.setLanguage(s.lang)
	s.cfg = cfg

	data, ok := parseInitialData(html)
	if !ok {
		return nil
	}
	s.title = extractTitle(data, html)

	// A comment section whose item section renderer holds no continuation
	// item means comments are disabled.
	sectionHasContinuation := false
	for _, sec := range collectKey(data, "itemSectionRenderer") {
		if _, ok := firstKey(sec, "continuationItemRenderer"); ok {
			sectionHasContinuation = true
			break
		}
	}
	if !sectionHasContinuation {
		return nil
	}

	endpoint, err := s.sortEndpoint(data)
	if err != nil {
		return err
	}
	if endpoint != nil {
		s.queue = []any{endpoint}
	}
	return nil
}

// sortEndpoint locates the sort menu and returns the service endpoint for
// the requested sort order. Community-post style pages carry no sort menu
// in the initial state; for those, one request against the section list's
// continuation endpoint is made and the menu looked up in that response.
func (s *Stream) sortEndpoint(data map[string]any) (any, error) {
	items := sortMenuItems(data)
	if items == nil {
		if sectionList, ok := firstKey(data, "sectionListRenderer"); ok {
			endpoints := collectKey(sectionList, "continuationEndpoint")
			if len(endpoints) > 0 {
				response, err := s.continuationRequest(endpoints[0])
				if err != nil {
					return nil, err
				}
				items = sortMenuItems(response)
			}
		}
	}

	idx := int(s.opts.Sort)
	if idx < 0 || idx >= len(items) {
		return nil, ErrSetSorting
	}
	endpoint := asMap(items[idx])["serviceEndpoint"]
	if endpoint == nil {
		return nil, ErrSetSorting
	}
	return endpoint, nil
}

// sortMenuItems returns the entries of the first sort menu found in data,
// or nil when there is none.
func sortMenuItems(data any) []any {
	menu, ok := firstKey(data, "sortFilterSubMenuRenderer")
	if !ok {
		return nil
	}
	return asSlice(asMap(menu)["subMenuItems"])
}

// fetchPage pops the most recent continuation, requests it, and folds the
// response into the queue and the pending comment buffer.
func (s *Stream) fetchPage() error {
	if s.fetched {
		if err := s.pause(); err != nil {
			return err
		}
	}
	s.fetched = true

	endpoint := s.queue[len(s.queue)-1]
	s.queue = s.queue[:len(s.queue)-1]

	response, err := s.continuationRequest(endpoint)
	if err != nil {
		return err
	}
	if response == nil {
		s.done = true
		return nil
	}

	if msg, ok := firstKey(response, "externalErrorMessage"); ok {
		text, _ := msg.(string)
		return &ServerError{Message: text}
	}

	s.foldContinuations(response)
	s.foldComments(response)
	return nil
}

// continuationRequest posts one continuation token to the platform's
// comment endpoint. A nil, nil return means the platform declined to serve
// more data and the stream should end quietly.
func (s *Stream) continuationRequest(endpoint any) (map[string]any, error) {
	meta := asMap(asMap(asMap(endpoint)["commandMetadata"])["webCommandMetadata"])
	apiPath := strAt(meta, "apiUrl")
	token := strAt(asMap(asMap(endpoint)["continuationCommand"]), "token")
	if apiPath == "" || token == "" {
		return nil, nil
	}

	body, err := json.Marshal(map[string]any{
		"context":      s.cfg.context,
		"continuation": token,
	})
	if err != nil {
		return nil, fmt.Errorf("encode continuation request: %w", err)
	}

	reqURL := s.d.cfg.BaseURL + apiPath + "?key=" + url.QueryEscape(s.cfg.apiKey)
	resp, err := s.d.client.Post(s.ctx, reqURL, body, map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		if ythttp.IsDenied(err) || ythttp.IsTimeout(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("continuation request: %w", err)
	}

	var response map[string]any
	if err := json.Unmarshal(resp.Body, &response); err != nil {
		return nil, fmt.Errorf("decode continuation response: %w", err)
	}
	return response, nil
}

// foldContinuations merges a response's continuation lists into the queue.
// Top-level section continuations are pushed to the front so the next fetch
// drains replies and page items already queued first; reply "show more"
// buttons are appended to the back.
func (s *Stream) foldContinuations(response map[string]any) {
	actions := collectKey(response, "reloadContinuationItemsCommand")
	actions = append(actions, collectKey(response, "appendContinuationItemsAction")...)

	for _, a := range actions {
		action := asMap(a)
		target := strAt(action, "targetId")

		for _, item := range asSlice(action["continuationItems"]) {
			if commentSectionTargets[target] {
				// Process the accompanying items before the next page of
				// the section itself.
				s.queue = append(collectKey(item, "continuationEndpoint"), s.queue...)
			}
			if strings.HasPrefix(target, replyTargetPrefix) {
				m := asMap(item)
				if m == nil {
					continue
				}
				if _, ok := m["continuationItemRenderer"]; !ok {
					continue
				}
				if btn, ok := firstKey(item, "buttonRenderer"); ok {
					if cmd, ok := asMap(btn)["command"]; ok {
						s.queue = append(s.queue, cmd)
					}
				}
			}
		}
	}
}

// foldComments extracts the comments carried by one response into the
// pending buffer, in the platform's display order.
func (s *Stream) foldComments(response map[string]any) {
	payloads := collectKey(response, "commentEntityPayload")
	if len(payloads) > 0 {
		toolbarStates := map[string]map[string]any{}
		for _, t := range collectKey(response, "engagementToolbarStateEntityPayload") {
			if tm := asMap(t); tm != nil {
				toolbarStates[strAt(tm, "key")] = tm
			}
		}
		paidLabels := s.paidLabels(response)

		// Traversal discovers payloads in reverse display order.
		for i := len(payloads) - 1; i >= 0; i-- {
			payload := asMap(payloads[i])
			if payload == nil {
				continue
			}
			if c, ok := assembleFromEntity(payload, toolbarStates, paidLabels, s.title); ok {
				s.pending = append(s.pending, c)
			}
		}
		return
	}

	renderers := collectKey(response, "commentRenderer")
	for i := len(renderers) - 1; i >= 0; i-- {
		renderer := asMap(renderers[i])
		if renderer == nil {
			continue
		}
		if c, ok := assembleFromRenderer(renderer, s.title); ok {
			s.pending = append(s.pending, c)
		}
	}
}

// paidLabels collects paid-comment chip labels and re-keys them from
// surface keys to comment identifiers using the response's view models.
func (s *Stream) paidLabels(response map[string]any) map[string]string {
	bySurface := map[string]string{}
	for _, p := range collectKey(response, "commentSurfaceEntityPayload") {
		pm := asMap(p)
		if pm == nil {
			continue
		}
		if _, ok := pm["pdgCommentChip"]; !ok {
			continue
		}
		label := ""
		if v, ok := firstKey(pm, "simpleText"); ok {
			label, _ = v.(string)
		}
		bySurface[strAt(pm, "key")] = label
	}
	if len(bySurface) == 0 {
		return nil
	}

	byID := map[string]string{}
	for _, vm := range collectKey(response, "commentViewModel") {
		// The view model nests one level under a key of the same name.
		inner := asMap(asMap(vm)["commentViewModel"])
		if inner == nil {
			continue
		}
		if label, ok := bySurface[strAt(inner, "commentSurfaceKey")]; ok {
			byID[strAt(inner, "commentId")] = label
		}
	}
	return byID
}

// pause sleeps between continuation requests, honoring cancellation.
func (s *Stream) pause() error {
	if s.sleep <= 0 {
		return nil
	}
	timer := time.NewTimer(s.sleep)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-timer.C:
		return nil
	}
}
