package comments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ytcomments/config"
)

func endpointJSON(token string) string {
	return fmt.Sprintf(`{"commandMetadata":{"webCommandMetadata":{"apiUrl":"/youtubei/v1/next"}},"continuationCommand":{"token":%q}}`, token)
}

func watchPage(initialData string) string {
	return `<html><head><title>Engine Test - YouTube</title></head><body>` +
		`<script>ytcfg.set({"INNERTUBE_API_KEY":"engine-key","INNERTUBE_CONTEXT":{"client":{"hl":"en"}}});</script>` +
		"\n<script>var ytInitialData = " + initialData + ";\n</script></body></html>"
}

// enabledInitialData is a minimal initial state with comments enabled and a
// two-option sort menu.
func enabledInitialData() string {
	return fmt.Sprintf(`{
		"contents": {
			"videoTitle": {"simpleText": "Engine Test"},
			"itemSectionRenderer": {"contents": [{"continuationItemRenderer": {}}]},
			"sortFilterSubMenuRenderer": {"subMenuItems": [
				{"title": "Top comments", "serviceEndpoint": %s},
				{"title": "Newest first", "serviceEndpoint": %s}
			]}
		}
	}`, endpointJSON("sort-top"), endpointJSON("sort-new"))
}

type engineServer struct {
	*httptest.Server

	mu     sync.Mutex
	tokens []string
}

// requestedTokens returns the continuation tokens the engine requested, in
// order.
func (s *engineServer) requestedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

func newEngineServer(t *testing.T, initialData string, responses map[string]string) *engineServer {
	t.Helper()
	srv := &engineServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, watchPage(initialData))
	})
	mux.HandleFunc("/youtubei/v1/next", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "engine-key" {
			http.Error(w, "missing api key", http.StatusBadRequest)
			return
		}
		var req struct {
			Continuation string `json:"continuation"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		srv.mu.Lock()
		srv.tokens = append(srv.tokens, req.Continuation)
		srv.mu.Unlock()

		body, ok := responses[req.Continuation]
		if !ok {
			http.Error(w, "unknown continuation", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	srv.Server = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestDownloader(t *testing.T, srv *engineServer) *Downloader {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.ConsentURL = srv.URL + "/consent/save"
	cfg.PageDelay = -1
	cfg.MaxRetries = 0
	cfg.RetryDelay = time.Millisecond
	cfg.RequestTimeout = 5 * time.Second

	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func collectStream(t *testing.T, s *Stream) []Comment {
	t.Helper()
	var out []Comment
	for s.Next() {
		out = append(out, s.Comment())
	}
	return out
}

func TestStreamTwoPages(t *testing.T) {
	page1 := fmt.Sprintf(`{
		"onResponseReceivedEndpoints": [
			{"reloadContinuationItemsCommand": {
				"targetId": "comments-section",
				"continuationItems": [
					{"commentThreadRenderer": {"rendered": true}},
					{"continuationItemRenderer": {"continuationEndpoint": %s}}
				]
			}},
			{"reloadContinuationItemsCommand": {
				"targetId": "comment-replies-item-c1",
				"continuationItems": [
					{"continuationItemRenderer": {"button": {"buttonRenderer": {"command": %s}}}}
				]
			}}
		],
		"viewModels": [
			{"commentViewModel": {"commentViewModel": {"commentId": "c1", "commentSurfaceKey": "surf1"}}}
		],
		"frameworkUpdates": {"entityBatchUpdate": {"mutations": [
			{"payload": {"commentEntityPayload": {
				"properties": {"commentId": "c1", "content": {"content": "first comment"}, "publishedTime": "2 hours ago", "toolbarStateKey": "tsk1"},
				"author": {"displayName": "Alice", "channelId": "UC1", "avatarThumbnailUrl": "https://img/1"},
				"toolbar": {"likeCountNotliked": "5", "replyCount": "1"}
			}}},
			{"payload": {"commentEntityPayload": {
				"properties": {"commentId": "c2", "content": {"content": "second comment"}, "publishedTime": "3 hours ago"},
				"author": {"displayName": "Bob", "channelId": "UC2", "avatarThumbnailUrl": "https://img/2"},
				"toolbar": {"likeCountNotliked": "", "replyCount": ""}
			}}},
			{"payload": {"engagementToolbarStateEntityPayload": {"key": "tsk1", "heartState": "TOOLBAR_HEART_STATE_HEARTED"}}},
			{"payload": {"commentSurfaceEntityPayload": {"key": "surf1", "pdgCommentChip": {"chipText": {"simpleText": "Thanks $2.00"}}}}}
		]}}
	}`, endpointJSON("page2"), endpointJSON("replies1"))

	replies1 := `{
		"frameworkUpdates": {"entityBatchUpdate": {"mutations": [
			{"payload": {"commentEntityPayload": {
				"properties": {"commentId": "c1.r1", "content": {"content": "a reply"}, "publishedTime": "1 hour ago"},
				"author": {"displayName": "Carol", "channelId": "UC3", "avatarThumbnailUrl": "https://img/3"},
				"toolbar": {"likeCountNotliked": "1", "replyCount": ""}
			}}}
		]}}
	}`

	srv := newEngineServer(t, enabledInitialData(), map[string]string{
		"sort-new": page1,
		"replies1": replies1,
		"page2":    `{"noNewData": true}`,
	})
	d := newTestDownloader(t, srv)

	stream := d.Comments(context.Background(), "vid123", Options{Sort: SortByRecent})
	got := collectStream(t, stream)
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d records, want 3: %+v", len(got), got)
	}
	wantIDs := []string{"c1", "c2", "c1.r1"}
	for i, want := range wantIDs {
		if got[i].ID != want {
			t.Errorf("record %d id = %q, want %q", i, got[i].ID, want)
		}
	}

	// The reply continuation drains before the second top-level page.
	tokens := srv.requestedTokens()
	wantTokens := []string{"sort-new", "replies1", "page2"}
	if len(tokens) != len(wantTokens) {
		t.Fatalf("requested tokens %v, want %v", tokens, wantTokens)
	}
	for i := range wantTokens {
		if tokens[i] != wantTokens[i] {
			t.Fatalf("requested tokens %v, want %v", tokens, wantTokens)
		}
	}

	c1 := got[0]
	if !c1.Heart {
		t.Error("c1 should be hearted via its toolbar state")
	}
	if c1.Paid != "Thanks $2.00" {
		t.Errorf("c1.Paid = %q", c1.Paid)
	}
	if c1.Replies != "1" {
		t.Errorf("c1.Replies = %q", c1.Replies)
	}
	if got[1].Votes != "0" {
		t.Errorf("c2 blank votes = %q, want %q", got[1].Votes, "0")
	}
	if !got[2].Reply {
		t.Error("c1.r1 should be flagged as a reply")
	}
	if stream.Title() != "Engine Test" {
		t.Errorf("Title = %q", stream.Title())
	}
	for _, c := range got {
		if c.VideoTitle != "Engine Test" {
			t.Errorf("record %s VideoTitle = %q", c.ID, c.VideoTitle)
		}
	}
}

func TestStreamCommentsDisabled(t *testing.T) {
	initialData := `{"contents": {"itemSectionRenderer": {"contents": [{"messageRenderer": {"text": "Comments are turned off"}}]}}}`
	srv := newEngineServer(t, initialData, nil)
	d := newTestDownloader(t, srv)

	stream := d.Comments(context.Background(), "vid123", DefaultOptions())
	if got := collectStream(t, stream); len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
	if err := stream.Err(); err != nil {
		t.Errorf("disabled comments should not error, got %v", err)
	}
	if tokens := srv.requestedTokens(); len(tokens) != 0 {
		t.Errorf("no continuation should be requested, got %v", tokens)
	}
}

func TestStreamSortIndexOutOfRange(t *testing.T) {
	srv := newEngineServer(t, enabledInitialData(), nil)
	d := newTestDownloader(t, srv)

	stream := d.Comments(context.Background(), "vid123", Options{Sort: SortOrder(5)})
	if stream.Next() {
		t.Error("expected no records")
	}
	if !errors.Is(stream.Err(), ErrSetSorting) {
		t.Errorf("err = %v, want ErrSetSorting", stream.Err())
	}
}

// postInitialData is an initial state without a sort menu, as served for
// community posts: the menu only appears in the section list's
// continuation response.
func postInitialData() string {
	return fmt.Sprintf(`{
		"contents": {
			"videoTitle": {"simpleText": "Engine Test"},
			"itemSectionRenderer": {"contents": [{"continuationItemRenderer": {}}]},
			"sectionListRenderer": {"contents": [
				{"continuationItemRenderer": {"continuationEndpoint": %s}}
			]}
		}
	}`, endpointJSON("section-cont"))
}

func TestStreamSortMenuFromSectionContinuation(t *testing.T) {
	menuPage := fmt.Sprintf(`{
		"sortFilterSubMenuRenderer": {"subMenuItems": [
			{"title": "Top comments", "serviceEndpoint": %s},
			{"title": "Newest first", "serviceEndpoint": %s}
		]}
	}`, endpointJSON("sort-top"), endpointJSON("sort-new"))
	page := `{
		"frameworkUpdates": {"entityBatchUpdate": {"mutations": [
			{"payload": {"commentEntityPayload": {
				"properties": {"commentId": "p1", "content": {"content": "post comment"}},
				"author": {"displayName": "A"}, "toolbar": {}
			}}}
		]}}
	}`
	srv := newEngineServer(t, postInitialData(), map[string]string{
		"section-cont": menuPage,
		"sort-new":     page,
	})
	d := newTestDownloader(t, srv)

	stream := d.Comments(context.Background(), "vid123", Options{Sort: SortByRecent})
	got := collectStream(t, stream)
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("got %+v, want p1", got)
	}

	// Exactly one extra request resolves the menu before pagination starts.
	tokens := srv.requestedTokens()
	wantTokens := []string{"section-cont", "sort-new"}
	if len(tokens) != len(wantTokens) {
		t.Fatalf("requested tokens %v, want %v", tokens, wantTokens)
	}
	for i := range wantTokens {
		if tokens[i] != wantTokens[i] {
			t.Fatalf("requested tokens %v, want %v", tokens, wantTokens)
		}
	}
}

func TestStreamSortMenuUnavailable(t *testing.T) {
	srv := newEngineServer(t, postInitialData(), map[string]string{
		"section-cont": `{"stillNoMenu": true}`,
	})
	d := newTestDownloader(t, srv)

	stream := d.Comments(context.Background(), "vid123", Options{Sort: SortByRecent})
	if stream.Next() {
		t.Error("expected no records")
	}
	if !errors.Is(stream.Err(), ErrSetSorting) {
		t.Errorf("err = %v, want ErrSetSorting", stream.Err())
	}
	if tokens := srv.requestedTokens(); len(tokens) != 1 || tokens[0] != "section-cont" {
		t.Errorf("requested tokens %v, want just section-cont", tokens)
	}
}

func TestStreamServerError(t *testing.T) {
	srv := newEngineServer(t, enabledInitialData(), map[string]string{
		"sort-new": `{"error": {"externalErrorMessage": "Comments are unavailable right now"}}`,
	})
	d := newTestDownloader(t, srv)

	stream := d.Comments(context.Background(), "vid123", Options{Sort: SortByRecent})
	if stream.Next() {
		t.Error("expected no records")
	}
	var serverErr *ServerError
	if !errors.As(stream.Err(), &serverErr) {
		t.Fatalf("err = %v, want *ServerError", stream.Err())
	}
	if serverErr.Message != "Comments are unavailable right now" {
		t.Errorf("Message = %q", serverErr.Message)
	}
}

func TestStreamLegacyRenderers(t *testing.T) {
	page := `{
		"onResponseReceivedEndpoints": [
			{"reloadContinuationItemsCommand": {
				"targetId": "comments-section",
				"continuationItems": [
					{"commentThreadRenderer": {"comment": {"commentRenderer": {
						"commentId": "L1",
						"contentText": {"simpleText": "legacy text"},
						"authorText": {"simpleText": "Dave"},
						"publishedTimeText": {"runs": [{"text": "2 days ago"}]},
						"voteCount": {"simpleText": "4"}
					}}}}
				]
			}}
		]
	}`
	srv := newEngineServer(t, enabledInitialData(), map[string]string{"sort-new": page})
	d := newTestDownloader(t, srv)

	stream := d.Comments(context.Background(), "vid123", Options{Sort: SortByRecent})
	got := collectStream(t, stream)
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].ID != "L1" || got[0].Author != "Dave" || got[0].Votes != "4" {
		t.Errorf("record = %+v", got[0])
	}
}

func TestStreamLimit(t *testing.T) {
	page := `{
		"frameworkUpdates": {"entityBatchUpdate": {"mutations": [
			{"payload": {"commentEntityPayload": {
				"properties": {"commentId": "c1", "content": {"content": "one"}},
				"author": {"displayName": "A"}, "toolbar": {}
			}}},
			{"payload": {"commentEntityPayload": {
				"properties": {"commentId": "c2", "content": {"content": "two"}},
				"author": {"displayName": "B"}, "toolbar": {}
			}}}
		]}}
	}`
	srv := newEngineServer(t, enabledInitialData(), map[string]string{"sort-new": page})
	d := newTestDownloader(t, srv)

	stream := d.Comments(context.Background(), "vid123", Options{Sort: SortByRecent, Limit: 1})
	got := collectStream(t, stream)
	if len(got) != 1 || got[0].ID != "c1" {
		t.Errorf("got %+v, want just c1", got)
	}
	if err := stream.Err(); err != nil {
		t.Errorf("limit stop should not error, got %v", err)
	}
}

func TestStreamLimitStopsFetching(t *testing.T) {
	page1 := fmt.Sprintf(`{
		"onResponseReceivedEndpoints": [
			{"reloadContinuationItemsCommand": {
				"targetId": "comments-section",
				"continuationItems": [
					{"continuationItemRenderer": {"continuationEndpoint": %s}}
				]
			}}
		],
		"frameworkUpdates": {"entityBatchUpdate": {"mutations": [
			{"payload": {"commentEntityPayload": {
				"properties": {"commentId": "c1", "content": {"content": "one"}},
				"author": {"displayName": "A"}, "toolbar": {}
			}}}
		]}}
	}`, endpointJSON("page2"))
	srv := newEngineServer(t, enabledInitialData(), map[string]string{
		"sort-new": page1,
		"page2":    `{"noNewData": true}`,
	})
	d := newTestDownloader(t, srv)

	stream := d.Comments(context.Background(), "vid123", Options{Sort: SortByRecent, Limit: 1})
	got := collectStream(t, stream)
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("got %+v, want just c1", got)
	}
	if err := stream.Err(); err != nil {
		t.Errorf("limit stop should not error, got %v", err)
	}

	// The queued second page must not be requested once the limit is hit.
	if tokens := srv.requestedTokens(); len(tokens) != 1 || tokens[0] != "sort-new" {
		t.Errorf("requested tokens %v, want just sort-new", tokens)
	}
}

func TestStreamConsentFlow(t *testing.T) {
	srv := &engineServer{}
	responses := map[string]string{
		"sort-new": `{
			"frameworkUpdates": {"entityBatchUpdate": {"mutations": [
				{"payload": {"commentEntityPayload": {
					"properties": {"commentId": "c1", "content": {"content": "after consent"}},
					"author": {"displayName": "A"}, "toolbar": {}
				}}}
			]}}
		}`,
	}

	var savedForm map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/consent/page?continue="+r.URL.Query().Get("v"), http.StatusFound)
	})
	mux.HandleFunc("/consent/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form>`+
			`<input type="hidden" name="gl" value="DE">`+
			`<input type="hidden" name="pc" value="yt">`+
			`</form></body></html>`)
	})
	mux.HandleFunc("/consent/save", func(w http.ResponseWriter, r *http.Request) {
		savedForm = map[string]string{}
		for k, v := range r.URL.Query() {
			savedForm[k] = v[0]
		}
		fmt.Fprint(w, watchPage(enabledInitialData()))
	})
	mux.HandleFunc("/youtubei/v1/next", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Continuation string `json:"continuation"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprint(w, responses[req.Continuation])
	})
	srv.Server = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d := newTestDownloader(t, srv)
	stream := d.Comments(context.Background(), "vid123", Options{Sort: SortByRecent})
	got := collectStream(t, stream)
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("got %+v, want c1", got)
	}

	if savedForm == nil {
		t.Fatal("consent save endpoint was never called")
	}
	for key, want := range map[string]string{
		"gl":       "DE",
		"pc":       "yt",
		"set_eom":  "false",
		"set_ytc":  "true",
		"set_apyt": "true",
	} {
		if savedForm[key] != want {
			t.Errorf("consent form %s = %q, want %q", key, savedForm[key], want)
		}
	}
	if savedForm["continue"] == "" {
		t.Error("consent form should carry the original URL in continue")
	}
}

func TestStreamMissingClientConfig(t *testing.T) {
	srv := &engineServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>nothing inlined</body></html>")
	})
	srv.Server = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d := newTestDownloader(t, srv)
	stream := d.Comments(context.Background(), "vid123", DefaultOptions())
	if stream.Next() {
		t.Error("expected no records")
	}
	if err := stream.Err(); err != nil {
		t.Errorf("missing config should end quietly, got %v", err)
	}
}

func TestStreamCanceledContext(t *testing.T) {
	srv := newEngineServer(t, enabledInitialData(), nil)
	d := newTestDownloader(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stream := d.Comments(ctx, "vid123", DefaultOptions())
	if stream.Next() {
		t.Error("expected no records on canceled context")
	}
	if stream.Err() == nil {
		t.Error("expected an error from the canceled context")
	}
}
