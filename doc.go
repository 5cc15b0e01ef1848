// Package ytcomments downloads YouTube comment threads without the Data API.
//
// It drives the same internal endpoints the YouTube web player uses:
// the watch page is fetched once to pick up the client configuration and
// the initial comment section, then comments are paged through
// continuation requests until the thread is exhausted.
//
// Overview
//
// The comments package is the core of the module:
//
//   - comments.Downloader: Fetches comment threads for a video
//   - comments.Stream: Pull-based iterator over downloaded comments
//   - jobs.Runner: Batch download driven by a catalog CSV
//   - catalog: Channel upload listing and catalog reconciliation
//
// Quick Start
//
// Stream all comments for a video, newest first:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	dl, err := comments.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dl.Close()
//
//	stream := dl.Comments(ctx, "dQw4w9WgXcQ", comments.DefaultOptions())
//	for stream.Next() {
//		fmt.Println(stream.Comment().Text)
//	}
//	if err := stream.Err(); err != nil {
//		log.Fatal(err)
//	}
//
// Comments arrive as they are fetched; the stream issues further
// continuation requests lazily as it is drained. Use Options to pick the
// sort order, cap the number of comments, set a request locale, or tune
// the pause between continuation requests.
//
// Configuration
//
// Settings load from multiple sources, highest priority first:
//
//   1. Environment variables
//   2. Config file (ytcomments.json or ~/.config/ytcomments/ytcomments.json)
//   3. Default values
//
// Environment variables:
//
//   - YTC_USER_AGENT: Browser user agent for page requests
//   - YTC_REQUEST_TIMEOUT: Per-request timeout
//   - YTC_MAX_RETRIES: Maximum retry attempts for continuation requests
//   - YTC_RETRY_DELAY: Fixed delay between retries
//   - YTC_PAGE_DELAY: Pause between continuation requests
//   - YTC_LANGUAGE: Request locale (e.g. "vi")
//   - YTC_OUTPUT_DIR: Default output directory for batch downloads
//   - YTC_DATA_API_KEY: Data API key for catalog reconciliation
//
// Error Handling
//
// All operations return errors that work with errors.Is and errors.As:
//
//	if errors.Is(err, comments.ErrSetSorting) {
//		fmt.Println("could not select the requested sort order")
//	}
//
//	var serverErr *comments.ServerError
//	if errors.As(err, &serverErr) {
//		fmt.Printf("rejected by server: %s\n", serverErr.Message)
//	}
//
// A video with comments disabled is not an error: the stream simply ends
// with no records and a nil Err.
//
// Sub-packages
//
//   - comments: Comment thread extraction
//   - jobs: Batch downloads with a run manifest
//   - catalog: Channel upload listing and CSV reconciliation
//   - config: Configuration management
//   - storage: Atomic writes, file locks, and the run manifest
//   - retry: Backoff retry logic
//
package ytcomments
