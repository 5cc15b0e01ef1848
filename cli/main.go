package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ytcomments/catalog"
	"ytcomments/comments"
	"ytcomments/config"
	ythttp "ytcomments/http"
	"ytcomments/jobs"
	"ytcomments/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "download":
		cmdDownload(args)
	case "batch":
		cmdBatch(args)
	case "reconcile":
		cmdReconcile(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `ytcomments - YouTube comment extractor

Usage:
  ytcomments download [flags] <video-id-or-url>   Download one video's comments as JSONL
  ytcomments batch [flags]                        Download comments for a catalog CSV
  ytcomments reconcile [flags] <channel> [...]    Compare channel uploads with a catalog CSV
  ytcomments help                                 Show this help message

Examples:
  ytcomments download dQw4w9WgXcQ
  ytcomments download --sort popular --limit 100 https://youtu.be/dQw4w9WgXcQ
  ytcomments batch --jobs article_videos.csv --articles articles.csv --output-dir comments
  ytcomments reconcile --catalog article_videos.csv UCxxxxxxxxxxxxxxxxxxxxxx

For help on a specific command: ytcomments <command> -h
`)
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
}

// signalContext returns a context canceled by SIGINT/SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func parseSort(label string) (comments.SortOrder, error) {
	switch strings.ToLower(label) {
	case "recent", "newest":
		return comments.SortByRecent, nil
	case "popular", "top":
		return comments.SortByPopular, nil
	}
	return 0, fmt.Errorf("invalid sort %q (use recent or popular)", label)
}

func cmdDownload(args []string) {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	sortLabel := fs.String("sort", "recent", "Comment order: recent or popular")
	language := fs.String("language", "", "Request locale override (e.g. vi)")
	sleep := fs.Duration("sleep", 0, "Pause between continuation requests (default from config)")
	limit := fs.Int("limit", 0, "Maximum comments to download (0 = all)")
	output := fs.String("output", "-", "Output file, or - for stdout")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytcomments download [flags] <video-id-or-url>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing video id or URL\n")
		fs.Usage()
		os.Exit(1)
	}
	target := fs.Arg(0)

	sort, err := parseSort(*sortLabel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	log := newLogger()

	downloader, err := comments.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create downloader")
	}
	defer downloader.Close()

	ctx := signalContext()
	opts := comments.Options{Sort: sort, Language: *language, Sleep: *sleep, Limit: *limit}

	var stream *comments.Stream
	if url := jobs.NormalizeWatchURL(target); url != "" && strings.HasPrefix(target, "http") {
		stream = downloader.CommentsFromURL(ctx, url, opts)
	} else {
		stream = downloader.Comments(ctx, target, opts)
	}

	out := os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatal().Err(err).Msg("create output file")
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)

	count := 0
	for stream.Next() {
		if err := encoder.Encode(stream.Comment()); err != nil {
			log.Fatal().Err(err).Msg("write comment")
		}
		count++
	}
	if err := stream.Err(); err != nil {
		log.Fatal().Err(err).Int("comments", count).Msg("download failed")
	}
	log.Info().Int("comments", count).Str("title", stream.Title()).Msg("done")
}

func cmdBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	jobsPath := fs.String("jobs", "article_videos.csv", "CSV with article_id and video_path columns")
	articlesPath := fs.String("articles", "articles.csv", "CSV with article id and title columns")
	outputDir := fs.String("output-dir", "", "Output directory (default from config)")
	manifestPath := fs.String("manifest", "", "Run manifest path (default <output-dir>/manifest.json)")
	limit := fs.Int("limit", 0, "Only process the first N jobs (0 = all)")
	maxComments := fs.Int("max-comments", 0, "Maximum comments per video (0 = all)")
	sortLabel := fs.String("sort", "recent", "Comment order: recent or popular")
	language := fs.String("language", "", "Request locale override (e.g. vi)")
	sleep := fs.Duration("sleep", 0, "Pause between continuation requests (default from config)")
	overwrite := fs.Bool("overwrite", false, "Re-download videos whose output already exists")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytcomments batch [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	sort, err := parseSort(*sortLabel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	log := newLogger()

	if *outputDir == "" {
		*outputDir = cfg.OutputDir
	}

	titles, err := jobs.ReadTitles(*articlesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("read articles")
	}
	jobList, err := jobs.ReadJobs(*jobsPath, *limit, titles)
	if err != nil {
		log.Fatal().Err(err).Msg("read jobs")
	}
	if len(jobList) == 0 {
		log.Fatal().Str("path", *jobsPath).Msg("no usable jobs in catalog")
	}

	if *manifestPath == "" {
		*manifestPath = filepath.Join(*outputDir, "manifest.json")
	}
	manifest, err := storage.OpenManifest(*manifestPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open manifest")
	}
	defer manifest.Close()

	downloader, err := comments.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create downloader")
	}
	defer downloader.Close()

	runner := jobs.NewRunner(downloader, manifest, log, jobs.Options{
		OutputDir:   *outputDir,
		Sort:        sort,
		Language:    *language,
		Sleep:       *sleep,
		MaxComments: *maxComments,
		Overwrite:   *overwrite,
	})

	summary, err := runner.Run(signalContext(), jobList)
	if err != nil {
		log.Fatal().Err(err).
			Int("downloaded", summary.Downloaded).
			Int("skipped", summary.Skipped).
			Int("failed", summary.Failed).
			Msg("batch aborted")
	}
	log.Info().
		Int("downloaded", summary.Downloaded).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("batch done")
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func cmdReconcile(args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	catalogPath := fs.String("catalog", "article_videos.csv", "Catalog CSV to compare against")
	column := fs.String("column", "video_path", "Catalog column holding video URLs")
	idsOut := fs.String("ids-out", "", "Also write channel video IDs to this file")
	useAPI := fs.Bool("api", false, "Use the Data API (requires data_api_key in config)")
	maxVideos := fs.Int("max", 0, "Maximum videos to list per channel (0 = all)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytcomments reconcile [flags] <channel> [...]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: missing channel\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig()
	log := newLogger()
	ctx := signalContext()

	var lister catalog.VideoLister
	if *useAPI {
		apiLister, err := catalog.NewAPILister(ctx, cfg.DataAPIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("create api lister")
		}
		lister = apiLister
	} else {
		httpCfg := ythttp.DefaultConfig()
		httpCfg.Timeout = cfg.RequestTimeout
		httpCfg.UserAgent = cfg.UserAgent
		client := ythttp.New(httpCfg, nil)
		defer client.Close()
		lister = catalog.NewInnertubeLister(client)
	}

	var channelIDs []string
	for _, channel := range fs.Args() {
		videos, err := lister.ListVideos(ctx, channel, &catalog.ListOptions{MaxResults: *maxVideos})
		if err != nil {
			log.Fatal().Err(err).Str("channel", channel).Msg("list videos")
		}
		log.Info().Str("channel", channel).Int("videos", len(videos)).Msg("listed")
		for _, v := range videos {
			channelIDs = append(channelIDs, v.ID)
		}
	}

	if *idsOut != "" {
		if err := catalog.WriteIDs(*idsOut, channelIDs); err != nil {
			log.Fatal().Err(err).Msg("write ids")
		}
	}

	catalogIDs, err := catalog.LoadCatalogIDs(*catalogPath, *column)
	if err != nil {
		log.Fatal().Err(err).Msg("load catalog")
	}

	report := catalog.Reconcile(channelIDs, catalogIDs)
	fmt.Printf("In channel uploads but not in catalog: %d\n", len(report.Missing))
	for _, id := range report.Missing {
		fmt.Printf("  %s\n", id)
	}
	fmt.Printf("In catalog but not in channel uploads: %d\n", len(report.Extra))
	for _, id := range report.Extra {
		fmt.Printf("  %s\n", id)
	}
}
