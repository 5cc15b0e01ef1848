package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"ytcomments/comments"
	"ytcomments/storage"
)

// Options configures a batch run.
type Options struct {
	// OutputDir receives one JSONL file per job.
	OutputDir string
	// Sort is the comment ordering requested for every video.
	Sort comments.SortOrder
	// Language optionally overrides the request locale.
	Language string
	// Sleep is the pause between continuation requests.
	Sleep time.Duration
	// MaxComments caps comments per video. 0 means all.
	MaxComments int
	// Overwrite re-downloads videos whose output file already exists.
	Overwrite bool
}

// Summary counts job outcomes for one run.
type Summary struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// Runner executes comment jobs sequentially.
type Runner struct {
	downloader *comments.Downloader
	manifest   *storage.Manifest
	log        zerolog.Logger
	opts       Options
}

// NewRunner creates a Runner. manifest may be nil to skip run tracking.
func NewRunner(d *comments.Downloader, manifest *storage.Manifest, log zerolog.Logger, opts Options) *Runner {
	return &Runner{
		downloader: d,
		manifest:   manifest,
		log:        log,
		opts:       opts,
	}
}

// Run downloads every job's comments. A job failure is logged and counted,
// not fatal; Run only returns an error for setup failures or cancellation.
func (r *Runner) Run(ctx context.Context, jobList []CommentJob) (Summary, error) {
	var summary Summary

	if err := os.MkdirAll(r.opts.OutputDir, 0755); err != nil {
		return summary, fmt.Errorf("create output dir: %w", err)
	}

	runID := ""
	if r.manifest != nil {
		var err error
		if runID, err = r.manifest.StartRun(); err != nil {
			return summary, err
		}
	}

	for _, job := range jobList {
		if ctx.Err() != nil {
			r.finishRun(runID, storage.RunFailed)
			return summary, ctx.Err()
		}

		name := OutputName(job)
		path := filepath.Join(r.opts.OutputDir, name)

		if !r.opts.Overwrite {
			if _, err := os.Stat(path); err == nil {
				summary.Skipped++
				r.log.Info().Str("video_id", job.VideoID).Str("output", name).Msg("output exists, skipping")
				r.recordVideo(runID, storage.VideoResult{VideoID: job.VideoID, Output: name, Skipped: true})
				continue
			}
		}

		count, err := r.downloadOne(ctx, job, path)
		if err != nil {
			summary.Failed++
			r.log.Error().Err(err).Str("video_id", job.VideoID).Str("url", job.URL).Msg("download failed")
			r.recordVideo(runID, storage.VideoResult{VideoID: job.VideoID, Error: err.Error()})
			continue
		}

		summary.Downloaded++
		r.log.Info().Str("video_id", job.VideoID).Str("output", name).Int("comments", count).Msg("downloaded")
		r.recordVideo(runID, storage.VideoResult{VideoID: job.VideoID, Output: name, Comments: count})
	}

	r.finishRun(runID, storage.RunCompleted)
	return summary, nil
}

// downloadOne streams one video's comments into a JSONL file. The file is
// written atomically: a failed stream leaves no partial output behind.
func (r *Runner) downloadOne(ctx context.Context, job CommentJob, path string) (int, error) {
	stream := r.downloader.CommentsFromURL(ctx, job.URL, comments.Options{
		Sort:     r.opts.Sort,
		Language: r.opts.Language,
		Sleep:    r.opts.Sleep,
		Limit:    r.opts.MaxComments,
	})

	writer, err := storage.NewAtomicWriter(path)
	if err != nil {
		return 0, err
	}

	encoder := json.NewEncoder(writer)
	encoder.SetEscapeHTML(false)

	count := 0
	for stream.Next() {
		c := stream.Comment()
		// The article title is more precise than the scraped page title.
		if job.ArticleTitle != "" {
			c.VideoTitle = job.ArticleTitle
		}
		if err := encoder.Encode(c); err != nil {
			writer.Abort()
			return 0, fmt.Errorf("write comment: %w", err)
		}
		count++
	}
	if err := stream.Err(); err != nil {
		writer.Abort()
		return 0, err
	}

	if err := writer.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Runner) recordVideo(runID string, result storage.VideoResult) {
	if r.manifest == nil || runID == "" {
		return
	}
	if err := r.manifest.RecordVideo(runID, result); err != nil {
		r.log.Warn().Err(err).Str("video_id", result.VideoID).Msg("manifest update failed")
	}
}

func (r *Runner) finishRun(runID string, status storage.RunStatus) {
	if r.manifest == nil || runID == "" {
		return
	}
	if err := r.manifest.FinishRun(runID, status); err != nil {
		r.log.Warn().Err(err).Msg("manifest finish failed")
	}
}
