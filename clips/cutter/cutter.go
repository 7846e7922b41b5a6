// Package cutter implements the Clip Cutter & Worker Pool (spec §4.J): a
// bounded-parallel ffmpeg transcoder with fingerprint-based caching, a
// stream-copy/re-encode fallback strategy, thumbnail and optional HLS
// packaging, and submission of every successful cut to the Clip Index.
package cutter

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"oms.heartbeat.dev/clips"
	"oms.heartbeat.dev/errs"
)

const (
	defaultMaxClipDurationSeconds = 120
	hardCapDurationSeconds        = 300
	defaultConcurrency            = 3
)

// IndexStore is the subset of the Clip Index (§4.K) the cutter depends on.
// Kept as a narrow interface here so clips/cutter does not import
// clips/index; *index.Index satisfies it.
type IndexStore interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*clips.ClipRecord, error)
	InsertClip(ctx context.Context, record *clips.ClipRecord) error
}

// Request is one clip-cutting request (spec §4.J).
type Request struct {
	ClipID     string
	SourcePath string
	Start      float64
	End        float64
	OutputPath string
	ShiftMode  bool
	Metadata   map[string]interface{}
	Segment    clips.ClipSegment

	EnableHLS       bool
	HLSSegmentLenS  float64
}

// Result is the outcome of one Cut call.
type Result struct {
	Success       bool
	CacheHit      bool
	Record        *clips.ClipRecord
	Error         error
	ProcessingMs  int64
}

// Config tunes the cutter's worker pool and limits.
type Config struct {
	Concurrency             int
	MaxClipDurationSeconds  float64
}

func DefaultConfig() Config {
	return Config{Concurrency: defaultConcurrency, MaxClipDurationSeconds: defaultMaxClipDurationSeconds}
}

// Cutter owns the ffmpeg runner and the clip index it reports to.
type Cutter struct {
	cfg    Config
	ffmpeg *ffmpegRunner
	index  IndexStore
}

func New(cfg Config, index IndexStore) *Cutter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxClipDurationSeconds <= 0 {
		cfg.MaxClipDurationSeconds = defaultMaxClipDurationSeconds
	}
	return &Cutter{cfg: cfg, ffmpeg: newFFmpegRunner(), index: index}
}

// Cut validates, clamps, consults the index by fingerprint, and — on a
// miss — cuts the segment, generates a thumbnail and optional HLS
// packaging, then submits the result to the index.
func (c *Cutter) Cut(ctx context.Context, req Request) Result {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		return Result{Success: false, Error: err}
	}

	fp := Fingerprint(req.SourcePath, req.Start, req.End)

	if c.index != nil {
		var cached *clips.ClipRecord
		if rec, err := c.index.FindByFingerprint(ctx, fp); err == nil && rec != nil {
			if _, statErr := os.Stat(rec.FilePath); statErr == nil {
				cached = rec
			}
		}
		if recorder, ok := c.index.(interface{ RecordCacheLookup(hit bool) }); ok {
			recorder.RecordCacheLookup(cached != nil)
		}
		if cached != nil {
			return Result{
				Success:      true,
				CacheHit:     true,
				Record:       cached,
				ProcessingMs: time.Since(start).Milliseconds(),
			}
		}
	}

	clampedStart, clampedEnd, err := c.clampBounds(ctx, req.SourcePath, req.Start, req.End)
	if err != nil {
		return Result{Success: false, Error: errs.BackendError("probe source duration", err)}
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return Result{Success: false, Error: errs.Internal("create output directory", err)}
	}

	if err := c.cutWithFallback(ctx, req, clampedStart, clampedEnd); err != nil {
		return Result{Success: false, Error: errs.BackendError("cut segment", err)}
	}

	duration := clampedEnd - clampedStart
	thumbPath := strings.TrimSuffix(req.OutputPath, filepath.Ext(req.OutputPath)) + ".jpg"
	thumbOffset := math.Min(5, duration/2)
	thumbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := c.ffmpeg.thumbnail(thumbCtx, req.OutputPath, thumbOffset, thumbPath); err != nil {
		thumbPath = ""
	}
	cancel()

	hlsPlaylist := ""
	if req.EnableHLS {
		hlsDir := filepath.Join(filepath.Dir(req.OutputPath), "hls_"+req.ClipID)
		if err := os.MkdirAll(hlsDir, 0o755); err == nil {
			hlsCtx, hcancel := context.WithTimeout(ctx, 60*time.Second)
			if err := c.ffmpeg.packageHLS(hlsCtx, req.OutputPath, hlsDir); err == nil {
				hlsPlaylist = filepath.Join(hlsDir, "playlist.m3u8")
			}
			hcancel()
		}
	}

	info, statErr := os.Stat(req.OutputPath)
	var byteSize int64
	if statErr == nil {
		byteSize = info.Size()
	}

	seg := req.Segment
	seg.ClipID = req.ClipID
	seg.SourcePath = req.SourcePath
	seg.StartSeconds = clampedStart
	seg.EndSeconds = clampedEnd
	seg.DurationSeconds = duration

	record := &clips.ClipRecord{
		ClipSegment:     seg,
		Fingerprint:     fp,
		FilePath:        req.OutputPath,
		ThumbnailPath:   thumbPath,
		HLSPlaylistPath: hlsPlaylist,
		ByteSize:        byteSize,
		ProcessingMs:    time.Since(start).Milliseconds(),
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}

	if c.index != nil {
		if err := c.index.InsertClip(ctx, record); err != nil {
			return Result{Success: true, Record: record, ProcessingMs: record.ProcessingMs, Error: fmt.Errorf("clip index write failed (clip file retained): %w", err)}
		}
	}

	return Result{Success: true, Record: record, ProcessingMs: record.ProcessingMs}
}

// CutParallel runs each request through Cut with bounded concurrency,
// preserving input order in the output regardless of completion order.
func (c *Cutter) CutParallel(ctx context.Context, reqs []Request) []Result {
	return runBounded(ctx, len(reqs), c.cfg.Concurrency, func(taskCtx context.Context, i int) Result {
		req := reqs[i]
		timeout := c.requestTimeout(req)
		taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
		defer cancel()
		return c.Cut(taskCtx, req)
	})
}

func validateRequest(req Request) error {
	if req.SourcePath == "" {
		return errs.InvalidRequest("source path is required")
	}
	if _, err := os.Stat(req.SourcePath); err != nil {
		return errs.InvalidRequest(fmt.Sprintf("source does not exist: %s", req.SourcePath))
	}
	if req.Start < 0 {
		return errs.InvalidRequest("start must be >= 0")
	}
	if req.End <= req.Start {
		return errs.InvalidRequest("end must be > start")
	}
	if req.End-req.Start > hardCapDurationSeconds {
		return errs.InvalidRequest(fmt.Sprintf("duration exceeds hard cap of %d seconds", hardCapDurationSeconds))
	}
	if req.OutputPath == "" {
		return errs.InvalidRequest("output path is required")
	}
	return nil
}

// clampBounds probes source duration and clamps [start, end) into range,
// further capped to the configured maximum clip duration.
func (c *Cutter) clampBounds(ctx context.Context, sourcePath string, start, end float64) (float64, float64, error) {
	duration, err := c.ffmpeg.probeDuration(ctx, sourcePath)
	if err != nil {
		return 0, 0, err
	}

	clampedStart := math.Max(0, start)
	clampedEnd := math.Min(duration, end)
	if clampedEnd <= clampedStart {
		clampedEnd = math.Min(clampedStart+0.1, duration)
	}
	if clampedEnd-clampedStart > c.cfg.MaxClipDurationSeconds {
		clampedEnd = clampedStart + c.cfg.MaxClipDurationSeconds
	}
	return clampedStart, clampedEnd, nil
}

// cutWithFallback tries the preferred strategy first (stream copy for
// shift-mode requests, re-encode otherwise) and falls back to the other
// strategy on failure.
func (c *Cutter) cutWithFallback(ctx context.Context, req Request, start, end float64) error {
	primary := c.ffmpeg.reencode
	fallback := c.ffmpeg.streamCopy
	if req.ShiftMode {
		primary = c.ffmpeg.streamCopy
		fallback = c.ffmpeg.reencode
	}

	primaryErr := primary(ctx, req.SourcePath, start, end, req.OutputPath)
	if primaryErr == nil {
		return nil
	}
	fallbackErr := fallback(ctx, req.SourcePath, start, end, req.OutputPath)
	if fallbackErr == nil {
		return nil
	}
	return fmt.Errorf("primary strategy failed (%v), fallback also failed: %w", primaryErr, fallbackErr)
}

// requestTimeout computes the request-scoped deadline per spec §4.J:
// min(600, max(60, duration*2.0)) for re-encode, min(300, max(60,
// duration*1.2)) for stream copy.
func (c *Cutter) requestTimeout(req Request) time.Duration {
	duration := req.End - req.Start
	if req.ShiftMode {
		seconds := math.Min(300, math.Max(60, duration*1.2))
		return time.Duration(seconds * float64(time.Second))
	}
	seconds := math.Min(600, math.Max(60, duration*2.0))
	return time.Duration(seconds * float64(time.Second))
}
