// Package batch sanitizes many files concurrently. Output for each file is
// written to a temp file next to its destination and renamed into place
// only when the run succeeds, so a failed or canceled run never leaves
// partial output behind.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/varalys/blockscrub/internal/cache"
	"github.com/varalys/blockscrub/internal/engine"
	"github.com/varalys/blockscrub/internal/files"
	"github.com/varalys/blockscrub/internal/registry"
	"github.com/varalys/blockscrub/internal/types"
)

// ErrNoDestination is returned when neither an output directory, in-place
// mode nor dry-run is selected.
var ErrNoDestination = errors.New("no output destination: set an output directory, in-place or dry-run")

// Options controls a batch run.
type Options struct {
	OutDir  string // mirror of each target's Rel path
	InPlace bool
	DryRun  bool   // validate only; nothing is written
	Ext     string // overrides every target's extension when set
	Threads int    // defaults to GOMAXPROCS
	Cache   *cache.DB
	Logger  zerolog.Logger
	// Observe is called once per processed file, skipped files excluded.
	Observe func(ext string, res *types.ProcessResult, err error, took time.Duration)
}

// FileOutcome describes what happened to one input.
type FileOutcome struct {
	Path      string
	Output    string
	Extension string
	Result    *types.ProcessResult
	Skipped   bool // unchanged and clean last time
	Err       error
	Duration  time.Duration
}

// Clean reports whether the file needed no replacements.
func (o FileOutcome) Clean() bool {
	if o.Skipped {
		return true
	}
	return o.Err == nil && o.Result != nil && o.Result.Success && o.Result.Report.ReplacedBlocks == 0
}

// Sanitized reports whether at least one block was replaced.
func (o FileOutcome) Sanitized() bool {
	return o.Err == nil && o.Result != nil && o.Result.Success && o.Result.Report.WasMalicious
}

// Failed reports whether the file was rejected or could not be processed.
func (o FileOutcome) Failed() bool {
	return o.Err != nil || (o.Result != nil && !o.Result.Success)
}

// Run processes targets with engines from reg. Outcomes are returned in
// target order. Per-file problems are recorded in the outcomes; the error
// return is reserved for bad options and cancellation.
func Run(ctx context.Context, reg *registry.Registry, targets []files.Target, opts Options) ([]FileOutcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.OutDir == "" && !opts.InPlace && !opts.DryRun {
		return nil, ErrNoDestination
	}
	if opts.Threads <= 0 {
		opts.Threads = runtime.GOMAXPROCS(0)
	}

	out := make([]FileOutcome, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)
	for i, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = processOne(gctx, reg, t, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func processOne(ctx context.Context, reg *registry.Registry, t files.Target, opts Options) (o FileOutcome) {
	started := time.Now()
	ext := t.Ext()
	if opts.Ext != "" {
		ext = types.NormalizeExt(opts.Ext)
	}
	o = FileOutcome{Path: t.Path, Extension: ext, Output: destination(t, opts)}
	log := opts.Logger.With().Str("path", t.Path).Str("format", ext).Logger()
	defer func() { o.Duration = time.Since(started) }()

	eng, ok := reg.Lookup(ext)
	if !ok {
		o.Result = types.Failed(types.NewProcessingError(types.CodeInvalidFormat,
			"no format registered for extension %q", ext))
		log.Warn().Msg("unknown format")
		return o
	}

	var digest, specDigest string
	if opts.Cache != nil {
		var err error
		if digest, err = cache.DigestFile(t.Path); err != nil {
			o.Err = fmt.Errorf("hash %s: %w", t.Path, err)
			return o
		}
		specDigest = cache.SpecDigest(eng.Spec())
		if opts.Cache.Clean(cacheKey(t), digest, specDigest) {
			o.Skipped = true
			if !opts.InPlace && !opts.DryRun {
				o.Err = copyFile(t.Path, o.Output)
			}
			log.Debug().Msg("unchanged since last clean run")
			return o
		}
	}

	res, err := sanitizeFile(ctx, eng, t.Path, o.Output, opts.DryRun)
	o.Result, o.Err = res, err
	if opts.Observe != nil {
		opts.Observe(ext, res, err, time.Since(started))
	}
	switch {
	case err != nil:
		log.Error().Err(err).Msg("sanitize failed")
		return o
	case !res.Success:
		log.Warn().Str("code", string(res.Error.Code)).Msg(res.Error.Detail)
	case res.Report.WasMalicious:
		log.Info().Int("replaced", res.Report.ReplacedBlocks).Msg(res.Report.Notes)
	default:
		log.Debug().Msg(res.Report.Notes)
	}
	if opts.Cache != nil {
		opts.Cache.Record(cacheKey(t), digest, specDigest, res.Success && res.Report.ReplacedBlocks == 0)
	}
	return o
}

func destination(t files.Target, opts Options) string {
	switch {
	case opts.DryRun:
		return ""
	case opts.InPlace:
		return t.Path
	default:
		return filepath.Join(opts.OutDir, filepath.FromSlash(t.Rel))
	}
}

func cacheKey(t files.Target) string {
	if abs, err := filepath.Abs(t.Path); err == nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(t.Path)
}

// sanitizeFile streams src through eng into a temp file beside dst and
// renames it over dst on success. With dryRun the output is discarded.
func sanitizeFile(ctx context.Context, eng *engine.Engine, src, dst string, dryRun bool) (*types.ProcessResult, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer func() { _ = in.Close() }()

	if dryRun {
		return eng.Process(ctx, in, io.Discard)
	}

	tmp, err := createTemp(dst)
	if err != nil {
		return nil, err
	}
	keep := false
	defer func() {
		if !keep {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	res, err := eng.Process(ctx, in, tmp)
	if err != nil || !res.Success {
		return res, err
	}
	if st, err := in.Stat(); err == nil {
		_ = tmp.Chmod(st.Mode().Perm())
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		keep = true
		return nil, fmt.Errorf("write output: %w", err)
	}
	keep = true
	return res, nil
}

func createTemp(dst string) (*os.File, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.CreateTemp(dir, ".blockscrub-*")
}

// copyFile publishes src at dst unchanged, skipping the copy when both name
// the same file.
func copyFile(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	tmp, err := createTemp(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if st, err := in.Stat(); err == nil {
		_ = tmp.Chmod(st.Mode().Perm())
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
