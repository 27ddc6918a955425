package blockscrub

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/varalys/blockscrub/internal/batch"
	"github.com/varalys/blockscrub/internal/cache"
	"github.com/varalys/blockscrub/internal/files"
	"github.com/varalys/blockscrub/internal/logger"
	"github.com/varalys/blockscrub/internal/metrics"
	"github.com/varalys/blockscrub/internal/report"
)

type sanitizeFlags struct {
	out             string
	inPlace         bool
	dryRun          bool
	ext             string
	include         string
	exclude         string
	defaultExcludes bool
	threads         int
	noCache         bool
	failOn          string
	json            bool
	sarif           bool
	table           bool
	text            bool
	verbose         bool
	metricsFile     string
}

func newSanitizeCmd(a *app) *cobra.Command {
	var f sanitizeFlags
	cmd := &cobra.Command{
		Use:   "sanitize <paths...>",
		Short: "Validate files and replace blocks that do not match their format",
		Example: `  blockscrub sanitize --out clean/ uploads/
  blockscrub sanitize --in-place --ext .blk data.bin
  blockscrub sanitize --dry-run --json --fail-on error .`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSanitize(cmd, args, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.out, "out", "o", "", "write sanitized files under this directory")
	fl.BoolVar(&f.inPlace, "in-place", false, "replace inputs with their sanitized output")
	fl.BoolVar(&f.dryRun, "dry-run", false, "validate only; write nothing")
	fl.StringVar(&f.ext, "ext", "", "treat every input as this extension")
	fl.StringVar(&f.include, "include", "", "comma-separated include globs")
	fl.StringVar(&f.exclude, "exclude", "", "comma-separated exclude globs")
	fl.BoolVar(&f.defaultExcludes, "default-excludes", true, "skip .git, node_modules, vendor and similar directories")
	fl.IntVar(&f.threads, "threads", 0, "worker count (0 = GOMAXPROCS)")
	fl.BoolVar(&f.noCache, "no-cache", false, "reprocess files that were clean last time")
	fl.StringVar(&f.failOn, "fail-on", "", "exit 1 on: error|malicious|never (default malicious)")
	fl.BoolVar(&f.json, "json", false, "emit JSON")
	fl.BoolVar(&f.sarif, "sarif", false, "emit SARIF 2.1.0")
	fl.BoolVar(&f.table, "table", false, "output in table format with borders")
	fl.BoolVar(&f.text, "text", false, "output in plain text columnar format (default)")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "list clean files too")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics for the run to this file (textfile collector format)")
	cmd.MarkFlagsMutuallyExclusive("out", "in-place", "dry-run")
	cmd.MarkFlagsMutuallyExclusive("json", "sarif", "table", "text")
	return cmd
}

func (a *app) runSanitize(cmd *cobra.Command, args []string, f sanitizeFlags) error {
	st, err := a.loadSettings()
	if err != nil {
		return err
	}
	lcfg, gcfg := st.local, st.global
	reg, err := buildRegistry(st.merged)
	if err != nil {
		return err
	}

	failOn, err := report.ParseFailOn(pickString(f.failOn, lcfg.FailOn, gcfg.FailOn))
	if err != nil {
		return err
	}
	include := pickString(f.include, lcfg.Include, gcfg.Include)
	exclude := pickString(f.exclude, lcfg.Exclude, gcfg.Exclude)
	for _, g := range []string{include, exclude} {
		if err := files.ValidateGlobs(g); err != nil {
			return err
		}
	}
	if f.out == "" && !f.inPlace && !f.dryRun {
		return batch.ErrNoDestination
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	selectOpts := files.Options{
		Include:         include,
		Exclude:         exclude,
		DefaultExcludes: pickBoolDefault(f.defaultExcludes, cmd.Flags().Changed("default-excludes"), lcfg.DefaultExcludes, gcfg.DefaultExcludes),
	}
	if f.ext == "" {
		selectOpts.Known = func(ext string) bool { _, ok := reg.Lookup(ext); return ok }
	}
	targets, err := files.Expand(ctx, args, selectOpts)
	if err != nil {
		return err
	}
	if f.out != "" {
		if err := checkOutDir(f.out, targets); err != nil {
			return err
		}
	}

	// the cache lives in the working directory and is keyed by absolute path
	cacheRoot, _ := os.Getwd()
	var db *cache.DB
	if !pickBool(f.noCache, lcfg.NoCache, gcfg.NoCache) && !f.dryRun {
		db, _ = cache.Load(cacheRoot)
	}

	log := logger.With("sanitize")
	var col *metrics.Collector
	if f.metricsFile != "" {
		col = metrics.New(false)
		col.SetFormats(reg.Count())
	}
	started := time.Now()
	outcomes, err := batch.Run(ctx, reg, targets, batch.Options{
		OutDir:  f.out,
		InPlace: f.inPlace,
		DryRun:  f.dryRun,
		Ext:     f.ext,
		Threads: f.threads,
		Cache:   db,
		Logger:  log,
		Observe: col.Observe,
	})
	if err != nil {
		return err
	}
	took := time.Since(started)
	if col != nil {
		if err := col.WriteFile(f.metricsFile); err != nil {
			log.Warn().Err(err).Msg("write metrics")
		}
	}
	if db != nil {
		if err := cache.Save(cacheRoot, db); err != nil {
			log.Warn().Err(err).Msg("save cache")
		}
	}

	w := cmd.OutOrStdout()
	popts := report.PrintOptions{NoColor: a.noColor() || pickBool(false, lcfg.NoColor, gcfg.NoColor), Verbose: f.verbose, Duration: took}
	switch {
	case f.json:
		err = report.WriteJSON(w, outcomes, took)
	case f.sarif:
		err = report.WriteSARIF(w, outcomes, version)
	case f.table:
		report.PrintTable(w, outcomes, popts)
	default:
		report.PrintText(w, outcomes, popts)
	}
	if err != nil {
		return err
	}
	if report.ShouldFail(outcomes, failOn) {
		return &exitError{code: exitFailOn}
	}
	return nil
}

// checkOutDir refuses an output directory that would overwrite an input.
func checkOutDir(out string, targets []files.Target) error {
	absOut, err := filepath.Abs(out)
	if err != nil {
		return err
	}
	for _, t := range targets {
		dst, _ := filepath.Abs(filepath.Join(absOut, filepath.FromSlash(t.Rel)))
		src, _ := filepath.Abs(t.Path)
		if dst == src {
			return fmt.Errorf("output %s would overwrite input; use --in-place", dst)
		}
	}
	return nil
}
