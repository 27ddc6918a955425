package blockscrub

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/varalys/blockscrub/internal/logger"
	"github.com/varalys/blockscrub/internal/metrics"
	"github.com/varalys/blockscrub/internal/registry"
	"github.com/varalys/blockscrub/internal/server"
	"github.com/varalys/blockscrub/internal/watch"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	var watchCfg bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP sanitize service",
		Example: `  blockscrub serve --listen :9000 --watch
  curl -F file=@upload.blk http://localhost:9000/v1/sanitize`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.loadSettings()
			if err != nil {
				return err
			}
			reg, err := buildRegistry(st.merged)
			if err != nil {
				return err
			}

			// serve logs at info unless --log-level or the log section says otherwise
			lc := st.merged.Log
			level := a.flagLogLevel
			if level == "" {
				level = lc.GetLevel()
			}
			log := logger.Init(logger.Options{
				Level:   level,
				JSON:    a.flagLogJSON || lc.IsJSON(),
				NoColor: a.noColor(),
				Out:     a.stderr,
			})

			sc := st.merged.GetServerConfig()
			if listen == "" {
				listen = sc.GetListen()
			}
			col := metrics.New(true)
			col.SetFormats(reg.Count())
			srv := server.New(reg, server.Config{
				Listen:       listen,
				ReadTimeout:  sc.GetReadTimeout(),
				WriteTimeout: sc.GetWriteTimeout(),
				TempDir:      sc.GetTempDir(),
				Logger:       log,
				Metrics:      col,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			if watchCfg {
				if st.path == "" {
					log.Warn().Msg("no config file to watch")
				} else {
					w, err := watch.New(st.path, watch.Options{
						Load: func() (*registry.Registry, error) {
							st, err := a.loadSettings()
							if err != nil {
								return nil, err
							}
							return buildRegistry(st.merged)
						},
						Apply: func(r *registry.Registry) {
							srv.SetRegistry(r)
							col.SetFormats(r.Count())
						},
						Logger:  log,
						Metrics: col,
					})
					if err != nil {
						return err
					}
					g.Go(func() error { return w.Run(gctx) })
				}
			}
			g.Go(func() error {
				defer stop()
				return srv.ListenAndServe(gctx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config, else :8080)")
	cmd.Flags().BoolVar(&watchCfg, "watch", false, "reload formats when the config file changes")
	return cmd
}
