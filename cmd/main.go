package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Zachdehooge/traffic-dashboard/internal/config"
	"github.com/Zachdehooge/traffic-dashboard/internal/fetcher"
	"github.com/Zachdehooge/traffic-dashboard/internal/generator"
	"github.com/Zachdehooge/traffic-dashboard/internal/logging"
	"github.com/Zachdehooge/traffic-dashboard/internal/observability"
	"github.com/Zachdehooge/traffic-dashboard/internal/server"
	"github.com/Zachdehooge/traffic-dashboard/internal/visualizer"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	configFile string
	csvFile    string
	verbose    bool
	watchMode  bool
	modelType  string
	modelFile  string
)

// exit is swapped out in tests.
var exit = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "traffic-dashboard",
		Short: "Render traffic predictions onto a map dashboard",
		Long: `Traffic Dashboard fetches congestion, incident and disruption predictions
from the prediction backend and renders them as a static HTML map page.`,
		Run: func(cmd *cobra.Command, args []string) {
			a, err := setup(cmd)
			if err != nil {
				fail(cmd, nil, err)
				return
			}
			defer a.close()

			if err := generateDashboard(cmd, a); err != nil {
				fail(cmd, a, fmt.Errorf("failed to generate dashboard: %w", err))
				return
			}

			if watchMode {
				runWatchMode(cmd, a)
			}
		},
	}

	// Flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("api", "http://localhost:8000", "Prediction backend base URL")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.Flags().StringVar(&csvFile, "csv", "", "CSV of locations to predict (default: backend sample data)")
	rootCmd.Flags().StringP("output", "o", "traffic.html", "Output HTML file path")
	rootCmd.Flags().String("plan", "predictions.json", "Output render plan JSON path (empty to skip)")
	rootCmd.Flags().IntP("interval", "i", 300, "Update interval in seconds (minimum 30)")
	rootCmd.Flags().BoolVar(&watchMode, "watch", false, "Continuously update the dashboard")

	// Additional commands
	addListCmd(rootCmd)
	addStatusCmd(rootCmd)
	addUploadModelCmd(rootCmd)
	addServeCmd(rootCmd)

	return rootCmd
}

type app struct {
	cfg      *config.Config
	log      logging.Logger
	client   *fetcher.Client
	shutdown func(context.Context) error
	closed   sync.Once
}

// close flushes tracing. Safe to call more than once.
func (a *app) close() {
	a.closed.Do(func() {
		observability.ShutdownWithTimeout(context.Background(), a.shutdown, a.log)
	})
}

// setup resolves configuration (.env, config file, TRAFFIC_* env, flags) and
// builds the logger, tracing and backend client every command shares.
func setup(cmd *cobra.Command, clientOpts ...fetcher.Option) (*app, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	flags := cmd.Flags()
	for key, name := range map[string]string{
		"api.base_url":   "api",
		"log.level":      "log-level",
		"output.html":    "output",
		"output.plan":    "plan",
		"watch.interval": "interval",
		"server.addr":    "addr",
	} {
		if err := bindFlag(v, key, flags.Lookup(name)); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})
	shutdown, err := observability.InitTracing(commandContext(cmd), observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	opts := append([]fetcher.Option{
		fetcher.WithTimeout(cfg.API.Timeout),
		fetcher.WithLogger(log),
	}, clientOpts...)

	return &app{
		cfg:      cfg,
		log:      log,
		client:   fetcher.NewClient(cfg.API.BaseURL, opts...),
		shutdown: shutdown,
	}, nil
}

func bindFlag(v *viper.Viper, key string, f *pflag.Flag) error {
	if f == nil {
		return nil
	}
	return v.BindPFlag(key, f)
}

// fail reports err the way the dashboard shows errors to users and exits.
// exit skips deferred calls, so a is closed here first; a is nil when setup
// itself failed.
func fail(cmd *cobra.Command, a *app, err error) {
	cmd.PrintErrln(fetcher.UserMessage(err))
	if a != nil {
		a.close()
	}
	exit(1)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadRecords uploads the CSV when one was given, otherwise asks for the
// backend's sample predictions.
func loadRecords(ctx context.Context, client *fetcher.Client) ([]fetcher.LocationRecord, error) {
	if csvFile != "" {
		return client.UploadCSV(ctx, csvFile)
	}
	return client.SamplePredict(ctx)
}

func pageOptions(cfg *config.Config) generator.PageOptions {
	opts := generator.DefaultPageOptions()
	opts.Center = visualizer.Coordinate{Lat: cfg.Map.CenterLat, Lng: cfg.Map.CenterLng}
	opts.Zoom = cfg.Map.Zoom
	opts.TileURL = cfg.Map.TileURL
	opts.Attribution = cfg.Map.Attribution
	return opts
}

func fitOptions(cfg *config.Config) visualizer.FitOptions {
	return visualizer.FitOptions{Padding: cfg.Map.Padding, MaxZoom: cfg.Map.MaxZoom}
}

// generateDashboard runs one full render pass and writes the page and plan.
func generateDashboard(cmd *cobra.Command, a *app) error {
	ctx := commandContext(cmd)

	if verbose {
		cmd.Println("Checking prediction backend...")
	}
	st, err := a.client.Status(ctx)
	if err != nil {
		return err
	}
	if !st.Ready() {
		a.log.Warn(ctx, "prediction backend not ready", logging.String("status", st.Status))
	}

	records, err := loadRecords(ctx, a.client)
	if err != nil {
		return err
	}

	page := generator.NewPage()
	vis := visualizer.New(page,
		visualizer.WithFitOptions(fitOptions(a.cfg)),
		visualizer.WithDetailPanel(page),
	)
	plan := vis.Render(records)
	page.Prerender()

	if verbose {
		cmd.Println(fmt.Sprintf("Generating HTML to %s...", a.cfg.Output.HTML))
	}
	if err := generator.GenerateDashboardHTML(page, plan.Stats, pageOptions(a.cfg), a.cfg.Output.HTML); err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}
	if a.cfg.Output.Plan != "" {
		if err := generator.WritePlanJSON(plan, a.cfg.Output.Plan); err != nil {
			return fmt.Errorf("failed to write plan: %w", err)
		}
	}

	a.log.Info(ctx, "dashboard written",
		logging.String("html", a.cfg.Output.HTML),
		logging.Int("locations", len(plan.Markers)))
	cmd.Println(fmt.Sprintf("Traffic dashboard saved to %s (%d locations)", a.cfg.Output.HTML, len(plan.Markers)))
	return nil
}

// runWatchMode regenerates the dashboard every interval until interrupted.
func runWatchMode(cmd *cobra.Command, a *app) {
	interval := a.cfg.Watch.Interval
	// Enforce minimum interval
	if interval < 30 {
		interval = 30
	}

	cmd.Println(fmt.Sprintf("Watch mode activated. Updating every %d seconds. Press Ctrl+C to stop.", interval))
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	ctx := commandContext(cmd)
	for {
		select {
		case <-ctx.Done():
			cmd.Println("Watch mode stopped.")
			return
		case <-ticker.C:
			if err := generateDashboard(cmd, a); err != nil {
				cmd.PrintErrln(fmt.Sprintf("update failed: %s", fetcher.UserMessage(err)))
			}
		}
	}
}

// addListCmd adds a 'list' subcommand to print predictions without generating HTML
func addListCmd(rootCmd *cobra.Command) {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List traffic predictions",
		Run: func(cmd *cobra.Command, args []string) {
			a, err := setup(cmd)
			if err != nil {
				fail(cmd, nil, err)
				return
			}
			defer a.close()

			records, err := loadRecords(commandContext(cmd), a.client)
			if err != nil {
				fail(cmd, a, err)
				return
			}
			printPredictions(cmd, records)
		},
	}
	listCmd.Flags().StringVar(&csvFile, "csv", "", "CSV of locations to predict (default: backend sample data)")

	rootCmd.AddCommand(listCmd)
}

func printPredictions(cmd *cobra.Command, records []fetcher.LocationRecord) {
	if len(records) == 0 {
		cmd.Println("No locations returned.")
		return
	}

	vis := visualizer.New(nil)
	plan := vis.Render(records)

	cmd.Println("Traffic Predictions:")
	for i, rec := range records {
		view := visualizer.DescribeRecord(rec, i)
		cmd.Println("---")
		cmd.Println(fmt.Sprintf("%s (%.6f, %.6f)", view.Title, rec.Latitude, rec.Longitude))
		if view.NoData {
			cmd.Println(view.Message)
			continue
		}
		for _, l := range view.Lines {
			cmd.Println(fmt.Sprintf("%s: %s", l.Label, l.Value))
		}
		if view.Analysis != "" {
			cmd.Println(fmt.Sprintf("Analysis: %s", view.Analysis))
		}
	}

	cmd.Println("---")
	cmd.Println("Statistics:")
	var line []string
	category := ""
	for _, c := range plan.Stats.Counts() {
		if c.Category != category && len(line) > 0 {
			cmd.Println(fmt.Sprintf("  %s: %s", category, strings.Join(line, ", ")))
			line = nil
		}
		category = c.Category
		line = append(line, fmt.Sprintf("%s %d", c.Value, c.Count))
	}
	cmd.Println(fmt.Sprintf("  %s: %s", category, strings.Join(line, ", ")))
}

// addStatusCmd adds a 'status' subcommand reporting backend readiness
func addStatusCmd(rootCmd *cobra.Command) {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show prediction backend status",
		Run: func(cmd *cobra.Command, args []string) {
			a, err := setup(cmd)
			if err != nil {
				fail(cmd, nil, err)
				return
			}
			defer a.close()

			st, err := a.client.Status(commandContext(cmd))
			if err != nil {
				fail(cmd, a, err)
				return
			}

			ready := color.RedString("not ready")
			if st.Ready() {
				ready = color.GreenString("ready")
			}
			cmd.Println(fmt.Sprintf("Backend: %s (%s)", st.Status, ready))
			models := "none"
			if len(st.ModelsLoaded) > 0 {
				models = strings.Join(st.ModelsLoaded, ", ")
			}
			cmd.Println(fmt.Sprintf("Models loaded: %s", models))
		},
	}

	rootCmd.AddCommand(statusCmd)
}

// addUploadModelCmd adds an 'upload-model' subcommand
func addUploadModelCmd(rootCmd *cobra.Command) {
	uploadCmd := &cobra.Command{
		Use:   "upload-model",
		Short: "Upload a trained model to the prediction backend",
		Run: func(cmd *cobra.Command, args []string) {
			a, err := setup(cmd)
			if err != nil {
				fail(cmd, nil, err)
				return
			}
			defer a.close()

			msg, err := a.client.UploadModel(commandContext(cmd), modelType, modelFile)
			if err != nil {
				fail(cmd, a, err)
				return
			}
			cmd.Println(msg)
		},
	}
	uploadCmd.Flags().StringVar(&modelType, "type", "", fmt.Sprintf("Model type, one of %s", strings.Join(fetcher.ModelTypes, ", ")))
	uploadCmd.Flags().StringVar(&modelFile, "file", "", "Model file (.pkl)")

	rootCmd.AddCommand(uploadCmd)
}

// addServeCmd adds a 'serve' subcommand running the live dashboard server
func addServeCmd(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the live traffic dashboard",
		Run: func(cmd *cobra.Command, args []string) {
			collector, err := observability.NewCollector(nil)
			if err != nil {
				fail(cmd, nil, err)
				return
			}
			a, err := setup(cmd, fetcher.WithObserver(collector))
			if err != nil {
				fail(cmd, nil, err)
				return
			}
			defer a.close()

			srv := server.New(a.client, server.Options{
				Page:      pageOptions(a.cfg),
				Fit:       fitOptions(a.cfg),
				Logger:    a.log,
				Collector: collector,
			})
			cmd.Println(fmt.Sprintf("Open at http://localhost%s/", displayAddr(a.cfg.Server.Addr)))
			if err := srv.Run(commandContext(cmd), a.cfg.Server.Addr); err != nil {
				fail(cmd, a, fmt.Errorf("server: %w", err))
			}
		},
	}
	serveCmd.Flags().String("addr", ":8080", "Listen address")

	rootCmd.AddCommand(serveCmd)
}

func displayAddr(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ":" + addr
}
