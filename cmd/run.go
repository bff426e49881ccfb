package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/lansim/internal/config"
	"firestige.xyz/lansim/internal/lab"
	"firestige.xyz/lansim/internal/log"
	"firestige.xyz/lansim/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the simulated LAN and run its scenario",
	Long: `Build the switch and hosts described by the config file, power the
switch up, send every scenario step and wait for the messages to arrive.

Exits non-zero when a routable message is still missing at the scenario
timeout. SIGINT or SIGTERM stops the run early.

Examples:
  lansim run -c lansim.yml
  lansim run -c lansim.yml --tap out.pcap --filter "dst 10.0.0.2"
  lansim run -c lansim.yml --timeout 30s`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runScenario(ctx, configFile, runOverrides, os.Stdout); err != nil {
			exitWithError("scenario failed", err)
		}
	},
}

// overrides are command-line settings that win over the config file.
type overrides struct {
	tapPath string
	filter  string
	timeout time.Duration
	metrics string
}

var runOverrides overrides

func init() {
	runCmd.Flags().StringVar(&runOverrides.tapPath, "tap", "",
		"record switched traffic to this pcap file")
	runCmd.Flags().StringVar(&runOverrides.filter, "filter", "",
		`tap filter, e.g. "src 10.0.0.1 and dst port 20"`)
	runCmd.Flags().DurationVarP(&runOverrides.timeout, "timeout", "t", 0,
		"scenario timeout (overrides scenario.timeout)")
	runCmd.Flags().StringVar(&runOverrides.metrics, "metrics", "",
		"serve Prometheus metrics on this address while running")
}

func (o overrides) apply(cfg *config.Config) error {
	if o.tapPath != "" {
		cfg.Tap.Enabled = true
		cfg.Tap.Path = o.tapPath
	}
	if o.filter != "" {
		cfg.Tap.Filter = o.filter
	}
	if o.timeout > 0 {
		cfg.Scenario.Timeout = o.timeout
	}
	if o.metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = o.metrics
	}
	return cfg.ValidateAndApplyDefaults()
}

func runScenario(ctx context.Context, path string, o overrides, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := o.apply(cfg); err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	l, err := lab.Build(*cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	swCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := l.Start(swCtx); err != nil {
		return err
	}

	report, err := l.Run(ctx, cfg.Scenario.Steps)
	if report != nil {
		printReport(w, report)
	}
	if err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%d message(s) missing, %d unexpected", len(report.Missing), report.Unexpected)
	}
	return nil
}

func printReport(w io.Writer, r *lab.Report) {
	fmt.Fprintf(w, "Scenario finished in %s\n", r.Elapsed.Round(time.Microsecond))
	for _, m := range r.Delivered {
		fmt.Fprintf(w, "  ✓ %s (%s)\n", m, m.Receiver)
	}
	for _, m := range r.Missing {
		fmt.Fprintf(w, "  ✗ %s (%s) missing\n", m, m.Receiver)
	}
	for _, m := range r.Unroutable {
		fmt.Fprintf(w, "  - %s no such host, dropped by switch\n", m)
	}
	for _, m := range r.Ignored {
		fmt.Fprintf(w, "  - %s port out of range, not sent\n", m)
	}
	s := r.Switch
	fmt.Fprintf(w, "Delivered: %d  Missing: %d  Unroutable: %d  Ignored: %d  Unexpected: %d\n",
		len(r.Delivered), len(r.Missing), len(r.Unroutable), len(r.Ignored), r.Unexpected)
	fmt.Fprintf(w, "Switch: received=%d forwarded=%d fallback=%d dropped=%d malformed=%d aborted=%d\n",
		s.Received, s.Forwarded, s.Fallback, s.Dropped, s.Malformed, s.Aborted)
}
