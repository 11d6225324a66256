package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/browser"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/config"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/kream"
	"github.com/meaningyoung99-cmyk/my-kream-bot/pkg/logger"
)

var errQuoteFailed = errors.New("quote failed")

type options struct {
	model      string
	debug      bool
	warmUp     bool
	retries    int
	timeout    int
	screenshot string
	jsonOutput bool
	headless   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	defaults := kream.DefaultSettings()

	cmd := &cobra.Command{
		Use:           "quote",
		Short:         "Fetch the KREAM main price of a model and convert it to TWD",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd, opts)
			if err != nil && !errors.Is(err, errQuoteFailed) {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.model, "model", "m", "", "product model, e.g. DD1391-100")
	f.BoolVar(&opts.debug, "debug", defaults.Debug, "capture a screenshot on failure")
	f.BoolVar(&opts.warmUp, "warmup", defaults.WarmUp, "visit the home page before searching")
	f.IntVar(&opts.retries, "retries", defaults.Retries, "retries on blocked status codes")
	f.IntVar(&opts.timeout, "timeout", defaults.TimeoutSeconds, "per-operation timeout in seconds")
	f.StringVar(&opts.screenshot, "screenshot", "", "write the failure screenshot to this file (implies --debug)")
	f.BoolVar(&opts.jsonOutput, "json", false, "print the raw result as JSON")
	f.BoolVar(&opts.headless, "headless", true, "run the browser headless")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	settings := cfg.Settings()
	if cmd.Flags().Changed("debug") || opts.screenshot != "" {
		settings.Debug = opts.debug || opts.screenshot != ""
	}
	if cmd.Flags().Changed("warmup") {
		settings.WarmUp = opts.warmUp
	}
	if cmd.Flags().Changed("retries") {
		settings.Retries = opts.retries
	}
	if cmd.Flags().Changed("timeout") {
		settings.TimeoutSeconds = opts.timeout
	}

	if kream.NormalizeModel(opts.model) == "" {
		return kream.ErrEmptyModel
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browserOpts := cfg.BrowserOptions()
	browserOpts.Headless = opts.headless && browserOpts.Headless

	b, err := browser.New(browserOpts, log)
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer b.Close()

	result, err := kream.NewFetcher(b, cfg.FetcherOptions(), log).Quote(ctx, opts.model, settings)
	if err != nil {
		return err
	}

	if opts.screenshot != "" && len(result.Screenshot) > 0 {
		if err := os.WriteFile(opts.screenshot, result.Screenshot, 0o644); err != nil {
			log.Warn("failed to write screenshot", "path", opts.screenshot, "error", err)
		}
	}

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(out, result, settings)
	}

	if !result.OK {
		return errQuoteFailed
	}
	return nil
}

func printResult(w io.Writer, r *kream.Result, s kream.Settings) {
	p := message.NewPrinter(language.English)

	if !r.OK {
		fmt.Fprintf(w, "✗ %s (%s)\n", r.Message, r.ErrorKind)

		keys := make([]string, 0, len(r.Diagnostics))
		for k := range r.Diagnostics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %-16s %s\n", k, r.Diagnostics[k])
		}
		return
	}

	fmt.Fprintf(w, "%s\n", r.Title)
	fmt.Fprintf(w, "  model   %s\n", r.Model)
	fmt.Fprintf(w, "  KRW     %s\n", r.PriceText)
	p.Fprintf(w, "  TWD     NT$ %d\n", r.TWD)
	fmt.Fprintf(w, "  url     %s\n", r.URL)
	p.Fprintf(w, "  formula (KRW / %v) × %v × %v × %v, rounded up to %d\n",
		s.Divisor, s.Factor1, s.Factor2, s.Factor3, s.RoundTo)
}
