package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maltedev/domeme-scraper/internal/auth"
	"github.com/maltedev/domeme-scraper/internal/browser"
	"github.com/maltedev/domeme-scraper/internal/config"
	"github.com/maltedev/domeme-scraper/internal/database"
	"github.com/maltedev/domeme-scraper/internal/events"
	"github.com/maltedev/domeme-scraper/internal/export"
	"github.com/maltedev/domeme-scraper/internal/keywords"
	"github.com/maltedev/domeme-scraper/internal/logger"
	"github.com/maltedev/domeme-scraper/internal/metrics"
	"github.com/maltedev/domeme-scraper/internal/price"
	"github.com/maltedev/domeme-scraper/internal/ratelimit"
	"github.com/maltedev/domeme-scraper/internal/scraper"
	"github.com/maltedev/domeme-scraper/internal/search"
)

// stdinPrompter reads answers line by line from stdin.
type stdinPrompter struct {
	in *bufio.Reader
}

func (p *stdinPrompter) Prompt(label string, secret bool) (string, error) {
	if secret {
		fmt.Fprintf(os.Stderr, "%s (input is visible): ", label)
	} else {
		fmt.Fprintf(os.Stderr, "%s: ", label)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup runs before the process exits.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	var (
		query       = flag.String("q", "", "Search keywords, comma separated")
		file        = flag.String("file", "", "File with one keyword per line")
		maxResults  = flag.Int("max-results", cfg.Search.MaxResults, "Maximum records per keyword")
		minPrice    = flag.Int("min-price", cfg.Search.MinPrice, "Minimum price in won, 0 disables")
		maxPrice    = flag.Int("max-price", cfg.Search.MaxPrice, "Maximum price in won, 0 disables")
		pages       = flag.Int("pages", cfg.Search.MaxPages, "Maximum result pages per keyword")
		mode        = flag.String("mode", cfg.Search.Mode, "Search mode: direct or form")
		marketplace = flag.String("marketplace", cfg.Site.Marketplace, "Marketplace: domeggook, coupang, naver, 11st")
		noStaging   = flag.Bool("no-mybox", !cfg.Search.Stage, "Skip the staging workflow")
		format      = flag.String("format", cfg.Output.Formats, "Output format: json, csv or both")
		output      = flag.String("output", cfg.Output.Dir, "Output directory")
		headless    = flag.Bool("headless", cfg.Browser.Headless, "Run browser in headless mode")
		locators    = flag.String("locators", cfg.Site.LocatorsFile, "YAML file overriding built-in locators")
		verbose     = flag.Bool("verbose", false, "Debug logging")
		quick       = flag.Bool("quick", false, "Quick run: 10 results, one page, no staging")
		store       = flag.Bool("store", cfg.Database.Enabled, "Also store results in PostgreSQL")
	)
	flag.Parse()

	level := cfg.Logging.Level
	if *verbose {
		level = "debug"
	}
	logger := logger.New(level, cfg.Logging.Format)

	var kws []string
	if *query != "" {
		kws = keywords.FromArgs(*query)
	}
	if *file != "" {
		fromFile, err := keywords.FromFile(*file)
		if err != nil {
			logger.Error("Failed to read keyword file", "error", err)
			return 1
		}
		kws = keywords.Normalize(append(kws, fromFile...))
	}
	if len(kws) == 0 {
		kws = keywords.FromArgs(flag.Args()...)
	}
	if len(kws) == 0 {
		fmt.Fprintln(os.Stderr, "Please provide keywords with -q, -file or as arguments")
		flag.Usage()
		return 1
	}

	if *quick {
		*maxResults = 10
		*pages = 1
		*noStaging = true
	}

	if err := checkPriceRange(*minPrice, *maxPrice); err != nil {
		logger.Error("Invalid price range", "error", err)
		return 1
	}

	searchMode, err := search.ParseMode(*mode)
	if err != nil {
		logger.Error("Invalid search mode", "error", err)
		return 1
	}
	formats, err := export.ParseFormats(*format)
	if err != nil {
		logger.Error("Invalid output format", "error", err)
		return 1
	}

	cfg.Site.Marketplace = *marketplace
	cfg.Site.LocatorsFile = *locators
	profile, err := cfg.Site.Profile()
	if err != nil {
		logger.Error("Failed to resolve marketplace", "error", err)
		return 1
	}

	var creds auth.Credentials
	if profile.RequiresLogin {
		src := auth.NewSource(cfg.Auth.UsernameEnv, cfg.Auth.PasswordEnv, &stdinPrompter{in: bufio.NewReader(os.Stdin)})
		if creds, err = src.Resolve(auth.Credentials{}); err != nil {
			logger.Error("Credentials unavailable", "error", err)
			return 1
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	sinks := scraper.Sinks{export.NewWriter(*output, formats, logger)}
	if *store {
		db, err := database.New(ctx, cfg.Database.Connection())
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			return 1
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to apply schema", "error", err)
			return 1
		}
		sinks = append(sinks, events.New(db, cfg.Redis.Stream, logger))
	}

	browserCfg := cfg.Browser
	browserCfg.Headless = *headless
	b, err := browser.New(browserCfg.Options(), logger)
	if err != nil {
		logger.Error("Failed to initialize browser", "error", err)
		return 1
	}
	defer b.Close()

	driver, err := b.NewSession()
	if err != nil {
		logger.Error("Failed to open browser page", "error", err)
		return 1
	}
	defer driver.Close()

	session := scraper.NewSession(driver, profile, scraper.Config{
		Waits: cfg.Waits,
		Search: search.Options{
			Snapshot: cfg.Search.Snapshot,
			Pacer:    ratelimit.NewAdaptiveRateLimiter(cfg.Search.RateLimitMin, cfg.Search.RateLimitMax),
		},
		Auth:        auth.Options{Ambiguous: auth.AmbiguousPolicy(cfg.Auth.Ambiguous)},
		Credentials: creds,
	}, metrics.New(), logger)

	logger.Info("Starting search",
		"marketplace", profile.Source,
		"keywords", len(kws),
		"max_results", *maxResults,
		"pages", *pages,
		"staging", !*noStaging)

	outcomes, err := session.Run(ctx, scraper.Plan{
		Keywords: kws,
		Request: search.Request{
			MaxResults: *maxResults,
			MaxPages:   *pages,
			Filter:     price.Filter{Min: price.Bound(*minPrice), Max: price.Bound(*maxPrice)},
			Mode:       searchMode,
		},
		Stage: !*noStaging,
		Sink:  sinks,
	})
	if err != nil {
		logger.Error("Run stopped", "error", err)
	}

	failed := 0
	total := 0
	for _, o := range outcomes {
		if o.Search != nil {
			total += len(o.Search.Records)
			fmt.Printf("%s: %d records, %d pages, stop=%s\n", o.Keyword, len(o.Search.Records), o.Search.Pages, o.Search.Stop)
		}
		if o.Staging != nil {
			fmt.Printf("  staging: success=%t stage=%s selected=%d missing=%d\n",
				o.Staging.Success, o.Staging.Stage, len(o.Staging.Selected), len(o.Staging.Missing))
		}
		if len(o.Unstaged) > 0 {
			fmt.Printf("  not staged (earlier pages): %d\n", len(o.Unstaged))
		}
		if o.Err != nil {
			failed++
			fmt.Printf("  error: %v\n", o.Err)
		}
	}

	logger.Info("Run finished", "keywords", len(outcomes), "records", total, "failed", failed)
	if err != nil || failed > 0 {
		return 1
	}
	return 0
}

func checkPriceRange(minPrice, maxPrice int) error {
	if minPrice < 0 || maxPrice < 0 {
		return fmt.Errorf("prices must not be negative: %d..%d", minPrice, maxPrice)
	}
	if maxPrice > 0 && minPrice > maxPrice {
		return fmt.Errorf("-min-price %d is above -max-price %d", minPrice, maxPrice)
	}
	return nil
}
