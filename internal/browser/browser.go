package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser owns one playwright process, one Chromium instance and one
// context. Sessions opened from it share cookies, so a login performed in
// one session is visible to the next.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless          bool
	Timeout           time.Duration
	NavigationRetries int
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	AcceptLanguage    string
	TimezoneID        string
	Locale            string
	ProxyServer       string
	ExtraHeaders      map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:          true,
		Timeout:           15 * time.Second,
		NavigationRetries: 2,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		AcceptLanguage:    "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7",
		TimezoneID:        "Asia/Seoul",
		Locale:            "ko-KR",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
			"--user-agent=" + opts.UserAgent,
		},
		IgnoreDefaultArgs: []string{"--enable-automation"},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	if err := context.AddInitScript(playwright.Script{
		Content: playwright.String(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`),
	}); err != nil {
		logger.Warn("failed to install init script", "error", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: context,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

// NewSession opens a page and wraps it as a Driver. Dialogs raised by the
// page are accepted and queued for WaitDialog.
func (b *Browser) NewSession() (*Session, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	s := &Session{
		page:    page,
		dialogs: make(chan Dialog, 8),
		timeout: b.opts.Timeout,
		retries: b.opts.NavigationRetries,
		logger:  b.logger.With("component", "session"),
	}
	page.OnDialog(s.handleDialog)

	return s, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
