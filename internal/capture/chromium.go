package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"

	"evsched/internal/config"
	appLog "evsched/internal/log"
)

// Default capture parameters for the schedule page.
const (
	DefaultWidth   = 1280
	DefaultHeight  = 960
	DefaultTimeout = 30 * time.Second
)

// ReadySelector matches the element the schedule page marks as rendered.
const ReadySelector = `[data-ready="true"]`

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/".
	URL string

	// OutputPath is where the PNG screenshot is written.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture. If zero, DefaultTimeout is used.
	Timeout time.Duration

	// Username and Password are sent as HTTP Basic Auth credentials when set.
	Username string
	Password string
}

// OptionsFromConfig builds capture options for the schedule page served
// according to cfg.
func OptionsFromConfig(cfg *config.Config, outputPath string) Options {
	opts := Options{
		URL:        "http://" + cfg.Listen + "/",
		OutputPath: outputPath,
		Width:      cfg.Snapshot.Width,
		Height:     cfg.Snapshot.Height,
		Timeout:    cfg.Snapshot.Timeout,
	}
	if cfg.BasicAuth != nil {
		opts.Username = cfg.BasicAuth.Username
		opts.Password = cfg.BasicAuth.Password
	}
	return opts
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// SchedulePNG launches a headless Chromium via chromedp, opens opts.URL,
// waits until the page exposes data-ready="true" and writes a full-page
// PNG screenshot to opts.OutputPath.
func SchedulePNG(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	url := opts.URL
	if opts.Username != "" && opts.Password != "" {
		authed, err := withUserinfo(url, opts.Username, opts.Password)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		url = authed
	}

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(url),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		// Small extra delay to allow final paints.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	start := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	appLog.Info("schedule snapshot written",
		"path", opts.OutputPath,
		"bytes", len(png),
		"elapsed", time.Since(start).String(),
	)
	return nil
}
