// Package snapshot captures offline page bundles for annotation and
// compilation.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/config"
	"github.com/testscribe/testscribe/internal/domain"
)

// Service captures page snapshots with a real browser.
type Service struct {
	cfg    config.SnapshotConfig
	logger *zap.Logger
}

// NewService creates a snapshot Service.
func NewService(cfg config.SnapshotConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return &Service{cfg: cfg, logger: logger}
}

// CaptureResult bundles a snapshot with its binary artifacts.
type CaptureResult struct {
	Snapshot   *domain.Snapshot
	Screenshot []byte
}

// Capture navigates to rawURL, waits for the network to settle, and walks
// the DOM in-page. Navigation timeouts map to FETCH_TIMEOUT, every other
// navigation failure to FETCH_ERROR.
func (s *Service) Capture(ctx context.Context, rawURL string) (*CaptureResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.cfg.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	defer browser.Close()

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1920, Height: 1080},
	})
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	defer browserCtx.Close()

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}

	start := time.Now()
	if _, err := page.Goto(rawURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(s.cfg.Timeout.Milliseconds())),
	}); err != nil {
		return nil, classifyFetchError(rawURL, err)
	}

	// Late-rendering SPA components need a moment past networkidle.
	page.WaitForTimeout(1000)

	if s.cfg.WaitFor != "" {
		if err := page.Locator(s.cfg.WaitFor).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(s.cfg.Timeout.Milliseconds())),
		}); err != nil {
			return nil, classifyFetchError(rawURL, err)
		}
	}

	raw, err := page.Evaluate(domWalkerScript, map[string]any{
		"maxDepth": s.cfg.MaxDepth,
		"maxNodes": s.cfg.MaxNodes,
	})
	if err != nil {
		return nil, fmt.Errorf("walking DOM: %w", err)
	}
	tree, controls, a11y, stats, err := decodeWalkerResult(raw)
	if err != nil {
		return nil, err
	}

	title, _ := page.Title()
	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("reading page content: %w", err)
	}

	var screenshot []byte
	if s.cfg.Screenshot {
		screenshot, err = page.Screenshot(playwright.PageScreenshotOptions{
			FullPage: playwright.Bool(true),
		})
		if err != nil {
			s.logger.Warn("screenshot failed", zap.String("url", rawURL), zap.Error(err))
			screenshot = nil
		}
	}

	now := time.Now()
	snap := &domain.Snapshot{
		SnapshotID: domain.Timestamp(now) + "_" + Slug(rawURL),
		URL:        rawURL,
		Title:      title,
		CreatedAt:  now.UTC(),
		DomTree:    tree,
		Controls:   controls,
		A11yTree:   a11y,
		HTML:       html,
		Stats:      stats,
	}

	s.logger.Info("captured snapshot",
		zap.String("url", rawURL),
		zap.String("snapshot_id", snap.SnapshotID),
		zap.Int("nodes", stats.NodeCount),
		zap.Int("controls", len(controls)),
		zap.Duration("elapsed", time.Since(start)))

	return &CaptureResult{Snapshot: snap, Screenshot: screenshot}, nil
}

// WalkPage runs the DOM walker script against an already open page. The
// calibration session manager shares this with Capture so both produce the
// same dom_id assignments.
func WalkPage(page playwright.Page, maxDepth, maxNodes int) (*domain.DomNode, []domain.Control, any, domain.SnapshotStats, error) {
	raw, err := page.Evaluate(domWalkerScript, map[string]any{
		"maxDepth": maxDepth,
		"maxNodes": maxNodes,
	})
	if err != nil {
		return nil, nil, nil, domain.SnapshotStats{}, fmt.Errorf("walking DOM: %w", err)
	}
	return decodeWalkerResult(raw)
}

func classifyFetchError(rawURL string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return domain.FetchTimeoutError(rawURL, err)
	}
	return domain.FetchErrorFrom(rawURL, err)
}

type walkerPayload struct {
	DomTree  *domain.DomNode      `json:"dom_tree"`
	Controls []domain.Control     `json:"controls"`
	A11yTree any                  `json:"a11y_tree"`
	Stats    domain.SnapshotStats `json:"stats"`
}

func decodeWalkerResult(raw any) (*domain.DomNode, []domain.Control, any, domain.SnapshotStats, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, nil, nil, domain.SnapshotStats{}, fmt.Errorf("encoding walker result: %w", err)
	}
	var payload walkerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, nil, domain.SnapshotStats{}, fmt.Errorf("decoding walker result: %w", err)
	}
	return payload.DomTree, payload.Controls, payload.A11yTree, payload.Stats, nil
}

// Slug derives a filesystem-safe identifier from a URL's host and path.
func Slug(rawURL string) string {
	u, err := url.Parse(rawURL)
	base := rawURL
	if err == nil && u.Host != "" {
		base = u.Host + u.Path
	}

	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 40 {
		out = strings.Trim(out[:40], "-")
	}
	if out == "" {
		return "page"
	}
	return out
}
