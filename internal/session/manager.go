// Package session manages interactive calibration sessions: headed browser
// pages a user can inspect while picking elements, synced on demand and
// persistable as regular snapshots.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/config"
	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/observability"
	"github.com/testscribe/testscribe/internal/snapshot"
)

// Manager owns the live sessions and the shared headed browser.
type Manager struct {
	cfg     config.SessionConfig
	walkCfg config.SnapshotConfig
	store   *snapshot.Store
	metrics *observability.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*liveSession
	pw       *playwright.Playwright
	browser  playwright.Browser
	closed   bool

	now  func() time.Time
	done chan struct{}
}

type liveSession struct {
	id         string
	url        string
	createdAt  time.Time
	lastUsed   time.Time
	browserCtx playwright.BrowserContext
	page       playwright.Page

	// serializes page operations within one session
	mu sync.Mutex
}

// Info is the wire description of one session.
type Info struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
	LastUsed  string `json:"last_used"`
}

// DOMState is the result of a DOM sync.
type DOMState struct {
	SessionID string               `json:"session_id"`
	URL       string               `json:"url"`
	Title     string               `json:"title"`
	DomTree   *domain.DomNode      `json:"dom_tree,omitempty"`
	Controls  []domain.Control     `json:"controls,omitempty"`
	Stats     domain.SnapshotStats `json:"stats"`
}

// PersistResult names the snapshot written from a live session.
type PersistResult struct {
	SnapshotToken string `json:"snapshot_token"`
	Dir           string `json:"dir"`
}

// NewManager creates a session Manager and starts its idle reaper.
func NewManager(cfg config.SessionConfig, walkCfg config.SnapshotConfig, store *snapshot.Store, metrics *observability.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	m := &Manager{
		cfg:      cfg,
		walkCfg:  walkCfg,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[string]*liveSession),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Create opens a headed page on rawURL and registers it as a new session.
func (m *Manager) Create(ctx context.Context, rawURL string) (*Info, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, domain.MissingFieldError("url")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("session manager is closed")
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, domain.SessionLimitError(m.cfg.MaxSessions)
	}
	if err := m.ensureBrowserLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	browserCtx, err := m.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: m.cfg.ViewportWidth, Height: m.cfg.ViewportHeight},
	})
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		m.mu.Unlock()
		return nil, fmt.Errorf("creating page: %w", err)
	}

	now := m.now()
	s := &liveSession{
		id:         uuid.NewString(),
		url:        rawURL,
		createdAt:  now,
		lastUsed:   now,
		browserCtx: browserCtx,
		page:       page,
	}
	m.sessions[s.id] = s
	m.updateGaugeLocked()
	m.mu.Unlock()

	if _, err := page.Goto(rawURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(m.walkCfg.Timeout.Milliseconds())),
	}); err != nil {
		m.CloseSession(s.id)
		if strings.Contains(strings.ToLower(err.Error()), "timeout") {
			return nil, domain.FetchTimeoutError(rawURL, err)
		}
		return nil, domain.FetchErrorFrom(rawURL, err)
	}

	m.logger.Info("session created",
		zap.String("session_id", s.id),
		zap.String("url", rawURL))
	return m.info(s), nil
}

// SyncDOM re-walks the live page and returns the fresh tree. Highlights are
// cleared first so the sync reflects the page itself.
func (m *Manager) SyncDOM(ctx context.Context, id string) (*DOMState, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.page.Evaluate(clearHighlightsScript); err != nil {
		m.logger.Warn("clearing highlights failed", zap.String("session_id", id), zap.Error(err))
	}
	tree, controls, _, stats, err := snapshot.WalkPage(s.page, m.walkCfg.MaxDepth, m.walkCfg.MaxNodes)
	if err != nil {
		return nil, domain.FetchErrorFrom(s.page.URL(), err)
	}
	title, _ := s.page.Title()

	return &DOMState{
		SessionID: id,
		URL:       s.page.URL(),
		Title:     title,
		DomTree:   tree,
		Controls:  controls,
		Stats:     stats,
	}, nil
}

// Highlight toggles the outline on the element with the given dom_id.
func (m *Manager) Highlight(ctx context.Context, id, domID, action string) error {
	if action != "show" && action != "hide" {
		return domain.InvalidRequestError(fmt.Sprintf("action must be show or hide (got %q)", action))
	}
	if domID == "" {
		return domain.MissingFieldError("dom_id")
	}

	s, err := m.get(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.page.Evaluate(highlightScript, map[string]any{
		"domId":  domID,
		"action": action,
	})
	if err != nil {
		return domain.FetchErrorFrom(s.page.URL(), err)
	}
	if result, ok := raw.(map[string]any); ok {
		if found, _ := result["found"].(bool); !found {
			return domain.InvalidRequestError(fmt.Sprintf("dom_id %s not present on page", domID)).
				WithDetail("dom_id", domID)
		}
	}
	return nil
}

// PersistSnapshot freezes the live page into a regular snapshot bundle and
// returns its token.
func (m *Manager) PersistSnapshot(ctx context.Context, id string) (*PersistResult, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.page.Evaluate(clearHighlightsScript); err != nil {
		m.logger.Warn("clearing highlights failed", zap.String("session_id", id), zap.Error(err))
	}
	tree, controls, a11y, stats, err := snapshot.WalkPage(s.page, m.walkCfg.MaxDepth, m.walkCfg.MaxNodes)
	if err != nil {
		return nil, domain.FetchErrorFrom(s.page.URL(), err)
	}
	title, _ := s.page.Title()
	html, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("reading page content: %w", err)
	}

	var screenshot []byte
	if m.walkCfg.Screenshot {
		screenshot, err = s.page.Screenshot(playwright.PageScreenshotOptions{
			FullPage: playwright.Bool(true),
		})
		if err != nil {
			m.logger.Warn("screenshot failed", zap.String("session_id", id), zap.Error(err))
			screenshot = nil
		}
	}

	now := m.now()
	pageURL := s.page.URL()
	snap := &domain.Snapshot{
		SnapshotID: domain.Timestamp(now) + "_" + snapshot.Slug(pageURL),
		URL:        pageURL,
		Title:      title,
		CreatedAt:  now.UTC(),
		DomTree:    tree,
		Controls:   controls,
		A11yTree:   a11y,
		HTML:       html,
		Stats:      stats,
	}
	dir, err := m.store.Save(&snapshot.CaptureResult{Snapshot: snap, Screenshot: screenshot})
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordSnapshot("error")
		}
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.RecordSnapshot("success")
	}

	m.logger.Info("session snapshot persisted",
		zap.String("session_id", id),
		zap.String("snapshot_token", snap.SnapshotID))
	return &PersistResult{SnapshotToken: snap.SnapshotID, Dir: dir}, nil
}

// CloseSession closes one session's browser context and frees its slot.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return domain.SessionNotFoundError(id)
	}
	delete(m.sessions, id)
	m.updateGaugeLocked()
	m.mu.Unlock()

	closeQuietly(s)
	m.logger.Info("session closed", zap.String("session_id", id))
	return nil
}

// List returns every live session ordered by creation time.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *m.info(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// ReapIdle closes sessions idle longer than the configured timeout and
// returns how many were closed.
func (m *Manager) ReapIdle(now time.Time) int {
	m.mu.Lock()
	var expired []*liveSession
	for id, s := range m.sessions {
		if now.Sub(s.lastUsed) > m.cfg.IdleTimeout {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.updateGaugeLocked()
	m.mu.Unlock()

	for _, s := range expired {
		closeQuietly(s)
		m.logger.Info("idle session reaped",
			zap.String("session_id", s.id),
			zap.Time("last_used", s.lastUsed))
	}
	return len(expired)
}

// Close shuts down the reaper, every session and the shared browser.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)

	sessions := make([]*liveSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*liveSession)
	m.updateGaugeLocked()
	browser, pw := m.browser, m.pw
	m.browser, m.pw = nil, nil
	m.mu.Unlock()

	for _, s := range sessions {
		closeQuietly(s)
	}
	if browser != nil {
		browser.Close()
	}
	if pw != nil {
		pw.Stop()
	}
	return nil
}

func (m *Manager) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.ReapIdle(m.now())
		}
	}
}

// ensureBrowserLocked lazily starts the shared headed browser. Callers hold
// m.mu.
func (m *Manager) ensureBrowserLocked() error {
	if m.browser != nil {
		return nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("starting playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(false),
	})
	if err != nil {
		pw.Stop()
		return fmt.Errorf("launching browser: %w", err)
	}
	m.pw = pw
	m.browser = browser
	return nil
}

func (m *Manager) get(id string) (*liveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.SessionNotFoundError(id)
	}
	s.lastUsed = m.now()
	return s, nil
}

func (m *Manager) info(s *liveSession) *Info {
	return &Info{
		SessionID: s.id,
		URL:       s.url,
		CreatedAt: s.createdAt.UTC().Format(time.RFC3339),
		LastUsed:  s.lastUsed.UTC().Format(time.RFC3339),
	}
}

func (m *Manager) updateGaugeLocked() {
	if m.metrics != nil {
		m.metrics.SessionsActive.Set(float64(len(m.sessions)))
	}
}

func closeQuietly(s *liveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browserCtx != nil {
		s.browserCtx.Close()
		s.browserCtx = nil
		s.page = nil
	}
}
