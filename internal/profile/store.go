// Package profile persists per-site alias knowledge.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/storage"
)

// Store reads and merges site profile files. Only the store writes
// profiles; compiles read freely.
type Store struct {
	logger *zap.Logger
}

// NewStore creates a Store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return &Store{logger: logger}
}

// Load reads a site profile, failing with INVALID_PROFILE when the
// top-level pages field is missing or not a list.
func (s *Store) Load(path string) (*domain.SiteProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	var shape struct {
		Pages json.RawMessage `json:"pages"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, domain.InvalidProfileError(path, fmt.Sprintf("profile is not valid JSON: %v", err))
	}
	var pages []json.RawMessage
	if shape.Pages == nil || json.Unmarshal(shape.Pages, &pages) != nil {
		return nil, domain.InvalidProfileError(path, "profile must contain a 'pages' array")
	}

	var profile domain.SiteProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, domain.InvalidProfileError(path, fmt.Sprintf("unexpected profile shape: %v", err))
	}
	return &profile, nil
}

// MergeOptions tunes a MergePage call.
type MergeOptions struct {
	SiteName string
	BaseURL  string
	DryRun   bool
}

// MergeResult reports what a merge did.
type MergeResult struct {
	OutputPath     string
	CreatedNewFile bool
	PageID         string
	Warnings       []string
	Profile        *domain.SiteProfile
}

// MergePage folds an annotated page into the profile at path, creating the
// file when absent. An existing entry for the same page id is snapshotted
// into its history before being replaced, so history never shrinks.
func (s *Store) MergePage(path string, annotated *domain.AnnotatedPage, opts MergeOptions) (*MergeResult, error) {
	now := domain.Timestamp(time.Now())

	var profile *domain.SiteProfile
	createdNew := false
	if _, err := os.Stat(path); err == nil {
		profile, err = s.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		profile = &domain.SiteProfile{Version: now, Pages: []*domain.SitePage{}}
		createdNew = true
	}

	if opts.SiteName != "" || opts.BaseURL != "" {
		if profile.Site == nil {
			profile.Site = &domain.SiteInfo{}
		}
		if profile.Site.Name == "" {
			profile.Site.Name = opts.SiteName
		}
		if profile.Site.BaseURL == "" {
			profile.Site.BaseURL = opts.BaseURL
		}
	}

	entry := buildPageEntry(annotated, now)

	existing := profile.FindPage(annotated.Page.ID)
	if existing == nil {
		profile.Pages = append(profile.Pages, entry)
	} else {
		snapshot := *existing
		snapshot.History = nil
		history := append(existing.History, snapshot)
		*existing = *entry
		existing.History = history
	}

	profile.Version = now

	if !opts.DryRun {
		if err := storage.WriteJSON(path, profile); err != nil {
			return nil, domain.ProfileWriteError(path, err)
		}
	}

	s.logger.Info("merged page into profile",
		zap.String("path", path),
		zap.String("page_id", annotated.Page.ID),
		zap.Bool("created_new", createdNew),
		zap.Int("warnings", len(annotated.Warnings)))

	return &MergeResult{
		OutputPath:     path,
		CreatedNewFile: createdNew,
		PageID:         annotated.Page.ID,
		Warnings:       annotated.Warnings,
		Profile:        profile,
	}, nil
}

func buildPageEntry(annotated *domain.AnnotatedPage, timestamp string) *domain.SitePage {
	entry := annotated.Page
	entry.Version = timestamp
	entry.GeneratedAt = timestamp
	entry.GeneratedBy = "testscribe-profile"
	return &entry
}
