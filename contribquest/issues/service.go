package issues

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sahilm/fuzzy"

	"github.com/contribquest/contribquest/contribquest/database/models"
	"github.com/contribquest/contribquest/contribquest/database/repositories"
)

const (
	cacheSize          = 256
	defaultCacheExpiry = 30 * time.Second
	suggestionLimit    = 10
)

// Service is the read side of the issue catalog: listing, filtering and
// search on top of the issue repository, with a short-lived page cache.
type Service struct {
	repo        repositories.IssueRepository
	cache       *lru.Cache
	cacheExpiry time.Duration
}

func NewService(repo repositories.IssueRepository) *Service {
	cache, _ := lru.New(cacheSize)
	return &Service{
		repo:        repo,
		cache:       cache,
		cacheExpiry: defaultCacheExpiry,
	}
}

// Page is one page of catalog results.
type Page struct {
	Issues     []*models.Issue `json:"issues"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

type cachedPage struct {
	page     *Page
	cachedAt time.Time
}

// Get returns a single issue by ID.
func (s *Service) Get(ctx context.Context, issueID int64) (*models.Issue, error) {
	return s.repo.GetByID(ctx, issueID)
}

// Create inserts a new issue into the catalog. An unset difficulty is
// inferred from the issue labels.
func (s *Service) Create(ctx context.Context, issue *models.Issue) error {
	if issue.DifficultyLevel == "" || issue.DifficultyLevel == models.DifficultyUnknown {
		issue.DifficultyLevel = InferDifficulty(issue.Labels)
	}
	if issue.Status == "" {
		issue.Status = models.IssueStatusAvailable
	}
	return s.repo.Insert(ctx, issue)
}

// List returns a filtered page of issues. Identical queries are served from
// the cache for a short window to keep browse traffic off the database.
func (s *Service) List(ctx context.Context, filters repositories.SearchFilters, p repositories.Pagination) (*Page, error) {
	key := pageKey(filters, p)
	if entry, ok := s.cache.Get(key); ok {
		if cached, ok := entry.(cachedPage); ok && time.Since(cached.cachedAt) < s.cacheExpiry {
			return cached.page, nil
		}
		s.cache.Remove(key)
	}

	issues, total, err := s.repo.List(ctx, filters, p)
	if err != nil {
		return nil, err
	}

	page := buildPage(issues, total, p)
	s.cache.Add(key, cachedPage{page: page, cachedAt: time.Now()})
	return page, nil
}

// Expiring returns claimed issues whose deadline falls within the window.
func (s *Service) Expiring(ctx context.Context, window time.Duration, limit int) ([]*models.Issue, error) {
	if limit <= 0 || limit > repositories.MaxPageSize {
		limit = repositories.DefaultPageSize
	}
	now := time.Now()
	return s.repo.FindExpiring(ctx, now, now.Add(window), limit)
}

// FilterOptions returns the distinct languages, labels and difficulties
// present in the catalog, for populating filter UIs.
func (s *Service) FilterOptions(ctx context.Context) (*repositories.FilterOptions, error) {
	const key = "filter_options"
	if entry, ok := s.cache.Get(key); ok {
		if cached, ok := entry.(cachedOptions); ok && time.Since(cached.cachedAt) < s.cacheExpiry {
			return cached.options, nil
		}
		s.cache.Remove(key)
	}

	options, err := s.repo.FilterOptions(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.Add(key, cachedOptions{options: options, cachedAt: time.Now()})
	return options, nil
}

type cachedOptions struct {
	options  *repositories.FilterOptions
	cachedAt time.Time
}

// issueSearchItems implements fuzzy.Source over issue titles.
type issueSearchItems []*models.Issue

func (s issueSearchItems) String(i int) string { return strings.ToLower(s[i].Title) }
func (s issueSearchItems) Len() int            { return len(s) }

// Suggest ranks the issues matching the query by fuzzy title relevance. It
// searches within the filtered result set, so suggestions respect whatever
// language or label filters the caller already applied.
func (s *Service) Suggest(ctx context.Context, query string, filters repositories.SearchFilters) ([]*models.Issue, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	// The fuzzy pass works over a wider candidate page than the usual list
	// size so a good match on page three still surfaces.
	filters.Query = ""
	candidates, _, err := s.repo.List(ctx, filters, repositories.Pagination{Page: 1, PageSize: 100})
	if err != nil {
		return nil, err
	}

	matches := fuzzy.FindFrom(query, issueSearchItems(candidates))
	if len(matches) > suggestionLimit {
		matches = matches[:suggestionLimit]
	}

	results := make([]*models.Issue, len(matches))
	for i, match := range matches {
		results[i] = candidates[match.Index]
	}
	return results, nil
}

// difficultyLabels maps common issue label spellings to a difficulty level.
var difficultyLabels = map[string]models.DifficultyLevel{
	"easy":             models.DifficultyEasy,
	"beginner":         models.DifficultyEasy,
	"good first issue": models.DifficultyEasy,
	"starter":          models.DifficultyEasy,
	"medium":           models.DifficultyMedium,
	"intermediate":     models.DifficultyMedium,
	"moderate":         models.DifficultyMedium,
	"hard":             models.DifficultyHard,
	"difficult":        models.DifficultyHard,
	"advanced":         models.DifficultyHard,
	"expert":           models.DifficultyHard,
}

// InferDifficulty derives a difficulty level from issue labels. The hardest
// matching label wins; no matching label means unknown.
func InferDifficulty(labels []string) models.DifficultyLevel {
	best := models.DifficultyUnknown
	rank := map[models.DifficultyLevel]int{
		models.DifficultyUnknown: 0,
		models.DifficultyEasy:    1,
		models.DifficultyMedium:  2,
		models.DifficultyHard:    3,
	}
	for _, label := range labels {
		normalized := strings.ToLower(strings.TrimSpace(label))
		normalized = strings.ReplaceAll(normalized, "-", " ")
		if level, ok := difficultyLabels[normalized]; ok && rank[level] > rank[best] {
			best = level
		}
	}
	return best
}

func buildPage(issues []*models.Issue, total int, p repositories.Pagination) *Page {
	pageNum := p.Page
	if pageNum < 1 {
		pageNum = 1
	}
	size := p.PageSize
	if size <= 0 {
		size = repositories.DefaultPageSize
	}
	totalPages := (total + size - 1) / size
	return &Page{
		Issues:     issues,
		Total:      total,
		Page:       pageNum,
		PageSize:   size,
		TotalPages: totalPages,
	}
}

func pageKey(f repositories.SearchFilters, p repositories.Pagination) string {
	return fmt.Sprintf("list|%s|%s|%s|%s|%s|%d|%d|%d",
		strings.Join(f.Languages, ","),
		strings.Join(f.Labels, ","),
		joinDifficulties(f.Difficulties),
		f.Status,
		strings.ToLower(f.Query),
		f.RepositoryID,
		p.Page,
		p.PageSize)
}

func joinDifficulties(levels []models.DifficultyLevel) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = string(l)
	}
	return strings.Join(parts, ",")
}
