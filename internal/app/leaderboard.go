package app

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"quiz-xp-service/internal/domain"
)

const (
	DefaultGlobalLimit   = 50
	DefaultCategoryLimit = 10
)

// RankedEntry is a leaderboard row with its rank (count strictly greater + 1).
type RankedEntry struct {
	domain.LeaderboardEntry
	Rank int `json:"rank"`
}

// CategoryBoard is the top list of one active category.
type CategoryBoard struct {
	Category domain.Category `json:"category"`
	Entries  []RankedEntry   `json:"entries"`
}

// Standing is a stat row with its derived attributes.
type Standing struct {
	domain.UserStat
	Accuracy      float64 `json:"accuracy"`
	XPToNextLevel int     `json:"xpToNextLevel"`
	Rank          int     `json:"rank"`
}

// LeaderboardService ranks users by XP globally and per category.
type LeaderboardService struct {
	store         Store
	catalog       Catalog
	ranks         RankIndex
	rules         ProgressionRules
	globalLimit   int
	categoryLimit int
}

// NewLeaderboardService builds the service; ranks may be nil.
func NewLeaderboardService(store Store, catalog Catalog, ranks RankIndex, rules ProgressionRules, globalLimit, categoryLimit int) *LeaderboardService {
	if globalLimit <= 0 {
		globalLimit = DefaultGlobalLimit
	}
	if categoryLimit <= 0 {
		categoryLimit = DefaultCategoryLimit
	}
	return &LeaderboardService{
		store:         store,
		catalog:       catalog,
		ranks:         ranks,
		rules:         rules,
		globalLimit:   globalLimit,
		categoryLimit: categoryLimit,
	}
}

// Global returns the top stat rows across all categories.
func (s *LeaderboardService) Global(ctx context.Context) ([]RankedEntry, error) {
	return s.top(ctx, 0, s.globalLimit)
}

// ByCategory returns the top rows of every active category.
func (s *LeaderboardService) ByCategory(ctx context.Context) ([]CategoryBoard, error) {
	categories, err := s.catalog.ListActiveCategories(ctx)
	if err != nil {
		return nil, err
	}
	boards := make([]CategoryBoard, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range categories {
		i, c := i, c
		g.Go(func() error {
			entries, err := s.top(gctx, c.ID, s.categoryLimit)
			if err != nil {
				return err
			}
			boards[i] = CategoryBoard{Category: c.Category, Entries: entries}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return boards, nil
}

// Rank returns the user's rank in a category, or globally when categoryID is 0.
// Globally the user's best stat row is ranked against every stat row.
func (s *LeaderboardService) Rank(ctx context.Context, userID, categoryID int64) (int, error) {
	var stat domain.UserStat
	err := s.store.View(ctx, func(ctx context.Context, repo Repository) error {
		if categoryID != 0 {
			found, ok, err := repo.GetStat(ctx, userID, categoryID)
			if err != nil {
				return err
			}
			if ok {
				stat = found
			} else {
				stat = domain.NewUserStat(userID, categoryID)
			}
			return nil
		}
		stats, err := repo.ListStats(ctx, userID)
		if err != nil {
			return err
		}
		stat = bestStat(userID, stats)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return s.rankOf(ctx, categoryID, stat)
}

// Standings lists the user's per-category stats with accuracy, XP to next level and rank.
func (s *LeaderboardService) Standings(ctx context.Context, userID int64) ([]Standing, error) {
	var stats []domain.UserStat
	err := s.store.View(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		stats, err = repo.ListStats(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Standing, 0, len(stats))
	for _, stat := range stats {
		rank, err := s.rankOf(ctx, stat.CategoryID, stat)
		if err != nil {
			return nil, err
		}
		out = append(out, Standing{
			UserStat:      stat,
			Accuracy:      domain.Accuracy(stat),
			XPToNextLevel: s.rules.Threshold(stat.Level),
			Rank:          rank,
		})
	}
	return out, nil
}

func (s *LeaderboardService) rankOf(ctx context.Context, categoryID int64, stat domain.UserStat) (int, error) {
	if s.ranks != nil && stat.XP > 0 {
		rank, ok, err := s.indexedRank(ctx, categoryID, stat)
		if err == nil && ok {
			return rank, nil
		}
		if err != nil {
			log.Warn().Err(err).Int64("user_id", stat.UserID).Msg("rank index unavailable, falling back to store")
		}
	}
	var above int
	err := s.store.View(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		above, err = repo.CountStatsAbove(ctx, categoryID, stat.XP)
		return err
	})
	if err != nil {
		return 0, err
	}
	return above + 1, nil
}

// indexedRank trusts the index only when it holds exactly as many members as
// the store has stat rows in the scope. A mismatch rebuilds the scope and
// leaves this call to the store.
func (s *LeaderboardService) indexedRank(ctx context.Context, categoryID int64, stat domain.UserStat) (int, bool, error) {
	var rows int
	err := s.store.View(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		rows, err = repo.CountStatsAbove(ctx, categoryID, -1)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	size, err := s.ranks.Size(ctx, categoryID)
	if err != nil {
		return 0, false, err
	}
	if size != rows {
		log.Info().Int64("category_id", categoryID).Int("indexed", size).Int("stored", rows).Msg("rank index out of sync, rebuilding")
		return 0, false, s.rebuildScope(ctx, categoryID)
	}
	return s.ranks.Rank(ctx, categoryID, stat)
}

// RebuildRankIndex reloads the global scope and every category scope that has
// stat rows from the store. It is a no-op without a rank index.
func (s *LeaderboardService) RebuildRankIndex(ctx context.Context) error {
	if s.ranks == nil {
		return nil
	}
	stats, err := s.scopeStats(ctx, 0)
	if err != nil {
		return err
	}
	if err := s.ranks.Rebuild(ctx, 0, stats); err != nil {
		return err
	}
	byCategory := make(map[int64][]domain.UserStat)
	for _, stat := range stats {
		byCategory[stat.CategoryID] = append(byCategory[stat.CategoryID], stat)
	}
	for categoryID, rows := range byCategory {
		if err := s.ranks.Rebuild(ctx, categoryID, rows); err != nil {
			return err
		}
	}
	log.Info().Int("stats", len(stats)).Int("categories", len(byCategory)).Msg("rank index rebuilt")
	return nil
}

func (s *LeaderboardService) rebuildScope(ctx context.Context, categoryID int64) error {
	stats, err := s.scopeStats(ctx, categoryID)
	if err != nil {
		return err
	}
	return s.ranks.Rebuild(ctx, categoryID, stats)
}

func (s *LeaderboardService) scopeStats(ctx context.Context, categoryID int64) ([]domain.UserStat, error) {
	var entries []domain.LeaderboardEntry
	err := s.store.View(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		entries, err = repo.TopStats(ctx, categoryID, 0)
		return err
	})
	if err != nil {
		return nil, err
	}
	stats := make([]domain.UserStat, len(entries))
	for i, e := range entries {
		stats[i] = domain.UserStat{UserID: e.UserID, CategoryID: e.CategoryID, XP: e.XP, Level: e.Level}
	}
	return stats, nil
}

func (s *LeaderboardService) top(ctx context.Context, categoryID int64, limit int) ([]RankedEntry, error) {
	var entries []domain.LeaderboardEntry
	err := s.store.View(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		entries, err = repo.TopStats(ctx, categoryID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rankEntries(entries), nil
}

// rankEntries assigns count-strictly-greater + 1 ranks to an xp-desc list.
func rankEntries(entries []domain.LeaderboardEntry) []RankedEntry {
	out := make([]RankedEntry, len(entries))
	for i, e := range entries {
		rank := i + 1
		if i > 0 && e.XP == entries[i-1].XP {
			rank = out[i-1].Rank
		}
		out[i] = RankedEntry{LeaderboardEntry: e, Rank: rank}
	}
	return out
}

func bestStat(userID int64, stats []domain.UserStat) domain.UserStat {
	best := domain.NewUserStat(userID, 0)
	for i, stat := range stats {
		if i == 0 || stat.XP > best.XP {
			best = stat
		}
	}
	return best
}
