package app

import (
	"context"
	"fmt"

	"quiz-xp-service/internal/domain"
)

// LevelPolicy selects how the level-up threshold evolves. The displayed
// xp_to_next_level is base*multiplier^(level-1); the legacy level-up loop
// subtracted a flat base instead.
type LevelPolicy string

const (
	// PolicyExponential recomputes base*multiplier^(level-1) on every
	// iteration using the already-incremented level.
	PolicyExponential LevelPolicy = "exponential"
	// PolicyFixed always uses base as the threshold.
	PolicyFixed LevelPolicy = "fixed"
)

// ProgressionRules holds the XP economy.
type ProgressionRules struct {
	BaseXP       int
	Multiplier   float64
	XPPerCorrect int
	Policy       LevelPolicy
}

// DefaultProgressionRules returns the standard XP curve and per-answer award.
func DefaultProgressionRules() ProgressionRules {
	return ProgressionRules{
		BaseXP:       domain.BaseLevelXP,
		Multiplier:   domain.LevelXPMultiplier,
		XPPerCorrect: 10,
		Policy:       PolicyExponential,
	}
}

// Validate rejects rule sets that could never level up or never terminate.
func (r ProgressionRules) Validate() error {
	if r.BaseXP <= 0 {
		return domain.Validation("progression base xp must be positive")
	}
	if r.Multiplier < 1 {
		return domain.Validation("progression multiplier must be >= 1")
	}
	if r.XPPerCorrect < 0 {
		return domain.Validation("xp per correct answer must not be negative")
	}
	switch r.Policy {
	case PolicyExponential, PolicyFixed:
		return nil
	default:
		return domain.Validation("unknown level policy %q", r.Policy)
	}
}

// Threshold is the XP needed to leave the given level under the policy.
func (r ProgressionRules) Threshold(level int) int {
	if r.Policy == PolicyFixed {
		return r.BaseXP
	}
	return domain.ScaledThreshold(r.BaseXP, r.Multiplier, level)
}

// LevelOutcome describes what one award did to a stat row.
type LevelOutcome struct {
	XPEarned  int
	OldLevel  int
	NewLevel  int
	LeveledUp bool
	Stat      domain.UserStat
}

// Progression converts correct answers into XP and levels.
type Progression struct {
	rules ProgressionRules
}

// NewProgression applies rules when sessions are completed.
func NewProgression(rules ProgressionRules) *Progression {
	return &Progression{rules: rules}
}

// Rules returns the rules p was built with.
func (p *Progression) Rules() ProgressionRules { return p.rules }

// Apply adds XP for correct answers to the stat and runs the level-up loop.
func (p *Progression) Apply(stat domain.UserStat, correct int) (domain.UserStat, LevelOutcome) {
	if stat.Level < 1 {
		stat.Level = 1
	}
	if correct < 0 {
		correct = 0
	}
	earned := correct * p.rules.XPPerCorrect
	out := LevelOutcome{XPEarned: earned, OldLevel: stat.Level}

	stat.XP += earned
	for {
		threshold := p.rules.Threshold(stat.Level)
		if threshold <= 0 || stat.XP < threshold {
			break
		}
		stat.XP -= threshold
		stat.Level++
	}

	out.NewLevel = stat.Level
	out.LeveledUp = out.NewLevel > out.OldLevel
	out.Stat = stat
	return stat, out
}

// Award applies a completed session to the (user, category) stat row and the
// user aggregate through repo, which is expected to be transactional.
func (p *Progression) Award(ctx context.Context, repo Repository, userID, categoryID int64, correct, answered int) (LevelOutcome, error) {
	stat, ok, err := repo.GetStat(ctx, userID, categoryID)
	if err != nil {
		return LevelOutcome{}, fmt.Errorf("load stat: %w", err)
	}
	if !ok {
		stat = domain.NewUserStat(userID, categoryID)
	}

	stat.TotalAnswered += answered
	stat.CorrectAnswers += correct
	stat, out := p.Apply(stat, correct)

	if err := repo.SaveStat(ctx, stat); err != nil {
		return LevelOutcome{}, fmt.Errorf("save stat: %w", err)
	}
	if err := repo.AddUserProgress(ctx, userID, out.XPEarned, out.NewLevel-out.OldLevel); err != nil {
		return LevelOutcome{}, fmt.Errorf("update user progress: %w", err)
	}
	return out, nil
}
