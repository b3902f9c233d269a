package domain

import "math"

const (
	// BaseLevelXP is the XP needed to leave level 1.
	BaseLevelXP = 1000
	// LevelXPMultiplier grows the threshold for each following level.
	LevelXPMultiplier = 1.2
)

// LevelThreshold is floor(1000 * 1.2^(level-1)).
func LevelThreshold(level int) int {
	return ScaledThreshold(BaseLevelXP, LevelXPMultiplier, level)
}

// ScaledThreshold is floor(base * multiplier^(level-1)); levels below 1 count as 1.
func ScaledThreshold(base int, multiplier float64, level int) int {
	if level < 1 {
		level = 1
	}
	v := float64(base) * math.Pow(multiplier, float64(level-1))
	// 1000*1.2^n is not exact in float64
	return int(math.Floor(v + 1e-9))
}

// XPToNextLevel is the threshold of the stat's current level.
func XPToNextLevel(s UserStat) int {
	return LevelThreshold(s.Level)
}

// Accuracy is correct/total rounded to two decimals, 0 when nothing was answered.
// It is a ratio in [0, 1], not a percentage.
func Accuracy(s UserStat) float64 {
	if s.TotalAnswered == 0 {
		return 0
	}
	return math.Round(float64(s.CorrectAnswers)/float64(s.TotalAnswered)*100) / 100
}

// Score is round(100 * correct / total) clamped to [0,100]; total <= 0 scores 0.
func Score(correct, total int) int {
	if total <= 0 || correct <= 0 {
		return 0
	}
	if correct > total {
		correct = total
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}
