package services

import "yams-sync/models"

// MergeProfiles resolves a conflict between the local and remote copy of a
// profile. Presentation fields follow the local copy; cumulative counters
// take the element-wise maximum so progress never regresses through a merge;
// lastPlayed takes the later and createdAt the earlier timestamp. The derived
// averageScore is recomputed from the merged totals.
//
// Max is applied even when both devices recorded different games offline, so
// totals can differ from what summing both sides would give.
func MergeProfiles(local, remote models.PlayerProfile) models.PlayerProfile {
	m := local

	m.Level = max(local.Level, remote.Level)
	m.XP = max(local.XP, remote.XP)
	m.TotalXP = max(local.TotalXP, remote.TotalXP)

	m.GamesPlayed = max(local.GamesPlayed, remote.GamesPlayed)
	m.GamesWon = max(local.GamesWon, remote.GamesWon)
	m.TotalScore = max(local.TotalScore, remote.TotalScore)
	m.BestScore = max(local.BestScore, remote.BestScore)
	m.YamsScored = max(local.YamsScored, remote.YamsScored)
	m.BonusEarned = max(local.BonusEarned, remote.BonusEarned)
	m.WinsByDifficulty = models.DifficultyWins{
		Easy:   max(local.WinsByDifficulty.Easy, remote.WinsByDifficulty.Easy),
		Normal: max(local.WinsByDifficulty.Normal, remote.WinsByDifficulty.Normal),
		Hard:   max(local.WinsByDifficulty.Hard, remote.WinsByDifficulty.Hard),
	}
	m.CurrentWinStreak = max(local.CurrentWinStreak, remote.CurrentWinStreak)
	m.BestWinStreak = max(local.BestWinStreak, remote.BestWinStreak)
	m.AverageScore = models.AverageScore(m.TotalScore, m.GamesPlayed)

	if remote.LastPlayed.After(local.LastPlayed) {
		m.LastPlayed = remote.LastPlayed
	}
	if !remote.CreatedAt.IsZero() && (m.CreatedAt.IsZero() || remote.CreatedAt.Before(m.CreatedAt)) {
		m.CreatedAt = remote.CreatedAt
	}
	return m
}
