package reputation

import (
	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
)

type levelThreshold struct {
	MinApproved int
	Level       models.CredibilityLevel
}

var levelThresholds = []levelThreshold{
	{MinApproved: 15, Level: models.LevelTrusted},
	{MinApproved: 5, Level: models.LevelEstablished},
	{MinApproved: 1, Level: models.LevelContributor},
	{MinApproved: 0, Level: models.LevelNewcomer},
}

// LevelForApprovedCount derives an author's credibility level from how many of their
// posts are approved.
func LevelForApprovedCount(approved int) models.CredibilityLevel {
	for _, t := range levelThresholds {
		if approved >= t.MinApproved {
			return t.Level
		}
	}
	return models.LevelNewcomer
}
