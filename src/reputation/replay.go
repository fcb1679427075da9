package reputation

import (
	"github.com/AnhTuanDangJT/FinStep-sub000/src/models"
)

type ReplayReport struct {
	SubjectEmail  string
	InitialScore  int
	ReplayedScore int
	CurrentScore  int
	Entries       int

	// IDs of entries whose PreviousScore did not match the running total, or whose
	// NewScore is not PreviousScore + Delta.
	BrokenEntries []int64
}

func (r ReplayReport) Consistent() bool {
	return r.ReplayedScore == r.CurrentScore && len(r.BrokenEntries) == 0
}

// Replay sums a subject's ledger, oldest first, onto the account's initial score.
func Replay(account *models.Account, entries []*models.LedgerEntry) ReplayReport {
	report := ReplayReport{
		SubjectEmail: account.Email,
		InitialScore: account.InitialScore,
		CurrentScore: account.Score,
		Entries:      len(entries),
	}

	score := account.InitialScore
	for _, e := range entries {
		if e.PreviousScore != score || e.NewScore != e.PreviousScore+e.Delta {
			report.BrokenEntries = append(report.BrokenEntries, e.ID)
		}
		score += e.Delta
	}
	report.ReplayedScore = score

	return report
}
