package reputation

import (
	"github.com/AnhTuanDangJT/FinStep-sub000/src/oops"
)

const (
	MinGrade = 0
	MaxGrade = 100
)

const (
	GradeExcellent = "EXCELLENT"
	GradeGood      = "GOOD"
	GradeAverage   = "AVERAGE"
	GradeWeak      = "WEAK"
	GradeSpam      = "SPAM"
)

type gradeBand struct {
	Min   int
	Delta int
	Label string
}

// Ordered from the highest band down; the first band whose Min the grade reaches wins.
var gradeBands = []gradeBand{
	{Min: 90, Delta: 10, Label: GradeExcellent},
	{Min: 75, Delta: 5, Label: GradeGood},
	{Min: 60, Delta: 2, Label: GradeAverage},
	{Min: 40, Delta: -5, Label: GradeWeak},
	{Min: 0, Delta: -20, Label: GradeSpam},
}

// GradeDelta maps an admin grade to the score delta it is worth and its label.
func GradeDelta(grade int) (delta int, label string, err error) {
	if grade < MinGrade || grade > MaxGrade {
		return 0, "", oops.Kinded(oops.KindValidation, nil, "grade must be between %d and %d, got %d", MinGrade, MaxGrade, grade)
	}
	for _, band := range gradeBands {
		if grade >= band.Min {
			return band.Delta, band.Label, nil
		}
	}
	panic("grade bands do not cover the whole grade range")
}
