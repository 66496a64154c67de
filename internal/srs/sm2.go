package srs

import (
	"math"
	"time"

	"github.com/kastelov/lexitrain/internal/store"
)

// Quality is the SM-2 response quality grade.
type Quality int

const (
	QualityWrong Quality = 0
	QualityModel Quality = 3
	QualityFuzzy Quality = 4
	QualityExact Quality = 5
)

// QualityFor maps a grading outcome to its quality grade. Cheaper validation
// levels indicate stronger recall.
func QualityFor(correct bool, method store.Method) Quality {
	if !correct {
		return QualityWrong
	}
	switch method {
	case store.MethodExact:
		return QualityExact
	case store.MethodFuzzy:
		return QualityFuzzy
	default:
		return QualityModel
	}
}

// Update is the scheduling outcome of one review.
type Update struct {
	IntervalDays int
	EF           float64
	NextReviewAt time.Time
}

// Review applies the SM-2 algorithm to one answer. intervalDays and ef are
// the card's values before the review; minEF bounds the easiness factor from
// below.
//
// A failed review resets the interval to one day and lowers the easiness
// factor by 0.2. A passed review grows the interval 1, 6, then
// round(interval * ef'), where ef' follows the standard SM-2 easiness update.
func Review(intervalDays int, ef float64, minEF float64, q Quality, now time.Time) Update {
	if q < 3 {
		ef -= 0.2
		if ef < minEF {
			ef = minEF
		}
		return Update{
			IntervalDays: 1,
			EF:           ef,
			NextReviewAt: now.AddDate(0, 0, 1),
		}
	}

	ef += 0.1 - float64(5-q)*(0.08+float64(5-q)*0.02)
	if ef < minEF {
		ef = minEF
	}

	var next int
	switch {
	case intervalDays == 0:
		next = 1
	case intervalDays == 1:
		next = 6
	default:
		next = int(math.Round(float64(intervalDays) * ef))
	}

	return Update{
		IntervalDays: next,
		EF:           ef,
		NextReviewAt: now.AddDate(0, 0, next),
	}
}
