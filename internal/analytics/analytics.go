package analytics

import (
	"math"
	"sort"

	"github.com/mlaroche/boussole/internal/okr"
)

// Bucket is one fixed progress range with its count.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Distribution is the count of OKRs per fixed progress range, in range order.
type Distribution []Bucket

// bucketLabels are the four fixed progress ranges. The first covers [0,25],
// the rest (25,50], (50,75] and (75,100].
var bucketLabels = [4]string{"0-25%", "26-50%", "51-75%", "76-100%"}

// ProgressDistribution counts OKRs into the four fixed progress buckets.
// Every label is always present, so the counts sum to len(okrs).
func ProgressDistribution(okrs []*okr.OKR) Distribution {
	var counts [4]int
	for _, o := range okrs {
		switch {
		case o.Progress <= 25:
			counts[0]++
		case o.Progress <= 50:
			counts[1]++
		case o.Progress <= 75:
			counts[2]++
		default:
			counts[3]++
		}
	}

	dist := make(Distribution, len(bucketLabels))
	for i, label := range bucketLabels {
		dist[i] = Bucket{Label: label, Count: counts[i]}
	}
	return dist
}

// StatusDistribution counts OKRs per status. Statuses with no OKRs are
// absent from the map.
func StatusDistribution(okrs []*okr.OKR) map[okr.Status]int {
	dist := make(map[okr.Status]int)
	for _, o := range okrs {
		dist[o.Status]++
	}
	return dist
}

// TeamStats is the aggregate standing of one team.
type TeamStats struct {
	TeamName        string  `json:"team_name"`
	AverageProgress float64 `json:"average_progress"`
	OKRCount        int     `json:"okr_count"`
}

// TeamPerformance groups OKRs by team name and averages their progress,
// rounded to two decimals, sorted by team name. Teams without OKRs do not
// appear.
func TeamPerformance(okrs []*okr.OKR) []TeamStats {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, o := range okrs {
		sums[o.TeamName] += o.Progress
		counts[o.TeamName]++
	}

	stats := make([]TeamStats, 0, len(sums))
	for name, sum := range sums {
		stats = append(stats, TeamStats{
			TeamName:        name,
			AverageProgress: round2(sum / float64(counts[name])),
			OKRCount:        counts[name],
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].TeamName < stats[j].TeamName })
	return stats
}

// Summary holds the dashboard tile numbers for one set of OKRs.
type Summary struct {
	Total           int     `json:"total"`
	Completed       int     `json:"completed"`
	InProgress      int     `json:"in_progress"`
	AverageProgress float64 `json:"average_progress"`
}

// UserSummary computes the dashboard tiles over a user's OKRs.
func UserSummary(okrs []*okr.OKR) Summary {
	s := Summary{Total: len(okrs)}
	if len(okrs) == 0 {
		return s
	}

	var sum float64
	for _, o := range okrs {
		sum += o.Progress
		switch o.Status {
		case okr.StatusCompleted:
			s.Completed++
		case okr.StatusInProgress:
			s.InProgress++
		}
	}
	s.AverageProgress = sum / float64(len(okrs))
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
