package response

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rpggio/fieldaudit/internal/domain/template"
)

const averageTitle = "average (auto)"

var attemptTitles = []string{"attempt 1", "attempt 2", "attempt 3", "attempt 4", "attempt 5"}

// AverageGroup links the attempt items to the derived average item.
type AverageGroup struct {
	AttemptIDs []string
	AverageID  string
}

// FindAverageGroup detects the attempt/average layout. Every attempt title
// must exist exactly once alongside exactly one average item.
func FindAverageGroup(items []template.ChecklistItem) (AverageGroup, bool) {
	byTitle := make(map[string][]string)
	for _, item := range items {
		title := strings.ToLower(strings.TrimSpace(item.Title))
		byTitle[title] = append(byTitle[title], item.ID)
	}

	averages := byTitle[averageTitle]
	if len(averages) != 1 {
		return AverageGroup{}, false
	}

	group := AverageGroup{AverageID: averages[0]}
	for _, title := range attemptTitles {
		ids := byTitle[title]
		if len(ids) != 1 {
			return AverageGroup{}, false
		}
		group.AttemptIDs = append(group.AttemptIDs, ids[0])
	}
	return group, true
}

// Average computes the mean of the numeric values. Empty and non-numeric
// values are skipped; with no numeric value the result is empty.
func Average(values []string) string {
	var sum float64
	count := 0
	for _, raw := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f", sum/float64(count))
}
