package app

import (
	"cmp"
	"context"
	"slices"

	"github.com/hylla/fieldwork/internal/domain"
)

// RecapLine is one worker's honor from one activity in the recap month.
type RecapLine struct {
	ActivityID   string          `json:"activity_id"`
	ActivityName string          `json:"activity_name"`
	WorkerID     string          `json:"worker_id"`
	WorkerName   string          `json:"worker_name"`
	Phase        domain.Phase    `json:"phase"`
	TaskType     domain.TaskType `json:"task_type"`
	UnitCount    int64           `json:"unit_count"`
	UnitPrice    int64           `json:"unit_price"`
	Honor        int64           `json:"honor"`
}

// RecapRow totals one worker's honor across activities paid in the recap month.
type RecapRow struct {
	WorkerID      string `json:"worker_id"`
	WorkerName    string `json:"worker_name"`
	ActivityCount int    `json:"activity_count"`
	Honor         int64  `json:"honor"`
	OverLimit     bool   `json:"over_limit"`
}

// Recap is the monthly honorarium overview.
type Recap struct {
	Period  domain.Period `json:"period"`
	Limit   int64         `json:"limit"`
	Rows    []RecapRow    `json:"rows"`
	Lines   []RecapLine   `json:"lines"`
	Skipped []string      `json:"skipped,omitempty"`
}

// Total sums every worker's honor.
func (r Recap) Total() int64 {
	var total int64
	for _, row := range r.Rows {
		total = domain.AddHonor(total, row.Honor)
	}
	return total
}

// MonthlyRecap totals worker honor for every activity paying in period. Activities
// whose payment month cannot be resolved are listed in Skipped.
func (s *Service) MonthlyRecap(ctx context.Context, period domain.Period) (Recap, error) {
	if _, err := domain.NewPeriod(int(period.Month), period.Year); err != nil {
		return Recap{}, err
	}
	limit, err := s.limits.Limit(ctx)
	if err != nil {
		return Recap{}, err
	}
	activities, err := s.repo.ListActivities(ctx)
	if err != nil {
		return Recap{}, err
	}

	recap := Recap{Period: period, Limit: limit, Rows: []RecapRow{}, Lines: []RecapLine{}}
	rows := map[string]*RecapRow{}
	for _, activity := range activities {
		resolved, err := domain.ResolvePaymentPeriod(activity)
		if err != nil {
			recap.Skipped = append(recap.Skipped, activity.ID)
			continue
		}
		if resolved != period {
			continue
		}
		seen := map[string]bool{}
		for _, as := range activity.Assignments {
			for _, d := range as.Details {
				if d.UnitCount == 0 && d.HonorAmount == 0 {
					continue
				}
				recap.Lines = append(recap.Lines, RecapLine{
					ActivityID:   activity.ID,
					ActivityName: activity.Name,
					WorkerID:     as.WorkerID,
					WorkerName:   as.WorkerName,
					Phase:        as.Phase,
					TaskType:     d.TaskType,
					UnitCount:    d.UnitCount,
					UnitPrice:    activity.UnitPrice(d.TaskType),
					Honor:        d.HonorAmount,
				})
			}
			row, ok := rows[as.WorkerID]
			if !ok {
				row = &RecapRow{WorkerID: as.WorkerID, WorkerName: as.WorkerName}
				rows[as.WorkerID] = row
			}
			row.Honor = domain.AddHonor(row.Honor, as.Honor())
			if !seen[as.WorkerID] {
				seen[as.WorkerID] = true
				row.ActivityCount++
			}
		}
	}

	for _, row := range rows {
		row.OverLimit = row.Honor > limit
		recap.Rows = append(recap.Rows, *row)
	}
	slices.SortFunc(recap.Rows, func(a, b RecapRow) int {
		if c := cmp.Compare(b.Honor, a.Honor); c != 0 {
			return c
		}
		return cmp.Compare(a.WorkerID, b.WorkerID)
	})
	slices.SortStableFunc(recap.Lines, func(a, b RecapLine) int {
		if c := cmp.Compare(a.WorkerID, b.WorkerID); c != 0 {
			return c
		}
		return cmp.Compare(a.ActivityName, b.ActivityName)
	})
	return recap, nil
}
