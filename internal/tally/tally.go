// Package tally turns stored responses into per-question option counts.
package tally

import "github.com/emilythestrangee/tally/backend/internal/models"

// Counter is a two-level question -> option -> count map.
// The zero value is ready to use.
type Counter struct {
	counts models.Snapshot
}

func (c *Counter) Add(questionID, option string) {
	c.AddN(questionID, option, 1)
}

// AddN adds n to the option count. Non-positive n is ignored so counts never
// go negative.
func (c *Counter) AddN(questionID, option string, n int) {
	if n <= 0 {
		return
	}
	if c.counts == nil {
		c.counts = make(models.Snapshot)
	}
	options, ok := c.counts[questionID]
	if !ok {
		options = make(map[string]int)
		c.counts[questionID] = options
	}
	options[option] += n
}

// Snapshot returns a deep copy of the current counts. It is never nil.
func (c *Counter) Snapshot() models.Snapshot {
	out := make(models.Snapshot, len(c.counts))
	for q, options := range c.counts {
		cp := make(map[string]int, len(options))
		for o, n := range options {
			cp[o] = n
		}
		out[q] = cp
	}
	return out
}

// Compute counts responses in a single pass.
func Compute(responses []models.Response) models.Snapshot {
	var c Counter
	for _, r := range responses {
		c.Add(r.QuestionID, r.SelectedOption)
	}
	return c.Snapshot()
}

// FromRows reshapes grouped (question, option, count) rows into a snapshot.
// Duplicate rows for the same pair are summed.
func FromRows(rows []models.TallyRow) models.Snapshot {
	var c Counter
	for _, row := range rows {
		c.AddN(row.QuestionID, row.SelectedOption, row.Count)
	}
	return c.Snapshot()
}

// Total is the number of responses recorded for a question.
func Total(s models.Snapshot, questionID string) int {
	total := 0
	for _, n := range s[questionID] {
		total += n
	}
	return total
}
