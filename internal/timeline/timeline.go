// Package timeline maps a project's calendar window onto its phases using
// business-day arithmetic.
package timeline

import (
	"fmt"
	"math"
	"time"

	"github.com/jxmullins/kickoff/internal/roster"
)

// DisplayLayout is the human date format used in prompts and events.
const DisplayLayout = "Jan 2, 2006"

const isoLayout = "2006-01-02"

// PhaseWindow is the slice of the calendar assigned to one phase.
type PhaseWindow struct {
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	BusinessDays int       `json:"businessDays"`
}

// Timeline is the computed schedule for a run.
type Timeline struct {
	StartDate         time.Time            `json:"startDate"`
	EndDate           time.Time            `json:"endDate"`
	TotalBusinessDays int                  `json:"totalBusinessDays"`
	Phases            map[int]*PhaseWindow `json:"phases"`
}

// ParseDate reads a civil date as YYYY-MM-DD, or an RFC 3339 timestamp whose
// date part is kept. The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(isoLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return civil(t), nil
}

// FormatDate renders a date as "Jan 2, 2006".
func FormatDate(t time.Time) string {
	return t.Format(DisplayLayout)
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// CountBusinessDays counts Monday-to-Friday days in [start, end], inclusive.
func CountBusinessDays(start, end time.Time) int {
	start, end = civil(start), civil(end)
	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if isWeekday(d) {
			count++
		}
	}
	return count
}

// AddBusinessDays steps forward one calendar day at a time until n weekdays
// have been passed. n <= 0 returns date unchanged.
func AddBusinessDays(date time.Time, n int) time.Time {
	d := civil(date)
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if isWeekday(d) {
			added++
		}
	}
	return d
}

// Compute divides the window between phases in proportion to how many agents
// each phase runs. It returns nil when either date is missing, end is not
// after start, or the window holds no business days.
func Compute(start, end *time.Time, phases []roster.Phase) *Timeline {
	if start == nil || end == nil {
		return nil
	}
	s, e := civil(*start), civil(*end)
	if !e.After(s) {
		return nil
	}
	total := CountBusinessDays(s, e)
	if total <= 0 {
		return nil
	}

	totalAgents := 0
	for _, p := range phases {
		totalAgents += len(p.Agents)
	}

	tl := &Timeline{
		StartDate:         s,
		EndDate:           e,
		TotalBusinessDays: total,
		Phases:            make(map[int]*PhaseWindow, len(phases)),
	}
	if totalAgents == 0 {
		return tl
	}

	cursor := s
	for _, p := range phases {
		weight := float64(len(p.Agents)) / float64(totalAgents)
		days := max(1, int(math.Round(float64(total)*weight)))
		phaseEnd := AddBusinessDays(cursor, days)
		tl.Phases[p.ID] = &PhaseWindow{
			StartDate:    cursor,
			EndDate:      phaseEnd,
			BusinessDays: days,
		}
		cursor = AddBusinessDays(phaseEnd, 1)
	}
	return tl
}

// Phase returns the window for a phase.
func (t *Timeline) Phase(id int) (*PhaseWindow, bool) {
	if t == nil {
		return nil, false
	}
	w, ok := t.Phases[id]
	return w, ok
}

// AgentStart is the simulated start date of the index-th of count agents in
// a phase: the phase start offset by round(businessDays * index / count).
func (w *PhaseWindow) AgentStart(index, count int) time.Time {
	if count <= 0 {
		return w.StartDate
	}
	offset := int(math.Round(float64(w.BusinessDays) * float64(index) / float64(count)))
	return AddBusinessDays(w.StartDate, offset)
}

// AgentDuration is the business days credited to one agent's deliverable.
func (w *PhaseWindow) AgentDuration(count int) int {
	if count <= 0 {
		count = 1
	}
	return max(1, int(math.Round(float64(w.BusinessDays)/float64(count))))
}

// Completion is start plus duration business days, never past the phase end.
func (w *PhaseWindow) Completion(start time.Time, duration int) time.Time {
	done := AddBusinessDays(start, duration)
	if done.After(w.EndDate) {
		return w.EndDate
	}
	return done
}
