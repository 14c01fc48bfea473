package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/iliyamo/table-reservation/internal/slot"
)

// BufferMinutes is the minimum gap required between a new start and the
// next party's arrival on the same table.
const BufferMinutes = 30

// ErrSlotConflict is wrapped by ConflictError.
var ErrSlotConflict = errors.New("table slot not available")

// Relation classifies a candidate start against another booking's start on
// a shared table and date.
type Relation string

const (
	// RelationClear: no booking shares the table on that date.
	RelationClear Relation = "ok"
	// RelationWarn: the candidate starts more than BufferMinutes before the
	// other booking; allowed, but the party must vacate in time.
	RelationWarn Relation = "warn"
	// RelationTooClose: the candidate starts before the other booking but
	// with BufferMinutes or less to spare.
	RelationTooClose Relation = "too_close"
	// RelationBlocked: the candidate starts at or after the other booking,
	// whose occupancy has no modelled end.
	RelationBlocked Relation = "blocked"
)

// Rejects reports whether the relation forbids the candidate.
func (r Relation) Rejects() bool { return r == RelationBlocked || r == RelationTooClose }

// Classify compares a candidate start with an existing booking's start.
// There is no booking duration: any start at or after the other one is
// blocked, and starts before it need more than BufferMinutes of room.
func Classify(candidate, other slot.Clock) Relation {
	if candidate >= other {
		return RelationBlocked
	}
	if other.Sub(candidate) <= BufferMinutes {
		return RelationTooClose
	}
	return RelationWarn
}

// Occupancy is one blocking booking holding one table on the date being
// checked.  A booking spanning three tables contributes three rows.
type Occupancy struct {
	BookingID uint64
	Code      string
	TableID   uint64
	TableName string
	Start     slot.Clock
	Status    Status
}

// Finding is the classified relationship between the candidate and one
// occupancy row.
type Finding struct {
	TableID     uint64   `json:"table_id"`
	TableName   string   `json:"table_name,omitempty"`
	BookingID   uint64   `json:"booking_id"`
	BookingCode string   `json:"booking_code,omitempty"`
	OtherStart  string   `json:"other_start"`
	Requested   string   `json:"requested"`
	GapMinutes  int      `json:"gap_minutes"`
	Relation    Relation `json:"relation"`
	Message     string   `json:"message"`
}

// ConflictReport aggregates the findings for a candidate table set.
type ConflictReport struct {
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	TableIDs   []uint64  `json:"table_ids"`
	CanProceed bool      `json:"can_checkout"`
	Blocked    []Finding `json:"blocked"`
	Warnings   []Finding `json:"warnings"`
}

// Messages returns the human readable text of every finding, rejections
// first.
func (r ConflictReport) Messages() []string {
	out := make([]string, 0, len(r.Blocked)+len(r.Warnings))
	for _, f := range r.Blocked {
		out = append(out, f.Message)
	}
	for _, f := range r.Warnings {
		out = append(out, f.Message)
	}
	return out
}

// Err returns a *ConflictError when the report forbids the candidate.
func (r ConflictReport) Err() error {
	if r.CanProceed {
		return nil
	}
	return &ConflictError{Report: r}
}

// ConflictError carries the full report of a rejected slot.
type ConflictError struct {
	Report ConflictReport
}

func (e *ConflictError) Error() string {
	msgs := make([]string, 0, len(e.Report.Blocked))
	for _, f := range e.Report.Blocked {
		msgs = append(msgs, f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrSlotConflict, strings.Join(msgs, "; "))
}

func (e *ConflictError) Unwrap() error { return ErrSlotConflict }

// CheckAvailability classifies a candidate start on candidateTables against
// the blocking bookings of the same date.  Rows belonging to excluding (the
// booking being re-validated) and rows in non-blocking statuses are
// ignored, so callers may pass everything they loaded for the date.
func CheckAvailability(date string, candidateTables []uint64, at slot.Clock, existing []Occupancy, excluding uint64) ConflictReport {
	report := ConflictReport{
		Date:       date,
		Time:       at.String(),
		TableIDs:   append([]uint64(nil), candidateTables...),
		CanProceed: true,
		Blocked:    []Finding{},
		Warnings:   []Finding{},
	}
	wanted := make(map[uint64]struct{}, len(candidateTables))
	for _, id := range candidateTables {
		wanted[id] = struct{}{}
	}
	rows := append([]Occupancy(nil), existing...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TableID != rows[j].TableID {
			return rows[i].TableID < rows[j].TableID
		}
		return rows[i].Start < rows[j].Start
	})
	for _, o := range rows {
		if _, ok := wanted[o.TableID]; !ok {
			continue
		}
		if excluding != 0 && o.BookingID == excluding {
			continue
		}
		if !o.Status.Blocking() {
			continue
		}
		rel := Classify(at, o.Start)
		f := Finding{
			TableID:     o.TableID,
			TableName:   o.TableName,
			BookingID:   o.BookingID,
			BookingCode: o.Code,
			OtherStart:  o.Start.String(),
			Requested:   at.String(),
			GapMinutes:  o.Start.Sub(at),
			Relation:    rel,
			Message:     findingMessage(o, at, rel),
		}
		if rel.Rejects() {
			report.CanProceed = false
			report.Blocked = append(report.Blocked, f)
		} else {
			report.Warnings = append(report.Warnings, f)
		}
	}
	return report
}

func findingMessage(o Occupancy, at slot.Clock, rel Relation) string {
	table := o.TableName
	if table == "" {
		table = fmt.Sprintf("#%d", o.TableID)
	}
	switch rel {
	case RelationBlocked:
		return fmt.Sprintf("table %s is occupied from %s by booking %s; a start at %s is not available",
			table, o.Start, o.Code, at)
	case RelationTooClose:
		return fmt.Sprintf("table %s has a booking at %s; starting at %s leaves only %d minutes (more than %d required)",
			table, o.Start, at, o.Start.Sub(at), BufferMinutes)
	case RelationWarn:
		return fmt.Sprintf("table %s is booked again at %s; please vacate before then", table, o.Start)
	}
	return ""
}
