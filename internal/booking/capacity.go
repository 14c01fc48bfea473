package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCapacity means the selected tables seat fewer guests
	// than the party size.
	ErrInsufficientCapacity = errors.New("insufficient table capacity")
	// ErrExcessiveTableSelection means more than one table was selected
	// although one of them alone seats the whole party.
	ErrExcessiveTableSelection = errors.New("excessive table selection")
	// ErrInvalidSelection covers malformed selections: no tables, duplicate
	// or inactive tables, or a party size below one.
	ErrInvalidSelection = errors.New("invalid table selection")
)

// TableInfo is the view of a table the capacity rules need.
type TableInfo struct {
	ID       uint64
	Name     string
	Capacity int
	Active   bool
}

// CapacityError explains a rejected selection.
type CapacityError struct {
	Reason        error
	PartySize     int
	TotalCapacity int
	// Table is the table that triggered the rejection, if any: the single
	// table that already seats the party for ErrExcessiveTableSelection, or
	// the duplicate/inactive table for ErrInvalidSelection.
	Table  *TableInfo
	Detail string
}

func (e *CapacityError) Error() string { return fmt.Sprintf("%s: %s", e.Reason, e.Detail) }

func (e *CapacityError) Unwrap() error { return e.Reason }

// ValidateSelection checks an online reservation's tables against its party
// size.  The sum of capacities must cover the party, and when several tables
// are chosen none of them may be able to seat the party on its own.
func ValidateSelection(tables []TableInfo, partySize int) error {
	total, err := checkShape(tables, partySize)
	if err != nil {
		return err
	}
	if total < partySize {
		return insufficient(tables, partySize, total)
	}
	if len(tables) > 1 {
		for i := range tables {
			if tables[i].Capacity >= partySize {
				t := tables[i]
				return &CapacityError{
					Reason:        ErrExcessiveTableSelection,
					PartySize:     partySize,
					TotalCapacity: total,
					Table:         &t,
					Detail: fmt.Sprintf("table %s seats %d on its own; select only that table for a party of %d",
						label(t), t.Capacity, partySize),
				}
			}
		}
	}
	return nil
}

// ValidateWalkInSelection applies only the sufficiency rule.  Staff may push
// tables together for a walk-in party even when one would do.
func ValidateWalkInSelection(tables []TableInfo, partySize int) error {
	total, err := checkShape(tables, partySize)
	if err != nil {
		return err
	}
	if total < partySize {
		return insufficient(tables, partySize, total)
	}
	return nil
}

func checkShape(tables []TableInfo, partySize int) (int, error) {
	if partySize < 1 {
		return 0, &CapacityError{Reason: ErrInvalidSelection, PartySize: partySize,
			Detail: fmt.Sprintf("party size must be at least 1, got %d", partySize)}
	}
	if len(tables) == 0 {
		return 0, &CapacityError{Reason: ErrInvalidSelection, PartySize: partySize,
			Detail: "at least one table must be selected"}
	}
	seen := make(map[uint64]struct{}, len(tables))
	total := 0
	for i := range tables {
		t := tables[i]
		if _, dup := seen[t.ID]; dup {
			return 0, &CapacityError{Reason: ErrInvalidSelection, PartySize: partySize, Table: &t,
				Detail: fmt.Sprintf("table %s selected more than once", label(t))}
		}
		seen[t.ID] = struct{}{}
		if !t.Active {
			return 0, &CapacityError{Reason: ErrInvalidSelection, PartySize: partySize, Table: &t,
				Detail: fmt.Sprintf("table %s is not in service", label(t))}
		}
		total += t.Capacity
	}
	return total, nil
}

func insufficient(tables []TableInfo, partySize, total int) error {
	return &CapacityError{
		Reason:        ErrInsufficientCapacity,
		PartySize:     partySize,
		TotalCapacity: total,
		Detail: fmt.Sprintf("%d selected table(s) seat %d, party size is %d",
			len(tables), total, partySize),
	}
}

func label(t TableInfo) string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("#%d", t.ID)
}
