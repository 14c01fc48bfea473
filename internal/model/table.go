package model

import (
	"time"

	"github.com/iliyamo/table-reservation/internal/booking"
)

// Table is a physical dining table as stored in the `tables` table.
// PosX and PosY only place the table on the floor plan.
type Table struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"`
	PosX      int       `json:"pos_x"`
	PosY      int       `json:"pos_y"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Info converts the row into the value the capacity validator works on.
func (t Table) Info() booking.TableInfo {
	return booking.TableInfo{ID: t.ID, Name: t.Name, Capacity: t.Capacity, Active: t.IsActive}
}

// TableInfos converts a slice of tables.
func TableInfos(tables []Table) []booking.TableInfo {
	out := make([]booking.TableInfo, 0, len(tables))
	for _, t := range tables {
		out = append(out, t.Info())
	}
	return out
}
