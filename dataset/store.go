package dataset

import (
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/clarity-bi/clarity/schema"
)

// Meta describes where a store's data came from.
type Meta struct {
	ID       string    `json:"id"`
	Format   Format    `json:"format"`
	Source   string    `json:"source,omitempty"`
	LoadedAt time.Time `json:"loadedAt"`
}

// Store holds the Sales and Claims tables of one ingest plus the ledger of
// edits made since. A new ingest builds a new Store; nothing mutates the
// tables themselves.
type Store struct {
	sales  *Table
	claims *Table
	ledger *Ledger
	meta   Meta
}

// NewStore wraps two tables. Ingest is the usual constructor.
func NewStore(sales, claims *Table) *Store {
	return &Store{
		sales:  sales,
		claims: claims,
		ledger: newLedger(sales, claims),
		meta:   Meta{ID: uuid.NewString(), LoadedAt: time.Now()},
	}
}

func (s *Store) Meta() Meta          { return s.meta }
func (s *Store) Ledger() *Ledger     { return s.ledger }
func (s *Store) SalesTable() *Table  { return s.sales }
func (s *Store) ClaimsTable() *Table { return s.claims }

// View snapshots the current effective state.
func (s *Store) View() *View {
	return newView(s.sales, s.claims, s.ledger.snapshot())
}

// Row returns the effective row or ErrRowNotFound.
func (s *Store) Row(table TableName, id int) (Row, error) {
	tv, err := s.View().Table(table)
	if err != nil {
		return Row{}, err
	}
	return tv.Row(id)
}

// Rows yields effective rows lazily. Each range takes a fresh snapshot, so
// the sequence is restartable and reflects edits made between ranges.
func (s *Store) Rows(table TableName) iter.Seq2[int, Row] {
	return func(yield func(int, Row) bool) {
		tv, err := s.View().Table(table)
		if err != nil {
			return
		}
		for id, row := range tv.Rows() {
			if !yield(id, row) {
				return
			}
		}
	}
}

// UpdateCell records an edit through the ledger.
func (s *Store) UpdateCell(table TableName, rowID int, column, raw string) (Edit, error) {
	return s.ledger.UpdateCell(table, rowID, column, raw)
}

// Reset restores the state right after ingest by discarding every edit.
func (s *Store) Reset() int {
	return s.ledger.Reset()
}

// Columns returns the column schemas of both tables.
func (s *Store) Columns() map[TableName][]schema.Column {
	return map[TableName][]schema.Column{
		Sales:  s.sales.Schema().Columns,
		Claims: s.claims.Schema().Columns,
	}
}
