package engine

import (
	"sort"
	"strings"

	"github.com/clarity-bi/clarity/dataset"
)

// Page size bounds for RawData.
const (
	DefaultRawLimit = 100
	MaxRawLimit     = 500
)

// RawQuery selects one page of effective rows.
type RawQuery struct {
	Table   dataset.TableName
	Page    int    // 1-based; clamped to [1, pages]
	Limit   int    // defaults to DefaultRawLimit, capped at MaxRawLimit
	SortBy  string // column name; unknown columns keep table order
	SortDir string // "asc" (default) or "desc"
	Filters FilterState
}

// RawPage is one page of rows plus paging metadata.
type RawPage struct {
	Table   dataset.TableName `json:"table"`
	Rows    []dataset.Row     `json:"rows"`
	Columns []string          `json:"columns"`
	Total   int               `json:"total"`
	Page    int               `json:"page"`
	Pages   int               `json:"pages"`
	Limit   int               `json:"limit"`
}

// RawData pages through one table's effective rows. Filters are matched
// against the table itself, without the Policy No join. Null cells sort last
// in both directions.
func RawData(view *dataset.View, q RawQuery) (*RawPage, error) {
	tv, err := view.Table(q.Table)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	switch {
	case limit <= 0:
		limit = DefaultRawLimit
	case limit > MaxRawLimit:
		limit = MaxRawLimit
	}

	ids := NewMatcher(tv, q.Filters).Filter()

	if col, ok := tv.ColumnIndex(q.SortBy); ok {
		desc := strings.EqualFold(q.SortDir, "desc")
		sort.SliceStable(ids, func(i, j int) bool {
			a, b := tv.Value(ids[i], col), tv.Value(ids[j], col)
			if a.IsNull() || b.IsNull() {
				return !a.IsNull() && b.IsNull()
			}
			c := dataset.Compare(a, b)
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	total := len(ids)
	pages := max(1, (total+limit-1)/limit)
	page := min(max(q.Page, 1), pages)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	rows := make([]dataset.Row, 0, end-start)
	for _, id := range ids[start:end] {
		row, err := tv.Row(id)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	return &RawPage{
		Table:   q.Table,
		Rows:    rows,
		Columns: tv.Columns(),
		Total:   total,
		Page:    page,
		Pages:   pages,
		Limit:   limit,
	}, nil
}
