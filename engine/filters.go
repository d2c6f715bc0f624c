package engine

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clarity-bi/clarity/dataset"
	"github.com/clarity-bi/clarity/schema"
)

// ============================================================================
// FILTERS: Immutable FilterState, staged/applied model, row matchers
// ============================================================================
// A FilterState maps filter keys to one value each. "All" or "" means no
// constraint, so only active keys are stored. Every setter returns a new
// state; a state handed to Compute can be shared freely.
//
// Matching is a single pass per table: a Matcher parses the state once
// (year, month and date bounds) and then checks every active key per row.
// ============================================================================

// Known filter keys.
const (
	KeyDealer      = "dealer"
	KeyProduct     = "product"
	KeyYear        = "year"
	KeyMonth       = "month"
	KeyMake        = "make"
	KeyDateFrom    = "date_from"
	KeyDateTo      = "date_to"
	KeySearch      = "search"
	KeyClaimStatus = "claim_status"
)

// All is the value meaning "no constraint on this dimension".
const All = "All"

// KnownKeys lists the fixed keys in display order.
var KnownKeys = []string{
	KeyDealer, KeyProduct, KeyYear, KeyMonth, KeyMake,
	KeyDateFrom, KeyDateTo, KeySearch, KeyClaimStatus,
}

// FilterState is an immutable set of active filter values.
type FilterState struct {
	values map[string]string
}

// NewFilterState builds a state from a key/value map, dropping inactive values.
func NewFilterState(values map[string]string) FilterState {
	return FilterState{}.Merge(values)
}

func isInactive(value string) bool {
	return value == "" || value == All
}

// Get returns the value of a key, or "" when the key is not active.
func (f FilterState) Get(key string) string {
	return f.values[key]
}

// IsActive reports whether a key constrains rows.
func (f FilterState) IsActive(key string) bool {
	_, ok := f.values[key]
	return ok
}

// Len is the number of active keys.
func (f FilterState) Len() int { return len(f.values) }

// With returns a copy with key set to value. "All" or "" clears the key.
func (f FilterState) With(key, value string) FilterState {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return f
	}
	if isInactive(value) {
		return f.Without(key)
	}
	if cur, ok := f.values[key]; ok && cur == value {
		return f
	}
	next := make(map[string]string, len(f.values)+1)
	maps.Copy(next, f.values)
	next[key] = value
	return FilterState{values: next}
}

// Merge returns a copy with every entry of partial applied via With.
func (f FilterState) Merge(partial map[string]string) FilterState {
	out := f
	for _, k := range slices.Sorted(maps.Keys(partial)) {
		out = out.With(k, partial[k])
	}
	return out
}

// Without returns a copy with key cleared.
func (f FilterState) Without(key string) FilterState {
	if _, ok := f.values[key]; !ok {
		return f
	}
	next := maps.Clone(f.values)
	delete(next, key)
	return FilterState{values: next}
}

// ActiveKeys returns the active keys: known keys in display order, then
// extension keys sorted.
func (f FilterState) ActiveKeys() []string {
	keys := make([]string, 0, len(f.values))
	for _, k := range KnownKeys {
		if f.IsActive(k) {
			keys = append(keys, k)
		}
	}
	var ext []string
	for k := range f.values {
		if !slices.Contains(KnownKeys, k) {
			ext = append(ext, k)
		}
	}
	slices.Sort(ext)
	return append(keys, ext...)
}

// Map returns a copy of the active values.
func (f FilterState) Map() map[string]string {
	out := make(map[string]string, len(f.values))
	maps.Copy(out, f.values)
	return out
}

// Equal reports whether both states constrain the same keys to the same values.
func (f FilterState) Equal(o FilterState) bool {
	return maps.Equal(f.values, o.values)
}

// Diff returns the keys whose values differ between f and o.
func (f FilterState) Diff(o FilterState) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, k := range append(f.ActiveKeys(), o.ActiveKeys()...) {
		if seen[k] {
			continue
		}
		seen[k] = true
		if f.values[k] != o.values[k] {
			keys = append(keys, k)
		}
	}
	return keys
}

func (f FilterState) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Map())
}

func (f *FilterState) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			values[k] = v
		case float64:
			values[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			values[k] = strconv.FormatBool(v)
		}
	}
	*f = NewFilterState(values)
	return nil
}

// ============================================================================
// FILTER MODEL: staged vs applied
// ============================================================================

// FilterModel holds the staged state (edited freely) and the applied state
// (drives computation). Subscribers hear about applied changes only.
type FilterModel struct {
	mu      sync.Mutex
	staged  FilterState
	applied FilterState
	nextSub int
	subs    map[int]func(FilterState)
}

// NewFilterModel returns a model with both states empty.
func NewFilterModel() *FilterModel {
	return &FilterModel{subs: make(map[int]func(FilterState))}
}

// Staged returns the state being edited.
func (m *FilterModel) Staged() FilterState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.staged
}

// Applied returns the last committed state.
func (m *FilterModel) Applied() FilterState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}

// Pending reports whether staged differs from applied.
func (m *FilterModel) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.staged.Equal(m.applied)
}

// SetStaged changes one staged key. Nothing is recomputed or notified.
func (m *FilterModel) SetStaged(key, value string) FilterState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = m.staged.With(key, value)
	return m.staged
}

// MergeStaged merges partial into the staged state and returns the result.
// The applied state is untouched.
func (m *FilterModel) MergeStaged(partial map[string]string) FilterState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged = m.staged.Merge(partial)
	return m.staged
}

// Apply commits staged to applied. Subscribers are notified once, and only
// when the applied state actually changed.
func (m *FilterModel) Apply() bool {
	return m.update(func() { m.applied = m.staged })
}

// ApplyDirectly merges partial into both staged and applied.
func (m *FilterModel) ApplyDirectly(partial map[string]string) bool {
	return m.update(func() {
		m.staged = m.staged.Merge(partial)
		m.applied = m.applied.Merge(partial)
	})
}

// Clear resets one key in both states.
func (m *FilterModel) Clear(key string) bool {
	return m.update(func() {
		m.staged = m.staged.Without(key)
		m.applied = m.applied.Without(key)
	})
}

// ClearAll resets every key in both states.
func (m *FilterModel) ClearAll() bool {
	return m.update(func() {
		m.staged = FilterState{}
		m.applied = FilterState{}
	})
}

// Subscribe registers fn for applied-state changes. Call the returned func
// to unsubscribe. fn runs on the goroutine that changed the state.
func (m *FilterModel) Subscribe(fn func(FilterState)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *FilterModel) update(change func()) bool {
	m.mu.Lock()
	before := m.applied
	change()
	after := m.applied
	changed := !before.Equal(after)
	var subs []func(FilterState)
	if changed {
		for _, id := range slices.Sorted(maps.Keys(m.subs)) {
			subs = append(subs, m.subs[id])
		}
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(after)
	}
	return changed
}

// ============================================================================
// MATCHER: per-table row predicate
// ============================================================================

// Matcher evaluates a FilterState against the rows of one table. Keys whose
// field the table does not have impose no constraint on it.
type Matcher struct {
	fv     *fieldView
	filter FilterState
	keys   []string

	year, month     int
	yearOK, monthOK bool
	from, to        time.Time
	fromSet, toSet  bool
	fromOK, toOK    bool
	search          string
	extension       map[string]int
}

// NewMatcher compiles filter for one table view.
func NewMatcher(tv *dataset.TableView, filter FilterState) *Matcher {
	dates := SalesDateColumns
	if tv.Name() == dataset.Claims {
		dates = ClaimDateColumns
	}
	return newMatcher(newFieldView(tv, dates), filter)
}

func newMatcher(fv *fieldView, filter FilterState) *Matcher {
	m := &Matcher{fv: fv, filter: filter, extension: make(map[string]int)}

	if v := filter.Get(KeyYear); v != "" {
		m.year, m.yearOK = parseInt(v)
	}
	if v := filter.Get(KeyMonth); v != "" {
		m.month, m.monthOK = parseInt(v)
	}
	if v := filter.Get(KeyDateFrom); v != "" {
		m.fromSet = true
		m.from, m.fromOK = schema.ParseDate(v)
	}
	if v := filter.Get(KeyDateTo); v != "" {
		m.toSet = true
		m.to, m.toOK = schema.ParseDate(v)
	}
	m.search = strings.ToLower(filter.Get(KeySearch))

	for _, k := range filter.ActiveKeys() {
		if !m.applies(k) {
			continue
		}
		m.keys = append(m.keys, k)
	}
	return m
}

// applies reports whether key constrains this table.
func (m *Matcher) applies(key string) bool {
	switch key {
	case KeyDealer:
		return m.fv.dealer >= 0
	case KeyProduct:
		return m.fv.product >= 0
	case KeyMake:
		return m.fv.vehicleMake >= 0
	case KeyClaimStatus:
		return m.fv.status >= 0 && m.fv.tv.Name() == dataset.Claims
	case KeyYear, KeyMonth, KeyDateFrom, KeyDateTo:
		return m.fv.hasPeriod()
	case KeySearch:
		return true
	}
	col, ok := m.fv.tv.ColumnIndex(key)
	if ok {
		m.extension[key] = col
	}
	return ok
}

// Keys returns the active keys that constrain this table.
func (m *Matcher) Keys() []string { return m.keys }

// Active reports whether any key constrains this table.
func (m *Matcher) Active() bool { return len(m.keys) > 0 }

// Matches evaluates one key against a row. Inactive or inapplicable keys
// always match.
func (m *Matcher) Matches(row int, key string) bool {
	value := m.filter.Get(key)
	if value == "" || !slices.Contains(m.keys, key) {
		return true
	}
	fv := m.fv
	switch key {
	case KeyDealer:
		return fv.Dimension(row, fv.dealer) == value
	case KeyProduct:
		return fv.Dimension(row, fv.product) == value
	case KeyMake:
		return fv.Dimension(row, fv.vehicleMake) == value
	case KeyClaimStatus:
		return fv.Dimension(row, fv.status) == value
	case KeyYear:
		y, ok := fv.Year(row)
		return m.yearOK && ok && y == m.year
	case KeyMonth:
		mo, ok := fv.Month(row)
		return m.monthOK && ok && mo == m.month
	case KeyDateFrom:
		d, ok := fv.Date(row)
		return m.fromOK && ok && !dayOf(d).Before(dayOf(m.from))
	case KeyDateTo:
		d, ok := fv.Date(row)
		return m.toOK && ok && !dayOf(d).After(dayOf(m.to))
	case KeySearch:
		return strings.Contains(fv.searchText(row), m.search)
	}
	col := m.extension[key]
	return fv.Dimension(row, col) == value
}

// MatchesAll is the conjunction of Matches over every active key.
func (m *Matcher) MatchesAll(row int) bool {
	for _, k := range m.keys {
		if !m.Matches(row, k) {
			return false
		}
	}
	return true
}

// Filter returns the ids of matching rows in table order.
func (m *Matcher) Filter() []int {
	ids := make([]int, 0, m.fv.Len())
	for r := 0; r < m.fv.Len(); r++ {
		if m.MatchesAll(r) {
			ids = append(ids, r)
		}
	}
	return ids
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ============================================================================
// FILTERED PASS: both tables under one state
// ============================================================================

// filtered holds the outcome of filtering both tables for one pass.
type filtered struct {
	sales    *fieldView
	claims   *fieldView
	join     *join
	salesIDs []int
	claimIDs []int
	salesIn  []bool // indexed by sales row
}

// claimSideKeys are answered by the claim's own fields: its status and its
// own date (Failure Date, then Authorized Date).
var claimSideKeys = []string{KeyClaimStatus, KeyYear, KeyMonth, KeyDateFrom, KeyDateTo}

// filterBoth filters Sales by every applicable key. A claim passes when its
// own status and date pass, and when the Sales row it links to passes the
// remaining keys (dealer, product, make, search and Sales extension
// columns). The linked Sales row need not be in the Sales selection: a claim
// inside a date window may belong to a policy sold before it. Orphan claims
// pass only when none of the linked keys is active.
func filterBoth(view *dataset.View, filter FilterState) *filtered {
	sales := newSalesView(view.Sales())
	claims := newClaimsView(view.Claims())
	p := &filtered{sales: sales, claims: claims, join: buildJoin(sales, claims)}

	p.salesIDs = newMatcher(sales, filter).Filter()
	p.salesIn = make([]bool, sales.Len())
	for _, id := range p.salesIDs {
		p.salesIn[id] = true
	}

	var own, linked FilterState
	for _, k := range filter.ActiveKeys() {
		v := filter.Get(k)
		switch {
		case slices.Contains(claimSideKeys, k):
			own = own.With(k, v)
		case slices.Contains(KnownKeys, k):
			linked = linked.With(k, v)
		default:
			if _, onSales := sales.tv.ColumnIndex(k); onSales {
				linked = linked.With(k, v)
			} else if _, onClaims := claims.tv.ColumnIndex(k); onClaims {
				own = own.With(k, v)
			}
		}
	}

	claimMatch := newMatcher(claims, own)
	linkMatch := newMatcher(sales, linked)
	linkIn := make([]bool, sales.Len())
	for _, id := range linkMatch.Filter() {
		linkIn[id] = true
	}

	p.claimIDs = make([]int, 0, claims.Len())
	for c := 0; c < claims.Len(); c++ {
		if !claimMatch.MatchesAll(c) {
			continue
		}
		if s := p.join.saleOf[c]; s >= 0 {
			if !linkIn[s] {
				continue
			}
		} else if linkMatch.Active() {
			continue
		}
		p.claimIDs = append(p.claimIDs, c)
	}
	return p
}

// FilterRows returns the ids of Sales and Claims rows that pass filter,
// with claims resolved through the Policy No join.
func FilterRows(view *dataset.View, filter FilterState) (salesIDs, claimIDs []int) {
	p := filterBoth(view, filter)
	return p.salesIDs, p.claimIDs
}
