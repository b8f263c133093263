package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Memory is an in-process Store. It assigns sequential string IDs
// ("courses-1", "lessons-1", ...) and can enforce unique keys per table.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]Record
	unique map[string][][]string
	nextID map[string]int
	calls  map[string]int

	// FailWith, if set, is consulted before every operation. A non-nil error
	// is returned instead of performing the call.
	FailWith func(op, table string, record Record) error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string][]Record),
		unique: make(map[string][][]string),
		nextID: make(map[string]int),
		calls:  make(map[string]int),
	}
}

// Unique declares a unique constraint over columns of table.
func (m *Memory) Unique(table string, columns ...string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unique[table] = append(m.unique[table], columns)
	return m
}

// Rows returns a copy of every row in table.
func (m *Memory) Rows(table string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.tables[table]))
	for i, r := range m.tables[table] {
		out[i] = r.Clone()
	}
	return out
}

// Calls returns how many times op ("select", "insert", "update", "upsert") was invoked.
// An empty op returns the total across all operations.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op == "" {
		total := 0
		for _, n := range m.calls {
			total += n
		}
		return total
	}
	return m.calls[op]
}

func (m *Memory) before(op, table string, record Record) error {
	m.calls[op]++
	if m.FailWith != nil {
		if err := m.FailWith(op, table, record); err != nil {
			return wrap(op, table, err)
		}
	}
	return nil
}

// Select returns the matching rows, projected onto columns.
func (m *Memory) Select(_ context.Context, table string, columns []string, filters ...Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.before("select", table, nil); err != nil {
		return nil, err
	}

	var out []Record
	for _, r := range m.tables[table] {
		if matches(r, filters) {
			out = append(out, project(r, columns))
		}
	}
	return out, nil
}

// Insert stores a copy of record with a generated id.
func (m *Memory) Insert(_ context.Context, table string, record Record) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.before("insert", table, record); err != nil {
		return nil, err
	}
	return m.insertLocked(table, record)
}

func (m *Memory) insertLocked(table string, record Record) ([]Record, error) {
	if cols, dup := m.conflictLocked(table, record, ""); dup {
		return nil, wrap("insert", table, fmt.Errorf("%w on (%s)", ErrDuplicate, strings.Join(cols, ", ")))
	}

	m.nextID[table]++
	row := record.Clone()
	row["id"] = fmt.Sprintf("%s-%d", table, m.nextID[table])
	m.tables[table] = append(m.tables[table], row)
	return []Record{row.Clone()}, nil
}

// Update merges record into every matching row.
func (m *Memory) Update(_ context.Context, table string, record Record, filters ...Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.before("update", table, record); err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, wrap("update", table, ErrUnfilteredUpdate)
	}

	var out []Record
	for i, r := range m.tables[table] {
		if !matches(r, filters) {
			continue
		}
		merged := r.Clone()
		for k, v := range record {
			merged[k] = v
		}
		if cols, dup := m.conflictLocked(table, merged, r.String("id")); dup {
			return nil, wrap("update", table, fmt.Errorf("%w on (%s)", ErrDuplicate, strings.Join(cols, ", ")))
		}
		m.tables[table][i] = merged
		out = append(out, merged.Clone())
	}
	return out, nil
}

// Upsert implements Upserter by matching an existing row on the conflict columns.
func (m *Memory) Upsert(_ context.Context, table string, record Record, conflict []string, update bool) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.before("upsert", table, record); err != nil {
		return nil, err
	}

	filters := make([]Filter, len(conflict))
	for i, c := range conflict {
		filters[i] = Eq(c, record[c])
	}
	for i, r := range m.tables[table] {
		if !matches(r, filters) {
			continue
		}
		if update {
			merged := r.Clone()
			for k, v := range record {
				merged[k] = v
			}
			m.tables[table][i] = merged
			return []Record{merged.Clone()}, nil
		}
		return []Record{r.Clone()}, nil
	}
	return m.insertLocked(table, record)
}

// conflictLocked reports whether record collides with another row (other than
// selfID) on any declared unique constraint.
func (m *Memory) conflictLocked(table string, record Record, selfID string) ([]string, bool) {
	for _, cols := range m.unique[table] {
		filters := make([]Filter, len(cols))
		for i, c := range cols {
			filters[i] = Eq(c, record[c])
		}
		for _, r := range m.tables[table] {
			if selfID != "" && r.String("id") == selfID {
				continue
			}
			if matches(r, filters) {
				return cols, true
			}
		}
	}
	return nil, false
}

func matches(r Record, filters []Filter) bool {
	for _, f := range filters {
		v, ok := r[f.Column]
		if f.Value == nil {
			if ok && v != nil {
				return false
			}
			continue
		}
		if !ok || fmt.Sprint(v) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func project(r Record, columns []string) Record {
	if len(columns) == 0 {
		return r.Clone()
	}
	out := make(Record, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}
