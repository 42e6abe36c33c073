package docstore

import (
	"sort"
	"time"
)

// Op filter operator
type Op string

// Supported filter operators
const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Direction order direction
type Direction int

// Order directions
const (
	Asc Direction = iota
	Desc
)

type filter struct {
	field string
	op    Op
	value any
}

type order struct {
	field string
	dir   Direction
}

// Query query over a single collection path
type Query struct {
	collection string
	filters    []filter
	orders     []order
	limit      int
}

// NewQuery query all documents of collection
func NewQuery(collection string) Query {
	return Query{collection: collection}
}

// Collection collection path of the query
func (q Query) Collection() string {
	return q.collection
}

// Where add a filter
func (q Query) Where(field string, op Op, value any) Query {
	q.filters = append(append([]filter(nil), q.filters...), filter{field: field, op: op, value: value})
	return q
}

// OrderBy add an order, documents without the field are excluded
func (q Query) OrderBy(field string, dir Direction) Query {
	q.orders = append(append([]order(nil), q.orders...), order{field: field, dir: dir})
	return q
}

// Limit max documents returned, 0 = no limit
func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

// matches evaluate filters and order field presence against data
func (q Query) matches(data map[string]any) bool {
	for _, f := range q.filters {
		v, ok := data[f.field]
		if !ok {
			return false
		}
		switch f.op {
		case OpEqual:
			if !valuesEqual(v, f.value) {
				return false
			}
		case OpArrayContains:
			if !arrayContains(v, f.value) {
				return false
			}
		default:
			return false
		}
	}
	for _, o := range q.orders {
		if _, ok := data[o.field]; !ok {
			return false
		}
	}
	return true
}

// sortAndLimit docs 需已按寫入順序排列, 相同值時保持原順序
func (q Query) sortAndLimit(docs []Document) []Document {
	if len(q.orders) > 0 {
		sort.SliceStable(docs, func(i, j int) bool {
			for _, o := range q.orders {
				c := compareValues(docs[i].Data[o.field], docs[j].Data[o.field])
				if c == 0 {
					continue
				}
				if o.dir == Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.limit > 0 && len(docs) > q.limit {
		docs = docs[:q.limit]
	}
	return docs
}

func arrayContains(arr any, v any) bool {
	switch a := arr.(type) {
	case []any:
		for _, e := range a {
			if valuesEqual(e, v) {
				return true
			}
		}
	case []string:
		for _, e := range a {
			if valuesEqual(e, v) {
				return true
			}
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

// compareValues nil < bool < number < time < string, 其他型別視為相等
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case time.Time:
		return av.Compare(b.(time.Time))
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	}
	if fa, ok := toFloat(a); ok {
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	}
	return 0
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case time.Time:
		return 3
	case string:
		return 4
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	return 5
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
