package visibility

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thejerf/abtime"

	"testapi/internal/auth"
)

// TimeLayout is how start_date bounds are rendered; result documents
// store start_date as a string in the same layout, so lexical order is
// chronological order.
const TimeLayout = "2006-01-02 15:04:05.000000"

// BadRequest is returned for malformed numeric filters. It is the only
// error the builder produces and is meant to reach the API caller.
type BadRequest struct {
	Param string
	Value string
}

func (e *BadRequest) Error() string {
	return fmt.Sprintf("%s must be int", e.Param)
}

// reserved keys never become equality clauses.
var reserved = map[string]bool{
	"last":    true,
	"page":    true,
	"descend": true,
	"period":  true,
	"from":    true,
	"to":      true,
	"signed":  true,
}

// Builder turns a caller and request parameters into a visibility
// filter. It holds no state beyond its clock and is safe for concurrent
// use.
type Builder struct {
	clock abtime.AbstractTime
}

// NewBuilder returns a builder reading time from clock, or the wall clock when nil.
func NewBuilder(clock abtime.AbstractTime) *Builder {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Builder{clock: clock}
}

// Build returns the filter for one request. caller is nil for anonymous
// requests. Neither input is modified.
func (b *Builder) Build(caller *auth.Principal, params Params) (Filter, error) {
	now := b.clock.Now().UTC()
	query := Filter{}

	// Only one of the two date kinds survives: the one seen last.
	var (
		period    Filter
		dateRange Filter
		rangeLast bool
	)

	for _, p := range params {
		switch p.Key {
		case "period":
			days, err := parseInt(p)
			if err != nil {
				return nil, err
			}
			if days > 0 {
				period = Filter{opGte: now.AddDate(0, 0, -days).Format(TimeLayout)}
				rangeLast = false
			}
		case "from", "to":
			if dateRange == nil {
				dateRange = Filter{}
			}
			if p.Key == "from" {
				dateRange[opGte] = p.Value
			} else {
				dateRange[opLt] = p.Value
			}
			rangeLast = true
		case "page", "last":
			if _, err := parseInt(p); err != nil {
				return nil, err
			}
		case "signed":
			if or := ownership(caller); or != nil {
				query[opOr] = or
			}
		default:
			// Operator keys would become query operators, not equality
			// clauses, and could replace the ownership $or.
			if !reserved[p.Key] && !strings.HasPrefix(p.Key, "$") {
				query[p.Key] = p.Value
			}
		}
	}

	var start Filter
	switch {
	case dateRange != nil && (rangeLast || period == nil):
		start = dateRange
	case period != nil:
		start = period
	}
	if start != nil {
		if _, ok := start[opLt]; !ok {
			start[opLt] = now.Format(TimeLayout)
		}
		query[FieldStartDate] = start
	}

	return query, nil
}

// ownership is the $or clause for "signed": records shared with or owned
// by the caller, and for reviewers also anything not private. Anonymous
// callers get no clause.
func ownership(caller *auth.Principal) []any {
	if caller == nil || caller.Subject == "" {
		return nil
	}
	clauses := []any{
		Filter{FieldShared: Filter{opElemMatch: Filter{opEq: caller.Subject}}},
		Filter{FieldOwner: caller.Subject},
	}
	if caller.CanReview() {
		clauses = append(clauses, Filter{FieldStatus: Filter{opNe: StatusPrivate}})
	}
	return clauses
}

func parseInt(p Param) (int, error) {
	n, err := strconv.Atoi(p.Value)
	if err != nil {
		return 0, &BadRequest{Param: p.Key, Value: p.Value}
	}
	return n, nil
}

// Window reports the start_date bounds of a filter, if any. Callers use
// it for logging the effective range.
func Window(f Filter) (from, to string, ok bool) {
	start, isFilter := asFilter(f[FieldStartDate])
	if !isFilter {
		return "", "", false
	}
	from, _ = start[opGte].(string)
	to, _ = start[opLt].(string)
	return from, to, true
}

