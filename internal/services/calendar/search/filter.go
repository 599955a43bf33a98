package search

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
)

// eventFilterDeclarations returns the field declarations for event filtering.
func eventFilterDeclarations() (*filtering.Declarations, error) {
	return filtering.NewDeclarations(
		filtering.DeclareStandardFunctions(),
		filtering.DeclareIdent("title", filtering.TypeString),
		filtering.DeclareIdent("description", filtering.TypeString),
		filtering.DeclareIdent("game_id", filtering.TypeString),
		filtering.DeclareIdent("created_by", filtering.TypeString),
		filtering.DeclareIdent("friends_only", filtering.TypeBool),
		filtering.DeclareIdent("call_to_arms", filtering.TypeBool),
		filtering.DeclareIdent("starts_at", filtering.TypeTimestamp),
		filtering.DeclareIdent("ends_at", filtering.TypeTimestamp),
		// The parser surfaces bool literals as identifiers, so they must be
		// declared for expressions like friends_only = true to type-check.
		filtering.DeclareIdent("true", filtering.TypeBool),
		filtering.DeclareIdent("false", filtering.TypeBool),
	)
}

// eventField maps a filter identifier to its SQL column and its value on an
// in-memory event. The same parsed expression drives both the snapshot SQL
// and the per-change predicate, so the two can never disagree on a field.
type eventField struct {
	column string
	value  func(domain.Event) any
}

var eventFields = map[string]eventField{
	"title":        {"title", func(e domain.Event) any { return e.Title }},
	"description":  {"description", func(e domain.Event) any { return e.Description }},
	"game_id":      {"game_id", func(e domain.Event) any { return e.GameID }},
	"created_by":   {"created_by_user_id", func(e domain.Event) any { return e.CreatedByUserID }},
	"friends_only": {"friends_only", func(e domain.Event) any { return e.FriendsOnly }},
	"call_to_arms": {"call_to_arms", func(e domain.Event) any { return e.CallToArms }},
	"starts_at":    {"starts_at", func(e domain.Event) any { return e.StartsAt }},
	"ends_at":      {"ends_at", func(e domain.Event) any { return e.EndsAt }},
}

// EventFilter is a parsed AIP-160 filter over events, usable both as a SQL
// condition and as an in-memory predicate.
type EventFilter struct {
	clause string
	params []any
	match  func(domain.Event) (bool, error)
}

// ParseEventFilter parses an AIP-160 filter expression over event fields.
// Returns nil for an empty filter string.
func ParseEventFilter(filterStr string) (*EventFilter, error) {
	if strings.TrimSpace(filterStr) == "" {
		return nil, nil
	}

	decls, err := eventFilterDeclarations()
	if err != nil {
		return nil, fmt.Errorf("create declarations: %w", err)
	}

	parsed, err := filtering.ParseFilterString(filterStr, decls)
	if err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}

	return translateExpr(parsed.CheckedExpr.Expr)
}

// SQL returns the filter as a WHERE clause fragment with positional params.
func (f *EventFilter) SQL() (string, []any) {
	if f == nil {
		return "", nil
	}
	return f.clause, f.params
}

// Matches evaluates the filter against one event. Evaluation failures count
// as non-match.
func (f *EventFilter) Matches(event domain.Event) bool {
	if f == nil || f.match == nil {
		return true
	}
	ok, err := f.match(event)
	if err != nil {
		return false
	}
	return ok
}

func translateExpr(e *expr.Expr) (*EventFilter, error) {
	if e == nil {
		return nil, nil
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_CallExpr:
		return translateCall(kind.CallExpr)
	default:
		return nil, fmt.Errorf("unsupported expression type: %T", kind)
	}
}

func translateCall(call *expr.Expr_Call) (*EventFilter, error) {
	switch call.Function {
	case "_&&_", "AND":
		return translateLogical(call.Args, "AND")
	case "_||_", "OR":
		return translateLogical(call.Args, "OR")
	case "_==_", "=":
		return translateComparison(call.Args, "=")
	case "_!=_", "!=":
		return translateComparison(call.Args, "!=")
	case "_<_", "<":
		return translateComparison(call.Args, "<")
	case "_<=_", "<=":
		return translateComparison(call.Args, "<=")
	case "_>_", ">":
		return translateComparison(call.Args, ">")
	case "_>=_", ">=":
		return translateComparison(call.Args, ">=")
	default:
		return nil, fmt.Errorf("unsupported function: %s", call.Function)
	}
}

func translateLogical(args []*expr.Expr, op string) (*EventFilter, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s requires 2 arguments", op)
	}

	left, err := translateExpr(args[0])
	if err != nil {
		return nil, err
	}
	right, err := translateExpr(args[1])
	if err != nil {
		return nil, err
	}

	match := func(event domain.Event) (bool, error) {
		leftOK, err := left.match(event)
		if err != nil {
			return false, err
		}
		rightOK, err := right.match(event)
		if err != nil {
			return false, err
		}
		if op == "AND" {
			return leftOK && rightOK, nil
		}
		return leftOK || rightOK, nil
	}

	return &EventFilter{
		clause: fmt.Sprintf("(%s %s %s)", left.clause, op, right.clause),
		params: append(append([]any(nil), left.params...), right.params...),
		match:  match,
	}, nil
}

func translateComparison(args []*expr.Expr, op string) (*EventFilter, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("comparison requires 2 arguments")
	}

	name, err := extractFieldName(args[0])
	if err != nil {
		return nil, err
	}
	field, ok := eventFields[name]
	if !ok {
		return nil, fmt.Errorf("unknown field: %s", name)
	}

	value, err := extractValue(args[1])
	if err != nil {
		return nil, err
	}

	sqlParam := value
	if ts, ok := value.(time.Time); ok {
		sqlParam = ts.UTC().UnixMilli()
	}

	match := func(event domain.Event) (bool, error) {
		return compareValues(field.value(event), value, op)
	}

	return &EventFilter{
		clause: fmt.Sprintf("%s %s ?", field.column, op),
		params: []any{sqlParam},
		match:  match,
	}, nil
}

func compareValues(fieldValue, constValue any, op string) (bool, error) {
	switch fv := fieldValue.(type) {
	case string:
		cv, ok := constValue.(string)
		if !ok {
			return false, fmt.Errorf("type mismatch comparing string field")
		}
		return compareOrdered(strings.Compare(fv, cv), op)
	case bool:
		cv, ok := constValue.(bool)
		if !ok {
			return false, fmt.Errorf("type mismatch comparing bool field")
		}
		switch op {
		case "=":
			return fv == cv, nil
		case "!=":
			return fv != cv, nil
		default:
			return false, fmt.Errorf("unsupported bool comparison: %s", op)
		}
	case time.Time:
		cv, ok := constValue.(time.Time)
		if !ok {
			return false, fmt.Errorf("type mismatch comparing timestamp field")
		}
		switch {
		case fv.Before(cv):
			return compareOrdered(-1, op)
		case fv.After(cv):
			return compareOrdered(1, op)
		default:
			return compareOrdered(0, op)
		}
	default:
		return false, fmt.Errorf("unsupported field type: %T", fieldValue)
	}
}

func compareOrdered(cmp int, op string) (bool, error) {
	switch op {
	case "=":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("unsupported comparison: %s", op)
	}
}

func extractFieldName(e *expr.Expr) (string, error) {
	if e == nil {
		return "", fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.Name, nil
	default:
		return "", fmt.Errorf("expected identifier, got %T", kind)
	}
}

func extractValue(e *expr.Expr) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}

	switch kind := e.ExprKind.(type) {
	case *expr.Expr_ConstExpr:
		return extractConstValue(kind.ConstExpr)
	case *expr.Expr_IdentExpr:
		switch kind.IdentExpr.GetName() {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("unsupported identifier in value position: %s", kind.IdentExpr.GetName())
	case *expr.Expr_CallExpr:
		if kind.CallExpr.Function == "timestamp" && len(kind.CallExpr.Args) == 1 {
			return extractTimestampValue(kind.CallExpr.Args[0])
		}
		return nil, fmt.Errorf("unsupported function in value position: %s", kind.CallExpr.Function)
	default:
		return nil, fmt.Errorf("expected constant or timestamp, got %T", kind)
	}
}

func extractConstValue(c *expr.Constant) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("nil constant")
	}

	switch kind := c.ConstantKind.(type) {
	case *expr.Constant_StringValue:
		return kind.StringValue, nil
	case *expr.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, fmt.Errorf("unsupported constant type: %T", kind)
	}
}

func extractTimestampValue(e *expr.Expr) (time.Time, error) {
	if e == nil {
		return time.Time{}, fmt.Errorf("nil timestamp argument")
	}

	kind, ok := e.ExprKind.(*expr.Expr_ConstExpr)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp argument must be a constant string")
	}
	strVal, ok := kind.ConstExpr.ConstantKind.(*expr.Constant_StringValue)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp argument must be a string")
	}
	ts, err := time.Parse(time.RFC3339, strVal.StringValue)
	if err != nil {
		ts, err = time.Parse(time.RFC3339Nano, strVal.StringValue)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp format: %s", strVal.StringValue)
		}
	}
	return ts.UTC(), nil
}
