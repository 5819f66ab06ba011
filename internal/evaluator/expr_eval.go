package evaluator

import (
	"fmt"
	"strings"

	"github.com/randomparity/vpo/internal/domain"
	"github.com/randomparity/vpo/internal/policy"
	"github.com/randomparity/vpo/internal/policy/expr"
)

// exprValue is a runtime value produced by expression evaluation.
type exprValue struct {
	kind   string // bool, number, string, list
	b      bool
	num    float64
	str    string
	isSize bool
	list   []exprValue
}

func boolValue(b bool) exprValue      { return exprValue{kind: "bool", b: b} }
func numberValue(n float64) exprValue { return exprValue{kind: "number", num: n} }
func stringValue(s string) exprValue  { return exprValue{kind: "string", str: s} }

// evalExprBool evaluates a compiled expression to a boolean result.
func evalExprBool(e expr.Expr, ctx condContext) (bool, error) {
	v, err := evalExpr(e, ctx)
	if err != nil {
		return false, err
	}
	switch v.kind {
	case "bool":
		return v.b, nil
	case "number":
		return v.num != 0, nil
	case "string":
		return v.str != "", nil
	default:
		return len(v.list) > 0, nil
	}
}

func evalExpr(e expr.Expr, ctx condContext) (exprValue, error) {
	switch node := e.(type) {
	case *expr.BinaryExpr:
		left, err := evalExprBool(node.Left, ctx)
		if err != nil {
			return exprValue{}, err
		}
		// Short-circuit like any infix language would.
		if node.Op == expr.OpAnd && !left {
			return boolValue(false), nil
		}
		if node.Op == expr.OpOr && left {
			return boolValue(true), nil
		}
		right, err := evalExprBool(node.Right, ctx)
		if err != nil {
			return exprValue{}, err
		}
		return boolValue(right), nil

	case *expr.NotExpr:
		inner, err := evalExprBool(node.Inner, ctx)
		if err != nil {
			return exprValue{}, err
		}
		return boolValue(!inner), nil

	case *expr.CompareExpr:
		return evalCompare(node, ctx)

	case *expr.CallExpr:
		return evalCall(node, ctx)

	case *expr.Ident:
		return evalIdent(node, ctx)

	case *expr.NumberLit:
		return numberValue(node.Value), nil

	case *expr.SizeLit:
		v := numberValue(float64(node.Bytes))
		v.isSize = true
		return v, nil

	case *expr.StringLit:
		return stringValue(node.Value), nil

	case *expr.BoolLit:
		return boolValue(node.Value), nil

	case *expr.ListLit:
		out := exprValue{kind: "list"}
		for _, item := range node.Items {
			v, err := evalExpr(item, ctx)
			if err != nil {
				return exprValue{}, err
			}
			out.list = append(out.list, v)
		}
		return out, nil

	default:
		return exprValue{}, fmt.Errorf("unsupported expression node %T", e)
	}
}

// evalIdent resolves bare identifiers with condition semantics:
// is_original and is_dubbed consult the classification analysis; anything
// else evaluates to its own name so comparisons against identifiers work
// (language==eng).
func evalIdent(node *expr.Ident, ctx condContext) (exprValue, error) {
	switch node.Name {
	case "is_original":
		return boolValue(evalClassification(policy.ClassificationQuery{}, true, ctx)), nil
	case "is_dubbed":
		return boolValue(evalClassification(policy.ClassificationQuery{}, false, ctx)), nil
	default:
		return stringValue(node.Name), nil
	}
}

func evalCompare(node *expr.CompareExpr, ctx condContext) (exprValue, error) {
	left, err := evalExpr(node.Left, ctx)
	if err != nil {
		return exprValue{}, err
	}
	right, err := evalExpr(node.Right, ctx)
	if err != nil {
		return exprValue{}, err
	}

	switch node.Op {
	case expr.CmpIn:
		if right.kind != "list" {
			return exprValue{}, fmt.Errorf("right side of 'in' must be a list")
		}
		for _, item := range right.list {
			if valuesEqual(left, item) {
				return boolValue(true), nil
			}
		}
		return boolValue(false), nil

	case expr.CmpEq:
		return boolValue(valuesEqual(left, right)), nil
	case expr.CmpNeq:
		return boolValue(!valuesEqual(left, right)), nil
	}

	// Ordered comparisons require numbers on both sides.
	if left.kind != "number" || right.kind != "number" {
		return exprValue{}, fmt.Errorf("operator %s requires numeric operands", node.Op)
	}
	switch node.Op {
	case expr.CmpLt:
		return boolValue(left.num < right.num), nil
	case expr.CmpLte:
		return boolValue(left.num <= right.num), nil
	case expr.CmpGt:
		return boolValue(left.num > right.num), nil
	case expr.CmpGte:
		return boolValue(left.num >= right.num), nil
	default:
		return exprValue{}, fmt.Errorf("unknown comparison %s", node.Op)
	}
}

func valuesEqual(a, b exprValue) bool {
	if a.kind == "number" && b.kind == "number" {
		return a.num == b.num
	}
	if a.kind == "string" && b.kind == "string" {
		return strings.EqualFold(a.str, b.str)
	}
	if a.kind == "bool" && b.kind == "bool" {
		return a.b == b.b
	}
	return false
}

// evalCall dispatches the function-call primaries.
func evalCall(node *expr.CallExpr, ctx condContext) (exprValue, error) {
	switch node.Name {
	case "exists":
		kind, pred, err := callTrackArgs(node, ctx)
		if err != nil {
			return exprValue{}, err
		}
		for _, t := range tracksOfType(ctx.tracks, kind) {
			if pred(t) {
				return boolValue(true), nil
			}
		}
		return boolValue(false), nil

	case "count":
		kind, pred, err := callTrackArgs(node, ctx)
		if err != nil {
			return exprValue{}, err
		}
		count := 0
		for _, t := range tracksOfType(ctx.tracks, kind) {
			if pred(t) {
				count++
			}
		}
		return numberValue(float64(count)), nil

	case "plugin_metadata", "plugin":
		if len(node.Args) != 2 {
			return exprValue{}, fmt.Errorf("%s() takes (plugin, field)", node.Name)
		}
		pluginName, err := identOrString(node.Args[0])
		if err != nil {
			return exprValue{}, err
		}
		field, err := identOrString(node.Args[1])
		if err != nil {
			return exprValue{}, err
		}
		value, present := ctx.analyses.PluginField(pluginName, field)
		if !present {
			return stringValue(""), nil
		}
		return anyToValue(value), nil

	case "container_metadata":
		if len(node.Args) != 1 {
			return exprValue{}, fmt.Errorf("container_metadata() takes (field)")
		}
		field, err := identOrString(node.Args[0])
		if err != nil {
			return exprValue{}, err
		}
		return stringValue(ctx.tags[strings.ToLower(field)]), nil

	case "audio_is_multi_language":
		q := policy.MultiLanguageQuery{}
		for _, arg := range node.Args {
			switch a := arg.(type) {
			case *expr.NumberLit:
				q.Threshold = a.Value
			case *expr.Ident:
				q.PrimaryLanguage = a.Name
			case *expr.StringLit:
				q.PrimaryLanguage = a.Value
			default:
				return exprValue{}, fmt.Errorf("audio_is_multi_language() takes (threshold?, primary_language?)")
			}
		}
		return boolValue(evalMultiLanguage(q, ctx)), nil

	default:
		return exprValue{}, fmt.Errorf("unknown function %q", node.Name)
	}
}

// callTrackArgs interprets exists()/count() arguments: the first is the
// track kind, the rest are filter expressions (language==eng,
// not_commentary, channels>=6, codec in [aac, ac3], title=="...").
func callTrackArgs(node *expr.CallExpr, ctx condContext) (string, func(domain.Track) bool, error) {
	if len(node.Args) == 0 {
		return "", nil, fmt.Errorf("%s() requires a track kind", node.Name)
	}
	kindIdent, ok := node.Args[0].(*expr.Ident)
	if !ok {
		return "", nil, fmt.Errorf("%s(): first argument must be a track kind", node.Name)
	}

	var preds []func(domain.Track) (bool, error)
	for _, arg := range node.Args[1:] {
		pred, err := trackFilterFromExpr(arg, ctx)
		if err != nil {
			return "", nil, fmt.Errorf("%s(): %w", node.Name, err)
		}
		preds = append(preds, pred)
	}

	return kindIdent.Name, func(t domain.Track) bool {
		for _, pred := range preds {
			ok, err := pred(t)
			if err != nil || !ok {
				return false
			}
		}
		return true
	}, nil
}

// trackFilterFromExpr turns one filter argument into a per-track
// predicate.
func trackFilterFromExpr(arg expr.Expr, ctx condContext) (func(domain.Track) (bool, error), error) {
	switch node := arg.(type) {
	case *expr.Ident:
		switch node.Name {
		case "not_commentary":
			return func(t domain.Track) (bool, error) { return !isCommentary(t, ctx.analyses), nil }, nil
		case "is_default":
			return func(t domain.Track) (bool, error) { return t.Default, nil }, nil
		case "is_forced":
			return func(t domain.Track) (bool, error) { return t.Forced, nil }, nil
		default:
			return nil, fmt.Errorf("unknown filter %q", node.Name)
		}

	case *expr.NotExpr:
		inner, err := trackFilterFromExpr(node.Inner, ctx)
		if err != nil {
			return nil, err
		}
		return func(t domain.Track) (bool, error) {
			ok, err := inner(t)
			return !ok, err
		}, nil

	case *expr.CompareExpr:
		field, ok := node.Left.(*expr.Ident)
		if !ok {
			return nil, fmt.Errorf("filter comparison must start with a field name")
		}
		return trackFieldCompare(field.Name, node.Op, node.Right, ctx)

	default:
		return nil, fmt.Errorf("unsupported filter form %s", arg.String())
	}
}

func trackFieldCompare(field string, op expr.CmpOp, rhs expr.Expr, ctx condContext) (func(domain.Track) (bool, error), error) {
	getString := func(t domain.Track) (string, bool) {
		switch field {
		case "language":
			return t.Language, true
		case "codec":
			return t.Codec, true
		case "title":
			return t.Title, true
		}
		return "", false
	}
	getNumber := func(t domain.Track) (float64, bool) {
		switch field {
		case "channels":
			return float64(t.Channels), true
		case "width":
			return float64(t.Width), true
		case "height":
			return float64(t.Height), true
		}
		return 0, false
	}

	return func(t domain.Track) (bool, error) {
		rv, err := evalExpr(rhs, ctx)
		if err != nil {
			return false, err
		}

		if s, ok := getString(t); ok {
			switch op {
			case expr.CmpEq, expr.CmpNeq:
				if rv.kind != "string" {
					return false, fmt.Errorf("filter %s compares against a name or string", field)
				}
				equal := strings.EqualFold(s, rv.str)
				if field == "codec" {
					equal = domain.AudioCodecMatches(s, rv.str) || domain.VideoCodecMatches(s, rv.str)
				}
				if op == expr.CmpNeq {
					return !equal, nil
				}
				return equal, nil
			case expr.CmpIn:
				for _, item := range rv.list {
					if item.kind == "string" && strings.EqualFold(s, item.str) {
						return true, nil
					}
					if field == "codec" && item.kind == "string" && domain.AudioCodecMatches(s, item.str) {
						return true, nil
					}
				}
				return false, nil
			default:
				return false, fmt.Errorf("filter %s does not support operator %s", field, op)
			}
		}

		if n, ok := getNumber(t); ok {
			if rv.kind != "number" {
				return false, fmt.Errorf("filter %s requires a numeric value", field)
			}
			switch op {
			case expr.CmpEq:
				return n == rv.num, nil
			case expr.CmpNeq:
				return n != rv.num, nil
			case expr.CmpLt:
				return n < rv.num, nil
			case expr.CmpLte:
				return n <= rv.num, nil
			case expr.CmpGt:
				return n > rv.num, nil
			case expr.CmpGte:
				return n >= rv.num, nil
			default:
				return false, fmt.Errorf("filter %s does not support operator %s", field, op)
			}
		}

		return false, fmt.Errorf("unknown filter field %q", field)
	}, nil
}

func identOrString(e expr.Expr) (string, error) {
	switch node := e.(type) {
	case *expr.Ident:
		return node.Name, nil
	case *expr.StringLit:
		return node.Value, nil
	default:
		return "", fmt.Errorf("expected a name or string, got %s", e.String())
	}
}

func anyToValue(v any) exprValue {
	switch value := v.(type) {
	case string:
		return stringValue(value)
	case bool:
		return boolValue(value)
	case int:
		return numberValue(float64(value))
	case int64:
		return numberValue(float64(value))
	case float64:
		return numberValue(value)
	default:
		return stringValue(fmt.Sprintf("%v", value))
	}
}
