package expr

import (
	"strconv"
	"strings"
)

// Expr is a parsed expression node. String() unparses the node such that
// Parse(e.String()) yields an equal tree.
type Expr interface {
	String() string
	exprNode()
}

type BoolOp string

const (
	OpAnd BoolOp = "and"
	OpOr  BoolOp = "or"
)

// BinaryExpr is an and/or combination.
type BinaryExpr struct {
	Op    BoolOp
	Left  Expr
	Right Expr
}

func (e *BinaryExpr) exprNode() {}

func (e *BinaryExpr) String() string {
	left := e.Left.String()
	right := e.Right.String()
	// and binds tighter than or; parenthesize an or operand under an and.
	if e.Op == OpAnd {
		if inner, ok := e.Left.(*BinaryExpr); ok && inner.Op == OpOr {
			left = "(" + left + ")"
		}
		if inner, ok := e.Right.(*BinaryExpr); ok && inner.Op == OpOr {
			right = "(" + right + ")"
		}
	}
	return left + " " + string(e.Op) + " " + right
}

// NotExpr negates its operand.
type NotExpr struct {
	Inner Expr
}

func (e *NotExpr) exprNode() {}

func (e *NotExpr) String() string {
	if _, ok := e.Inner.(*BinaryExpr); ok {
		return "not (" + e.Inner.String() + ")"
	}
	return "not " + e.Inner.String()
}

type CmpOp string

const (
	CmpEq  CmpOp = "=="
	CmpNeq CmpOp = "!="
	CmpLt  CmpOp = "<"
	CmpLte CmpOp = "<="
	CmpGt  CmpOp = ">"
	CmpGte CmpOp = ">="
	CmpIn  CmpOp = "in"
)

// CompareExpr is a comparison between two primaries.
type CompareExpr struct {
	Op    CmpOp
	Left  Expr
	Right Expr
}

func (e *CompareExpr) exprNode() {}

func (e *CompareExpr) String() string {
	if e.Op == CmpIn {
		return e.Left.String() + " in " + e.Right.String()
	}
	return e.Left.String() + string(e.Op) + e.Right.String()
}

// CallExpr is a function call such as exists(audio, language==eng).
type CallExpr struct {
	Name string
	Args []Expr
}

func (e *CallExpr) exprNode() {}

func (e *CallExpr) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return e.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Ident is a bare identifier (audio, eng, dts-hd, not_commentary).
type Ident struct {
	Name string
}

func (e *Ident) exprNode()      {}
func (e *Ident) String() string { return e.Name }

// NumberLit is a numeric literal; the source text is preserved so
// unparsing round-trips exactly.
type NumberLit struct {
	Text  string
	Value float64
}

func (e *NumberLit) exprNode()      {}
func (e *NumberLit) String() string { return e.Text }

// SizeLit is a size literal (15M, 192k, 1.5GB) with its byte value.
type SizeLit struct {
	Text  string
	Bytes int64
}

func (e *SizeLit) exprNode()      {}
func (e *SizeLit) String() string { return e.Text }

// StringLit is a quoted string.
type StringLit struct {
	Value string
}

func (e *StringLit) exprNode() {}

func (e *StringLit) String() string {
	return strconv.Quote(e.Value)
}

// BoolLit is true or false.
type BoolLit struct {
	Value bool
}

func (e *BoolLit) exprNode() {}

func (e *BoolLit) String() string {
	if e.Value {
		return "true"
	}
	return "false"
}

// ListLit is a bracketed value list.
type ListLit struct {
	Items []Expr
}

func (e *ListLit) exprNode() {}

func (e *ListLit) String() string {
	parts := make([]string, len(e.Items))
	for i, item := range e.Items {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Equal reports structural equality of two expression trees.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}
