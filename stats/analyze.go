package stats

import (
	"regexp"
	"strings"
	"unicode"

	"vitess.io/vitess/go/vt/sqlparser"
)

// Placeholders substituted into normalized query patterns.
const (
	PlaceholderColumn     = "PLACEHOLDER_COLUMN"
	PlaceholderTable      = "PLACEHOLDER_TABLE"
	PlaceholderLiteral    = "PLACEHOLDER_LITERAL"
	PlaceholderAgg        = "PLACEHOLDER_AGG"
	PlaceholderComparison = "PLACEHOLDER_COMPARISON"
)

var parser = sqlparser.NewTestParser()

// Shape holds the structural counts of one query.
type Shape struct {
	Joins      int
	Selects    int
	Unions     int
	Intersects int
	Excepts    int
}

// NestLevel is the number of SELECTs not paired off by an INTERSECT or
// EXCEPT. UNION branches still count.
func (s Shape) NestLevel() int { return s.Selects - (s.Intersects + s.Excepts) }

// Analysis is the outcome of parsing one unified query.
type Analysis struct {
	Query   string
	Shape   Shape
	Pattern string
	Err     error
}

// Analyze parses query and computes its shape and normalized pattern.
func Analyze(query string) Analysis {
	a := Analysis{Query: query}
	rewritten, ops := splitSetOps(query)
	stmt, err := parser.Parse(rewritten)
	if err != nil {
		a.Err = err
		return a
	}
	a.Shape = shapeOf(stmt)
	for _, op := range ops {
		switch op {
		case "intersect":
			a.Shape.Intersects++
			a.Shape.Unions--
		case "except":
			a.Shape.Excepts++
			a.Shape.Unions--
		}
	}
	a.Pattern = restoreSetOps(normalize(stmt), ops)
	return a
}

// splitSetOps finds every UNION, INTERSECT and EXCEPT keyword outside quoted
// text, in order, and rewrites the latter two as UNION so the MySQL grammar
// accepts them. The branches keep their position in the parsed tree.
func splitSetOps(query string) (string, []string) {
	var (
		b     strings.Builder
		ops   []string
		quote rune
	)
	runes := []rune(query)
	for i := 0; i < len(runes); {
		r := runes[i]
		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			i++
			continue
		}
		if r == '\'' || r == '"' || r == '`' {
			quote = r
			b.WriteRune(r)
			i++
			continue
		}
		if !isWordRune(r) {
			b.WriteRune(r)
			i++
			continue
		}
		j := i
		for j < len(runes) && isWordRune(runes[j]) {
			j++
		}
		word := string(runes[i:j])
		switch op := strings.ToLower(word); op {
		case "union":
			ops = append(ops, op)
			b.WriteString(word)
		case "intersect", "except":
			ops = append(ops, op)
			b.WriteString("UNION")
		default:
			b.WriteString(word)
		}
		i = j
	}
	return b.String(), ops
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

var unionWord = regexp.MustCompile(`\bunion\b`)

// restoreSetOps puts the original operator names back into a rendered
// pattern. Placeholders have replaced every identifier and literal, so each
// "union" left is a set operator, rendered in source order.
func restoreSetOps(pattern string, ops []string) string {
	k := 0
	return unionWord.ReplaceAllStringFunc(pattern, func(m string) string {
		if k >= len(ops) {
			return m
		}
		op := ops[k]
		k++
		return op
	})
}

// shapeOf counts joins, SELECTs and set operations anywhere in stmt. A comma
// in the FROM list counts as a join.
func shapeOf(stmt sqlparser.SQLNode) Shape {
	var s Shape
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.Select:
			s.Selects++
			if len(n.From) > 1 {
				s.Joins += len(n.From) - 1
			}
		case *sqlparser.JoinTableExpr:
			s.Joins++
		case *sqlparser.Union:
			s.Unions++
		}
		return true, nil
	}, stmt)
	return s
}

// normalize rewrites stmt in place, replacing columns, tables, literals,
// aggregates and range comparisons with placeholders, and renders it.
func normalize(stmt sqlparser.SQLNode) string {
	out := sqlparser.Rewrite(stmt, func(c *sqlparser.Cursor) bool {
		switch n := c.Node().(type) {
		case *sqlparser.ColName:
			n.Name = sqlparser.NewIdentifierCI(PlaceholderColumn)
			n.Qualifier = sqlparser.TableName{}
		case *sqlparser.AliasedTableExpr:
			if _, ok := n.Expr.(sqlparser.TableName); ok {
				n.Expr = sqlparser.TableName{Name: sqlparser.NewIdentifierCS(PlaceholderTable)}
				n.As = sqlparser.IdentifierCS{}
			}
		case *sqlparser.Literal:
			n.Type = sqlparser.IntVal
			n.Val = PlaceholderLiteral
		case sqlparser.AggrFunc:
			c.Replace(sqlparser.NewColName(PlaceholderAgg))
			return false
		case *sqlparser.ComparisonExpr:
			switch n.Operator {
			case sqlparser.LessThanOp, sqlparser.LessEqualOp, sqlparser.GreaterThanOp, sqlparser.GreaterEqualOp:
				c.Replace(sqlparser.NewColName(PlaceholderComparison))
				return false
			}
		}
		return true
	}, nil)
	return sqlparser.String(out)
}

var (
	columnEquality  = PlaceholderColumn + " = " + PlaceholderColumn
	literalEquality = PlaceholderColumn + " = " + PlaceholderLiteral
)

// UnifyEqualities folds column-to-column equalities into column-to-literal
// ones, except in JOIN conditions. Used for the cross-dataset pattern count.
func UnifyEqualities(pattern string) string {
	pattern = strings.ReplaceAll(pattern, columnEquality, literalEquality)
	return strings.ReplaceAll(pattern, "on "+literalEquality, "on "+columnEquality)
}
