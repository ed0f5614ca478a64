package ast

import (
	"fmt"
	"strings"
)

// SerializeExpression renders an expression back into COOL surface syntax.
// Code generation diagnostics use it to point at the offending expression.
func SerializeExpression(exp Expression) string {
	if exp == nil {
		return ""
	}

	switch node := exp.(type) {
	case *IntegerLiteral:
		return fmt.Sprintf("%d", node.Value)

	case *StringLiteral:
		return fmt.Sprintf("\"%s\"", node.Value)

	case *BooleanLiteral:
		return fmt.Sprintf("%v", node.Value)

	case *ObjectIdentifier:
		return node.Value

	case *UnaryExpression:
		return fmt.Sprintf("(%s %s)", node.Operator, SerializeExpression(node.Right))

	case *BinaryExpression:
		return fmt.Sprintf("(%s %s %s)", SerializeExpression(node.Left), node.Operator, SerializeExpression(node.Right))

	case *IfExpression:
		return fmt.Sprintf("if %s then %s else %s fi",
			SerializeExpression(node.Condition),
			SerializeExpression(node.Consequence),
			SerializeExpression(node.Alternative))

	case *BlockExpression:
		exprs := make([]string, len(node.Expressions))
		for i, expr := range node.Expressions {
			exprs[i] = SerializeExpression(expr)
		}
		if len(exprs) > 0 {
			return fmt.Sprintf("{ %s }", strings.Join(exprs, "; "))
		}
		return "{ }"

	case *LetExpression:
		bindings := make([]string, len(node.Bindings))
		for i, binding := range node.Bindings {
			if binding.Init != nil {
				bindings[i] = fmt.Sprintf("%s:%s<-%s",
					binding.Identifier.Value,
					binding.Type.Value,
					SerializeExpression(binding.Init))
			} else {
				bindings[i] = fmt.Sprintf("%s:%s",
					binding.Identifier.Value,
					binding.Type.Value)
			}
		}
		return fmt.Sprintf("let %s in %s",
			strings.Join(bindings, ","),
			SerializeExpression(node.In))

	case *CaseExpression:
		branches := make([]string, len(node.Branches))
		for i, branch := range node.Branches {
			branches[i] = fmt.Sprintf("%s:%s=>%s",
				branch.Pattern.Value,
				branch.Type.Value,
				SerializeExpression(branch.Expression))
		}
		return fmt.Sprintf("case %s of %s esac",
			SerializeExpression(node.Expr),
			strings.Join(branches, "; "))

	case *NewExpression:
		return fmt.Sprintf("new %s", node.Type.Value)

	case *IsVoidExpression:
		return fmt.Sprintf("isvoid %s", SerializeExpression(node.Expression))

	case *DispatchExpression:
		args := make([]string, len(node.Arguments))
		for i, arg := range node.Arguments {
			args[i] = SerializeExpression(arg)
		}

		if node.Object == nil {
			return fmt.Sprintf("%s(%s)",
				node.Method.Value,
				strings.Join(args, ", "))
		}

		if node.StaticType != nil {
			return fmt.Sprintf("%s@%s.%s(%s)",
				SerializeExpression(node.Object),
				node.StaticType.Value,
				node.Method.Value,
				strings.Join(args, ", "))
		}

		return fmt.Sprintf("%s.%s(%s)",
			SerializeExpression(node.Object),
			node.Method.Value,
			strings.Join(args, ", "))

	case *WhileExpression:
		return fmt.Sprintf("while %s loop %s pool", SerializeExpression(node.Condition), SerializeExpression(node.Body))

	case *Assignment:
		return fmt.Sprintf("%s <- %s", node.Name.Value, SerializeExpression(node.Value))

	default:
		return fmt.Sprintf("unknown expression: %T", exp)
	}
}
