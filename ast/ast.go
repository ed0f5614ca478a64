package ast

// Token records where a node came from in the source program.
type Token struct {
	Literal string
	Line    int
}

type Node interface {
	TokenLiteral() string
}

// Expression nodes carry the static type the semantic checker assigned to
// them. The code generator never infers types on its own.
type Expression interface {
	Node
	expressionNode()
	ExprType() string
	SetExprType(t string)
}

type Feature interface {
	Node
	featureNode()
}

// Annotation is embedded by every expression node.
type Annotation struct {
	Static string
}

func (a *Annotation) ExprType() string      { return a.Static }
func (a *Annotation) SetExprType(t string) { a.Static = t }

// Well-known type names.
const (
	ObjectType = "Object"
	IOType     = "IO"
	IntType    = "Int"
	BoolType   = "Bool"
	StringType = "String"
	SelfType   = "SELF_TYPE"
	SelfName   = "self"
)

type TypeIdentifier struct {
	Token Token
	Value string
}

func (ti *TypeIdentifier) TokenLiteral() string { return ti.Token.Literal }

type ObjectIdentifier struct {
	Annotation
	Token Token
	Value string
}

func (oi *ObjectIdentifier) TokenLiteral() string { return oi.Token.Literal }
func (oi *ObjectIdentifier) expressionNode()      {}

type Program struct {
	Classes []*Class
}

func (p *Program) TokenLiteral() string { return "" }

// Class is a class declaration. A nil Parent means the class inherits
// directly from Object.
type Class struct {
	Token    Token
	Name     *TypeIdentifier
	Parent   *TypeIdentifier
	Features []Feature
	Filename string
}

func (c *Class) TokenLiteral() string { return c.Token.Literal }

// ParentName resolves the implicit Object parent.
func (c *Class) ParentName() string {
	if c.Parent == nil {
		return ObjectType
	}
	return c.Parent.Value
}

type Formal struct {
	Token    Token
	Name     *ObjectIdentifier
	TypeDecl *TypeIdentifier
}

func (f *Formal) TokenLiteral() string { return f.Token.Literal }

// Method with formal parameters. Body is nil for methods the runtime
// implements.
type Method struct {
	Token    Token
	Name     *ObjectIdentifier
	Formals  []*Formal
	TypeDecl *TypeIdentifier
	Body     Expression
}

func (m *Method) TokenLiteral() string { return m.Token.Literal }
func (m *Method) featureNode()         {}

type Attribute struct {
	Token    Token
	Name     *ObjectIdentifier
	TypeDecl *TypeIdentifier
	Init     Expression
}

func (a *Attribute) TokenLiteral() string { return a.Token.Literal }
func (a *Attribute) featureNode()         {}

// Expression types
type IntegerLiteral struct {
	Annotation
	Token Token
	Value int64
}

func (il *IntegerLiteral) TokenLiteral() string { return il.Token.Literal }
func (il *IntegerLiteral) expressionNode()      {}

type StringLiteral struct {
	Annotation
	Token Token
	Value string
}

func (sl *StringLiteral) TokenLiteral() string { return sl.Token.Literal }
func (sl *StringLiteral) expressionNode()      {}

type BooleanLiteral struct {
	Annotation
	Token Token
	Value bool
}

func (bl *BooleanLiteral) TokenLiteral() string { return bl.Token.Literal }
func (bl *BooleanLiteral) expressionNode()      {}

type Assignment struct {
	Annotation
	Token Token
	Name  *ObjectIdentifier
	Value Expression
}

func (as *Assignment) TokenLiteral() string { return as.Token.Literal }
func (as *Assignment) expressionNode()      {}

// BinaryExpression covers + - * / < <= =.
type BinaryExpression struct {
	Annotation
	Token    Token
	Left     Expression
	Operator string
	Right    Expression
}

func (be *BinaryExpression) TokenLiteral() string { return be.Token.Literal }
func (be *BinaryExpression) expressionNode()      {}

// UnaryExpression covers ~ (integer negation) and not.
type UnaryExpression struct {
	Annotation
	Token    Token
	Operator string
	Right    Expression
}

func (ue *UnaryExpression) TokenLiteral() string { return ue.Token.Literal }
func (ue *UnaryExpression) expressionNode()      {}

type IfExpression struct {
	Annotation
	Token       Token
	Condition   Expression
	Consequence Expression
	Alternative Expression
}

func (ie *IfExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *IfExpression) expressionNode()      {}

type WhileExpression struct {
	Annotation
	Token     Token
	Condition Expression
	Body      Expression
}

func (we *WhileExpression) TokenLiteral() string { return we.Token.Literal }
func (we *WhileExpression) expressionNode()      {}

type BlockExpression struct {
	Annotation
	Token       Token
	Expressions []Expression
}

func (be *BlockExpression) TokenLiteral() string { return be.Token.Literal }
func (be *BlockExpression) expressionNode()      {}

type LetBinding struct {
	Identifier *ObjectIdentifier
	Type       *TypeIdentifier
	Init       Expression
}

type LetExpression struct {
	Annotation
	Token    Token
	Bindings []*LetBinding
	In       Expression
}

func (le *LetExpression) TokenLiteral() string { return le.Token.Literal }
func (le *LetExpression) expressionNode()      {}

type CaseBranch struct {
	Token      Token
	Pattern    *ObjectIdentifier
	Type       *TypeIdentifier
	Expression Expression
}

type CaseExpression struct {
	Annotation
	Token    Token
	Expr     Expression
	Branches []*CaseBranch
}

func (ce *CaseExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *CaseExpression) expressionNode()      {}

type NewExpression struct {
	Annotation
	Token Token
	Type  *TypeIdentifier
}

func (ne *NewExpression) TokenLiteral() string { return ne.Token.Literal }
func (ne *NewExpression) expressionNode()      {}

type IsVoidExpression struct {
	Annotation
	Token      Token
	Expression Expression
}

func (iv *IsVoidExpression) TokenLiteral() string { return iv.Token.Literal }
func (iv *IsVoidExpression) expressionNode()      {}

type DispatchExpression struct {
	Annotation
	Token      Token
	Object     Expression      // Can be nil for implicit self dispatch
	StaticType *TypeIdentifier // Can be nil for dynamic dispatch
	Method     *ObjectIdentifier
	Arguments  []Expression
}

func (de *DispatchExpression) TokenLiteral() string { return de.Token.Literal }
func (de *DispatchExpression) expressionNode()      {}
