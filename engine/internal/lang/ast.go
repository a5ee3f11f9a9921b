package lang

// Node is an expression tree node.
type Node interface{ node() }

// IntLit is an integer literal.
type IntLit struct {
	Val  int64
	Line int
}

// FloatLit is a floating point literal.
type FloatLit struct {
	Val  float64
	Line int
}

// StrLit is a string literal.
type StrLit struct {
	Val  string
	Line int
}

// BoolLit is true or false.
type BoolLit struct {
	Val  bool
	Line int
}

// NothingLit is the nothing singleton.
type NothingLit struct {
	Line int
}

// Var references a name.
type Var struct {
	Name string
	Line int
}

// Call applies a callee to arguments.
type Call struct {
	Fn   Node
	Args []Node
	Line int
}

// BinOp is a binary operator application.
type BinOp struct {
	Op   string
	L, R Node
	Line int
}

// UnOp is a unary operator application.
type UnOp struct {
	Op   string
	X    Node
	Line int
}

// Assign binds a name in the enclosing scope.
type Assign struct {
	Name string
	Val  Node
	Line int
}

// Field reads x.name.
type Field struct {
	X    Node
	Name string
	Line int
}

// FieldAssign writes x.name = val.
type FieldAssign struct {
	X    Node
	Name string
	Val  Node
	Line int
}

// FuncDef declares a named function, from either the long form or the
// short assignment form.
type FuncDef struct {
	Name   string
	Params []string
	Body   []Node
	Line   int
}

// If is a conditional with optional else branch. elseif chains nest in
// Else as a single-element If.
type If struct {
	Cond Node
	Then []Node
	Else []Node
	Line int
}

// While loops until Cond is false.
type While struct {
	Cond Node
	Body []Node
	Line int
}

// Block is a begin...end sequence.
type Block struct {
	Body []Node
	Line int
}

// Return exits the enclosing function.
type Return struct {
	X    Node
	Line int
}

// StructDef declares a composite type.
type StructDef struct {
	Name    string
	Mutable bool
	Fields  []StructField
	Line    int
}

// StructField is a field declaration inside a struct body.
type StructField struct {
	Name string
	Type string
}

func (*IntLit) node()      {}
func (*FloatLit) node()    {}
func (*StrLit) node()      {}
func (*BoolLit) node()     {}
func (*NothingLit) node()  {}
func (*Var) node()         {}
func (*Call) node()        {}
func (*BinOp) node()       {}
func (*UnOp) node()        {}
func (*Assign) node()      {}
func (*Field) node()       {}
func (*FieldAssign) node() {}
func (*FuncDef) node()     {}
func (*If) node()          {}
func (*While) node()       {}
func (*Block) node()       {}
func (*Return) node()      {}
func (*StructDef) node()   {}
