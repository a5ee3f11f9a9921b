package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/julia-runtime/layout"

	"github.com/wippyai/julia-runtime/engine/internal/lang"
)

// maxCallDepth bounds guest recursion before StackOverflowError.
const maxCallDepth = 10000

// evalCtx is one evaluation scope: the module globals resolve against and,
// inside a function, the local bindings.
type evalCtx struct {
	mod    layout.Ptr
	locals map[string]layout.Ptr
	line   int
}

// returnUnwind carries a return value out of a function body.
type returnUnwind struct {
	val layout.Ptr
}

// EvalString parses and evaluates source text in Main, returning the last
// value. A syntax error surfaces as a pending ParseError, a guest fault as
// its own pending exception; both return nil.
func (e *Engine) EvalString(src string) layout.Ptr {
	defer e.begin()()
	return e.protect(func() layout.Ptr {
		prog, err := lang.Parse(src)
		if err != nil {
			e.RaiseParseError(err.Error())
		}
		return e.evalProgram(prog)
	})
}

func (e *Engine) evalProgram(prog []lang.Node) layout.Ptr {
	ctx := &evalCtx{mod: e.main}
	res := e.nothing
	for _, stmt := range prog {
		res = e.eval(ctx, stmt)
	}
	return res
}

// LoadString evaluates a whole source file. A fault anywhere inside is
// wrapped in LoadError carrying the file name and the line being
// evaluated.
func (e *Engine) LoadString(name, src string) layout.Ptr {
	defer e.begin()()
	prog, err := lang.Parse(src)
	if err != nil {
		return e.protect(func() layout.Ptr {
			e.RaiseParseError(err.Error())
			return nil
		})
	}
	ctx := &evalCtx{mod: e.main}
	return e.protect(func() layout.Ptr {
		res := e.nothing
		for _, stmt := range prog {
			res = e.evalWrapped(ctx, stmt, name)
		}
		return res
	})
}

func (e *Engine) evalWrapped(ctx *evalCtx, stmt lang.Node, file string) layout.Ptr {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		gu, ok := r.(*guestUnwind)
		if !ok {
			panic(r)
		}
		if layout.TypeIs(gu.ex, e.exc["LoadError"]) {
			panic(r)
		}
		panic(&guestUnwind{ex: e.newException("LoadError",
			e.BoxString(file), e.BoxInt64(int64(ctx.line)), gu.ex)})
	}()
	return e.eval(ctx, stmt)
}

// ParseString parses source text into its syntax-object form without
// evaluating it. Multiple statements come back under a toplevel
// expression; a lone literal comes back as the boxed literal itself.
func (e *Engine) ParseString(src string) layout.Ptr {
	defer e.begin()()
	return e.protect(func() layout.Ptr {
		prog, err := lang.Parse(src)
		if err != nil {
			e.RaiseParseError(err.Error())
		}
		if len(prog) == 0 {
			return e.nothing
		}
		if len(prog) == 1 {
			return e.quote(prog[0])
		}
		args := make([]layout.Ptr, len(prog))
		for i, stmt := range prog {
			args[i] = e.quote(stmt)
		}
		return e.NewExpr(e.Symbol("toplevel"), args...)
	})
}

// EvalExpr evaluates a syntax object previously produced by ParseString
// in the given module.
func (e *Engine) EvalExpr(x, mod layout.Ptr) layout.Ptr {
	defer e.begin()()
	if mod == nil {
		mod = e.main
	}
	return e.protect(func() layout.Ptr {
		node := e.unquote(x)
		return e.eval(&evalCtx{mod: mod}, node)
	})
}

// Call invokes a callable with already-evaluated arguments.
func (e *Engine) Call(f layout.Ptr, args ...layout.Ptr) layout.Ptr {
	defer e.begin()()
	return e.protect(func() layout.Ptr {
		return e.call(f, args)
	})
}

// Call0 invokes a callable with no arguments.
func (e *Engine) Call0(f layout.Ptr) layout.Ptr { return e.Call(f) }

// Call1 invokes a callable with one argument.
func (e *Engine) Call1(f, a layout.Ptr) layout.Ptr { return e.Call(f, a) }

// Call2 invokes a callable with two arguments.
func (e *Engine) Call2(f, a, b layout.Ptr) layout.Ptr { return e.Call(f, a, b) }

// Call3 invokes a callable with three arguments.
func (e *Engine) Call3(f, a, b, c layout.Ptr) layout.Ptr { return e.Call(f, a, b, c) }

func (e *Engine) call(f layout.Ptr, args []layout.Ptr) layout.Ptr {
	if fi, ok := e.funcs[f]; ok {
		if fi.host != nil {
			return e.callHost(fi, args)
		}
		return e.callGuest(fi, args)
	}
	if layout.TypeTagIs(f, uintptr(layout.TagDataType)<<4) {
		return e.NewStruct(f, args...)
	}
	e.RaiseMethodError(f, args)
	return nil
}

func (e *Engine) callHost(fi *funcInfo, args []layout.Ptr) layout.Ptr {
	res := fi.host(e, args)
	if res == nil {
		return e.nothing
	}
	return res
}

func (e *Engine) callGuest(fi *funcInfo, args []layout.Ptr) (res layout.Ptr) {
	if len(args) < len(fi.params) {
		e.RaiseTooFewArgs(fi.name, len(fi.params))
	}
	if len(args) > len(fi.params) {
		e.RaiseTooManyArgs(fi.name, len(fi.params))
	}
	if e.callDepth >= maxCallDepth {
		e.Throw(e.newException("StackOverflowError"))
	}
	e.callDepth++
	defer func() {
		e.callDepth--
		if r := recover(); r != nil {
			ru, ok := r.(*returnUnwind)
			if !ok {
				panic(r)
			}
			res = ru.val
		}
	}()

	ctx := &evalCtx{mod: fi.mod, locals: make(map[string]layout.Ptr, len(fi.params))}
	for i, p := range fi.params {
		ctx.locals[p] = args[i]
	}
	res = e.nothing
	for _, stmt := range fi.body {
		res = e.eval(ctx, stmt)
	}
	return res
}

func (e *Engine) eval(ctx *evalCtx, node lang.Node) layout.Ptr {
	switch n := node.(type) {
	case *lang.IntLit:
		ctx.line = n.Line
		return e.BoxInt64(n.Val)
	case *lang.FloatLit:
		ctx.line = n.Line
		return e.BoxFloat64(n.Val)
	case *lang.StrLit:
		ctx.line = n.Line
		return e.BoxString(n.Val)
	case *lang.BoolLit:
		ctx.line = n.Line
		return e.BoxBool(n.Val)
	case *lang.NothingLit:
		return e.nothing
	case *lang.Var:
		ctx.line = n.Line
		return e.lookup(ctx, n.Name)
	case *lang.Assign:
		ctx.line = n.Line
		val := e.eval(ctx, n.Val)
		if ctx.locals != nil {
			ctx.locals[n.Name] = val
		} else {
			e.SetGlobal(ctx.mod, e.Symbol(n.Name), val)
		}
		return val
	case *lang.FuncDef:
		ctx.line = n.Line
		f := e.newFunction(n.Name, ctx.mod, n.Params, n.Body, nil)
		e.SetGlobal(ctx.mod, e.Symbol(n.Name), f)
		return f
	case *lang.StructDef:
		ctx.line = n.Line
		return e.evalStructDef(ctx, n)
	case *lang.Call:
		ctx.line = n.Line
		f := e.eval(ctx, n.Fn)
		args := make([]layout.Ptr, len(n.Args))
		for i, a := range n.Args {
			args[i] = e.eval(ctx, a)
		}
		return e.call(f, args)
	case *lang.BinOp:
		ctx.line = n.Line
		return e.evalBinOp(ctx, n)
	case *lang.UnOp:
		ctx.line = n.Line
		return e.evalUnOp(ctx, n)
	case *lang.Field:
		ctx.line = n.Line
		return e.evalField(ctx, n)
	case *lang.FieldAssign:
		ctx.line = n.Line
		v := e.eval(ctx, n.X)
		val := e.eval(ctx, n.Val)
		e.setFieldByName(v, n.Name, val)
		return val
	case *lang.If:
		ctx.line = n.Line
		if e.truth(e.eval(ctx, n.Cond)) {
			return e.evalBody(ctx, n.Then)
		}
		return e.evalBody(ctx, n.Else)
	case *lang.While:
		ctx.line = n.Line
		for e.truth(e.eval(ctx, n.Cond)) {
			e.evalBody(ctx, n.Body)
			e.ts.Safepoint()
		}
		return e.nothing
	case *lang.Block:
		return e.evalBody(ctx, n.Body)
	case *lang.Return:
		ctx.line = n.Line
		panic(&returnUnwind{val: e.eval(ctx, n.X)})
	}
	e.Raisef("cannot evaluate %T", node)
	return nil
}

func (e *Engine) evalBody(ctx *evalCtx, body []lang.Node) layout.Ptr {
	res := e.nothing
	for _, stmt := range body {
		res = e.eval(ctx, stmt)
	}
	return res
}

func (e *Engine) lookup(ctx *evalCtx, name string) layout.Ptr {
	if ctx.locals != nil {
		if v, ok := ctx.locals[name]; ok {
			return v
		}
	}
	sym := e.Symbol(name)
	if v := e.GetGlobal(ctx.mod, sym); v != nil {
		return v
	}
	e.RaiseUndefVar(sym)
	return nil
}

func (e *Engine) evalStructDef(ctx *evalCtx, n *lang.StructDef) layout.Ptr {
	names := make([]string, len(n.Fields))
	ftypes := make([]layout.Ptr, len(n.Fields))
	for i, f := range n.Fields {
		names[i] = f.Name
		if f.Type == "" {
			ftypes[i] = e.types.any
			continue
		}
		t := e.lookup(ctx, f.Type)
		if !layout.TypeTagIs(t, uintptr(layout.TagDataType)<<4) {
			e.RaiseTypeError("struct", e.types.datatype, t)
		}
		ftypes[i] = t
	}
	e.NewStructType(n.Name, ctx.mod, e.types.any, names, ftypes, n.Mutable)
	return e.nothing
}

func (e *Engine) evalField(ctx *evalCtx, n *lang.Field) layout.Ptr {
	x := e.eval(ctx, n.X)
	if layout.TypeTagIs(x, uintptr(layout.TagModule)<<4) {
		v := e.GetGlobal(x, e.Symbol(n.Name))
		if v == nil {
			e.RaiseUndefVar(e.Symbol(n.Name))
		}
		return v
	}
	return e.getFieldByName(x, n.Name)
}

func (e *Engine) getFieldByName(v layout.Ptr, name string) layout.Ptr {
	dt := layout.TypeOf(v)
	i := e.FieldIndex(dt, e.Symbol(name))
	if i < 0 {
		e.Raisef("type %s has no field %s", e.DataTypeName(dt), name)
	}
	return e.GetNthField(v, i)
}

func (e *Engine) setFieldByName(v layout.Ptr, name string, x layout.Ptr) {
	dt := layout.TypeOf(v)
	i := e.FieldIndex(dt, e.Symbol(name))
	if i < 0 {
		e.Raisef("type %s has no field %s", e.DataTypeName(dt), name)
	}
	e.SetNthField(v, i, x)
}

// truth requires a Bool; anything else is a type error, there is no
// implicit conversion in conditions.
func (e *Engine) truth(v layout.Ptr) bool {
	if !layout.TypeIs(v, e.types.boolT) {
		e.RaiseTypeError("if", e.types.boolT, v)
	}
	return layout.Word(v, 0) != 0
}

func (e *Engine) evalBinOp(ctx *evalCtx, n *lang.BinOp) layout.Ptr {
	// Short-circuit forms evaluate the right side conditionally.
	switch n.Op {
	case "&&":
		if !e.truth(e.eval(ctx, n.L)) {
			return e.falseV
		}
		return e.BoxBool(e.truth(e.eval(ctx, n.R)))
	case "||":
		if e.truth(e.eval(ctx, n.L)) {
			return e.trueV
		}
		return e.BoxBool(e.truth(e.eval(ctx, n.R)))
	}
	l := e.eval(ctx, n.L)
	r := e.eval(ctx, n.R)
	return e.applyBinOp(n.Op, l, r)
}

func (e *Engine) applyBinOp(op string, l, r layout.Ptr) layout.Ptr {
	// String concatenation and comparison.
	if layout.TypeTagIs(l, uintptr(layout.TagString)<<4) && layout.TypeTagIs(r, uintptr(layout.TagString)<<4) {
		ls, rs := layout.GoString(l), layout.GoString(r)
		switch op {
		case "*":
			return e.BoxString(ls + rs)
		case "==":
			return e.BoxBool(ls == rs)
		case "!=":
			return e.BoxBool(ls != rs)
		case "<":
			return e.BoxBool(ls < rs)
		case ">":
			return e.BoxBool(ls > rs)
		case "<=":
			return e.BoxBool(ls <= rs)
		case ">=":
			return e.BoxBool(ls >= rs)
		}
		e.RaiseMethodError(e.Symbol(op), []layout.Ptr{l, r})
	}

	lf, lok := e.numericFloat(l)
	rf, rok := e.numericFloat(r)
	if !lok || !rok {
		// Identity comparison is still defined for non-numbers.
		switch op {
		case "==":
			return e.BoxBool(l == r)
		case "!=":
			return e.BoxBool(l != r)
		}
		e.RaiseMethodError(e.Symbol(op), []layout.Ptr{l, r})
	}

	floaty := e.isFloat(l) || e.isFloat(r)
	switch op {
	case "+", "-", "*":
		if floaty {
			switch op {
			case "+":
				return e.BoxFloat64(lf + rf)
			case "-":
				return e.BoxFloat64(lf - rf)
			default:
				return e.BoxFloat64(lf * rf)
			}
		}
		li, _ := e.numericInt(l)
		ri, _ := e.numericInt(r)
		switch op {
		case "+":
			return e.BoxInt64(li + ri)
		case "-":
			return e.BoxInt64(li - ri)
		default:
			return e.BoxInt64(li * ri)
		}
	case "/":
		// Division always produces a float.
		return e.BoxFloat64(lf / rf)
	case "%":
		if floaty {
			return e.BoxFloat64(math.Mod(lf, rf))
		}
		li, _ := e.numericInt(l)
		ri, _ := e.numericInt(r)
		if ri == 0 {
			e.RaiseDivide()
		}
		return e.BoxInt64(li % ri)
	case "^":
		if floaty {
			return e.BoxFloat64(math.Pow(lf, rf))
		}
		li, _ := e.numericInt(l)
		ri, _ := e.numericInt(r)
		if ri < 0 {
			e.RaiseDomain(r, "integer raised to a negative power")
		}
		return e.BoxInt64(intPow(li, ri))
	case "==":
		return e.BoxBool(lf == rf)
	case "!=":
		return e.BoxBool(lf != rf)
	case "<":
		return e.BoxBool(lf < rf)
	case ">":
		return e.BoxBool(lf > rf)
	case "<=":
		return e.BoxBool(lf <= rf)
	case ">=":
		return e.BoxBool(lf >= rf)
	}
	e.RaiseMethodError(e.Symbol(op), []layout.Ptr{l, r})
	return nil
}

func intPow(base, exp int64) int64 {
	res := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			res *= base
		}
		base *= base
		exp >>= 1
	}
	return res
}

func (e *Engine) evalUnOp(ctx *evalCtx, n *lang.UnOp) layout.Ptr {
	x := e.eval(ctx, n.X)
	switch n.Op {
	case "-":
		if e.isFloat(x) {
			f, _ := e.numericFloat(x)
			return e.BoxFloat64(-f)
		}
		if i, ok := e.numericInt(x); ok {
			return e.BoxInt64(-i)
		}
	case "!":
		if layout.TypeIs(x, e.types.boolT) {
			return e.BoxBool(layout.Word(x, 0) == 0)
		}
	}
	e.RaiseMethodError(e.Symbol(n.Op), []layout.Ptr{x})
	return nil
}

// quote converts a parsed node into its guest syntax object.
func (e *Engine) quote(node lang.Node) layout.Ptr {
	switch n := node.(type) {
	case *lang.IntLit:
		return e.BoxInt64(n.Val)
	case *lang.FloatLit:
		return e.BoxFloat64(n.Val)
	case *lang.StrLit:
		return e.BoxString(n.Val)
	case *lang.BoolLit:
		return e.BoxBool(n.Val)
	case *lang.NothingLit:
		return e.nothing
	case *lang.Var:
		return e.Symbol(n.Name)
	case *lang.Call:
		args := make([]layout.Ptr, 0, len(n.Args)+1)
		args = append(args, e.quote(n.Fn))
		for _, a := range n.Args {
			args = append(args, e.quote(a))
		}
		return e.NewExpr(e.Symbol("call"), args...)
	case *lang.BinOp:
		return e.NewExpr(e.Symbol("call"), e.Symbol(n.Op), e.quote(n.L), e.quote(n.R))
	case *lang.UnOp:
		return e.NewExpr(e.Symbol("call"), e.Symbol(n.Op), e.quote(n.X))
	case *lang.Assign:
		return e.NewExpr(e.Symbol("="), e.Symbol(n.Name), e.quote(n.Val))
	case *lang.Field:
		return e.NewExpr(e.Symbol("."), e.quote(n.X), e.Symbol(n.Name))
	case *lang.FieldAssign:
		return e.NewExpr(e.Symbol("="),
			e.NewExpr(e.Symbol("."), e.quote(n.X), e.Symbol(n.Name)), e.quote(n.Val))
	case *lang.FuncDef:
		sig := make([]layout.Ptr, 0, len(n.Params)+1)
		sig = append(sig, e.Symbol(n.Name))
		for _, p := range n.Params {
			sig = append(sig, e.Symbol(p))
		}
		return e.NewExpr(e.Symbol("function"),
			e.NewExpr(e.Symbol("call"), sig...), e.quoteBlock(n.Body))
	case *lang.If:
		if n.Else == nil {
			return e.NewExpr(e.Symbol("if"), e.quote(n.Cond), e.quoteBlock(n.Then))
		}
		return e.NewExpr(e.Symbol("if"),
			e.quote(n.Cond), e.quoteBlock(n.Then), e.quoteBlock(n.Else))
	case *lang.While:
		return e.NewExpr(e.Symbol("while"), e.quote(n.Cond), e.quoteBlock(n.Body))
	case *lang.Block:
		return e.quoteBlock(n.Body)
	case *lang.Return:
		return e.NewExpr(e.Symbol("return"), e.quote(n.X))
	case *lang.StructDef:
		fields := make([]layout.Ptr, 0, len(n.Fields))
		for _, f := range n.Fields {
			if f.Type == "" {
				fields = append(fields, e.Symbol(f.Name))
			} else {
				fields = append(fields, e.NewExpr(e.Symbol("::"),
					e.Symbol(f.Name), e.Symbol(f.Type)))
			}
		}
		return e.NewExpr(e.Symbol("struct"),
			e.BoxBool(n.Mutable), e.Symbol(n.Name), e.NewExpr(e.Symbol("block"), fields...))
	}
	e.Raisef("cannot quote %T", node)
	return nil
}

func (e *Engine) quoteBlock(body []lang.Node) layout.Ptr {
	args := make([]layout.Ptr, len(body))
	for i, stmt := range body {
		args[i] = e.quote(stmt)
	}
	return e.NewExpr(e.Symbol("block"), args...)
}

// unquote converts a guest syntax object back into an evaluable node.
// Inverse of quote for every head quote emits.
func (e *Engine) unquote(x layout.Ptr) lang.Node {
	tag := layout.TypeTagOf(x)
	if tag < layout.MaxSmallTypeTag {
		switch layout.SmallTag(tag >> 4) {
		case layout.TagInt64:
			return &lang.IntLit{Val: int64(layout.Word(x, 0))}
		case layout.TagFloat64:
			return &lang.FloatLit{Val: math.Float64frombits(uint64(layout.Word(x, 0)))}
		case layout.TagString:
			return &lang.StrLit{Val: layout.GoString(x)}
		case layout.TagBool:
			return &lang.BoolLit{Val: layout.Word(x, 0) != 0}
		case layout.TagSymbol:
			return &lang.Var{Name: layout.SymbolName(x)}
		}
	}
	if x == e.nothing {
		return &lang.NothingLit{}
	}
	if !layout.TypeIs(x, e.types.expr) {
		e.RaiseTypeError("eval", e.types.expr, x)
	}

	head := layout.SymbolName(layout.ExprHead(x))
	n := int(layout.ExprNArgs(x))
	arg := func(i int) layout.Ptr { return layout.ExprArg(x, uintptr(i)) }

	switch head {
	case "call":
		if n == 0 {
			e.Raisef("malformed call expression")
		}
		// Operator calls fold back into operator nodes.
		if fnSym, ok := e.asSymbol(arg(0)); ok {
			if _, isOp := opArity2[fnSym]; isOp && n == 3 {
				return &lang.BinOp{Op: fnSym, L: e.unquote(arg(1)), R: e.unquote(arg(2))}
			}
			if (fnSym == "-" || fnSym == "!") && n == 2 {
				return &lang.UnOp{Op: fnSym, X: e.unquote(arg(1))}
			}
		}
		c := &lang.Call{Fn: e.unquote(arg(0))}
		for i := 1; i < n; i++ {
			c.Args = append(c.Args, e.unquote(arg(i)))
		}
		return c
	case "=":
		if sym, ok := e.asSymbol(arg(0)); ok {
			return &lang.Assign{Name: sym, Val: e.unquote(arg(1))}
		}
		target := e.unquote(arg(0))
		if f, ok := target.(*lang.Field); ok {
			return &lang.FieldAssign{X: f.X, Name: f.Name, Val: e.unquote(arg(1))}
		}
		e.Raisef("invalid assignment target in expression")
	case ".":
		sym, ok := e.asSymbol(arg(1))
		if !ok {
			e.Raisef("malformed field access expression")
		}
		return &lang.Field{X: e.unquote(arg(0)), Name: sym}
	case "function":
		sigNode := e.unquote(arg(0))
		sig, ok := sigNode.(*lang.Call)
		if !ok {
			e.Raisef("malformed function signature")
		}
		fn, ok := sig.Fn.(*lang.Var)
		if !ok {
			e.Raisef("malformed function signature")
		}
		params := make([]string, len(sig.Args))
		for i, a := range sig.Args {
			v, ok := a.(*lang.Var)
			if !ok {
				e.Raisef("malformed function signature")
			}
			params[i] = v.Name
		}
		return &lang.FuncDef{Name: fn.Name, Params: params, Body: e.unquoteBody(arg(1))}
	case "if":
		stmt := &lang.If{Cond: e.unquote(arg(0)), Then: e.unquoteBody(arg(1))}
		if n > 2 {
			stmt.Else = e.unquoteBody(arg(2))
		}
		return stmt
	case "while":
		return &lang.While{Cond: e.unquote(arg(0)), Body: e.unquoteBody(arg(1))}
	case "block":
		b := &lang.Block{}
		for i := 0; i < n; i++ {
			b.Body = append(b.Body, e.unquote(arg(i)))
		}
		return b
	case "return":
		return &lang.Return{X: e.unquote(arg(0))}
	case "toplevel":
		b := &lang.Block{}
		for i := 0; i < n; i++ {
			b.Body = append(b.Body, e.unquote(arg(i)))
		}
		return b
	case "struct":
		mutable := layout.Word(arg(0), 0) != 0
		name, ok := e.asSymbol(arg(1))
		if !ok {
			e.Raisef("malformed struct expression")
		}
		st := &lang.StructDef{Name: name, Mutable: mutable}
		fieldsBlock := arg(2)
		for i := 0; i < int(layout.ExprNArgs(fieldsBlock)); i++ {
			fx := layout.ExprArg(fieldsBlock, uintptr(i))
			if sym, ok := e.asSymbol(fx); ok {
				st.Fields = append(st.Fields, lang.StructField{Name: sym})
				continue
			}
			fname, _ := e.asSymbol(layout.ExprArg(fx, 0))
			ftype, _ := e.asSymbol(layout.ExprArg(fx, 1))
			st.Fields = append(st.Fields, lang.StructField{Name: fname, Type: ftype})
		}
		return st
	}
	e.Raisef("cannot evaluate expression head %s", head)
	return nil
}

var opArity2 = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true, "^": true,
	"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
}

func (e *Engine) unquoteBody(x layout.Ptr) []lang.Node {
	node := e.unquote(x)
	if b, ok := node.(*lang.Block); ok {
		return b.Body
	}
	return []lang.Node{node}
}

func (e *Engine) asSymbol(p layout.Ptr) (string, bool) {
	if layout.TypeTagIs(p, uintptr(layout.TagSymbol)<<4) {
		return layout.SymbolName(p), true
	}
	return "", false
}

// ShowString renders a value the way the shell prints it.
func (e *Engine) ShowString(p layout.Ptr) string {
	return e.show(p, false)
}

func (e *Engine) show(p layout.Ptr, quoted bool) string {
	if p == nil {
		return "#undef"
	}
	tag := layout.TypeTagOf(p)
	if tag < layout.MaxSmallTypeTag {
		switch layout.SmallTag(tag >> 4) {
		case layout.TagString:
			s := layout.GoString(p)
			if quoted {
				return strconv.Quote(s)
			}
			return s
		case layout.TagSymbol:
			if quoted {
				return ":" + layout.SymbolName(p)
			}
			return layout.SymbolName(p)
		case layout.TagBool:
			if layout.Word(p, 0) != 0 {
				return "true"
			}
			return "false"
		case layout.TagChar:
			return "'" + string(rune(uint32(layout.Word(p, 0)))) + "'"
		case layout.TagInt8, layout.TagInt16, layout.TagInt32, layout.TagInt64:
			i, _ := e.numericInt(p)
			return strconv.FormatInt(i, 10)
		case layout.TagUint8, layout.TagUint16, layout.TagUint32, layout.TagUint64:
			i, _ := e.numericInt(p)
			return strconv.FormatUint(uint64(i), 10)
		case layout.TagFloat32, layout.TagFloat64:
			f, _ := e.numericFloat(p)
			return formatFloat(f)
		case layout.TagModule:
			return e.ModuleNameString(p)
		case layout.TagDataType:
			return e.DataTypeName(p)
		case layout.TagTask:
			return "Task"
		case layout.TagSimpleVector:
			var b strings.Builder
			b.WriteString("svec(")
			for i := uintptr(0); i < layout.SvecLen(p); i++ {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(e.show(layout.SvecRef(p, i), true))
			}
			b.WriteString(")")
			return b.String()
		}
		return "<unknown>"
	}

	dt := layout.TypeOf(p)
	switch {
	case p == e.nothing:
		return "nothing"
	case dt == e.types.function:
		return e.FunctionName(p)
	case dt == e.types.array:
		var b strings.Builder
		b.WriteString("[")
		for i := 0; i < e.ArrayLen(p); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(e.show(layout.PtrWord(p, arrayDataWord+uintptr(i)), true))
		}
		b.WriteString("]")
		return b.String()
	case dt == e.types.expr:
		var b strings.Builder
		b.WriteString("Expr(:")
		b.WriteString(layout.SymbolName(layout.ExprHead(p)))
		for i := uintptr(0); i < layout.ExprNArgs(p); i++ {
			b.WriteString(", ")
			b.WriteString(e.show(layout.ExprArg(p, i), true))
		}
		b.WriteString(")")
		return b.String()
	}

	// Composite instance: Name(field, field, ...).
	var b strings.Builder
	b.WriteString(e.DataTypeName(dt))
	b.WriteString("(")
	n := e.NFields(dt)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.showField(p, dt, i))
	}
	b.WriteString(")")
	return b.String()
}

// showField renders one field without faulting on unset references.
func (e *Engine) showField(p, dt layout.Ptr, i int) string {
	if layout.FieldIsPtr(dt, uint32(i)) {
		x := layout.PtrField(p, dt, uint32(i))
		if x == nil {
			return "#undef"
		}
		return e.show(x, true)
	}
	ft := layout.SvecRef(layout.FieldTypes(dt), uintptr(i))
	return e.show(e.boxBits(ft, layout.BitsField(p, dt, uint32(i))), true)
}

// formatFloat renders a float the way the runtime prints it: always with
// a decimal point or an exponent.
func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "Inf"
	}
	if math.IsInf(f, -1) {
		return "-Inf"
	}
	if math.IsNaN(f) {
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (e *Engine) installBuiltins() {
	reg := func(name string, fn HostFunc) {
		e.RegisterBuiltin(e.base, name, fn)
	}

	reg("println", func(e *Engine, args []layout.Ptr) layout.Ptr {
		e.printArgs(args)
		fmt.Fprintln(e.opts.Stdout)
		return e.nothing
	})
	reg("print", func(e *Engine, args []layout.Ptr) layout.Ptr {
		e.printArgs(args)
		return e.nothing
	})
	reg("string", func(e *Engine, args []layout.Ptr) layout.Ptr {
		var b strings.Builder
		for _, a := range args {
			b.WriteString(e.show(a, false))
		}
		return e.BoxString(b.String())
	})
	reg("repr", func(e *Engine, args []layout.Ptr) layout.Ptr {
		if len(args) != 1 {
			e.RaiseTooManyArgs("repr", 1)
		}
		return e.BoxString(e.show(args[0], true))
	})
	reg("sqrt", func(e *Engine, args []layout.Ptr) layout.Ptr {
		if len(args) != 1 {
			e.RaiseTooManyArgs("sqrt", 1)
		}
		f, ok := e.numericFloat(args[0])
		if !ok {
			e.RaiseMethodError(e.Symbol("sqrt"), args)
		}
		if f < 0 {
			e.RaiseDomain(args[0], "sqrt was called with a negative real argument")
		}
		return e.BoxFloat64(math.Sqrt(f))
	})
	reg("abs", func(e *Engine, args []layout.Ptr) layout.Ptr {
		if len(args) != 1 {
			e.RaiseTooManyArgs("abs", 1)
		}
		if e.isFloat(args[0]) {
			f, _ := e.numericFloat(args[0])
			return e.BoxFloat64(math.Abs(f))
		}
		i, ok := e.numericInt(args[0])
		if !ok {
			e.RaiseMethodError(e.Symbol("abs"), args)
		}
		if i < 0 {
			i = -i
		}
		return e.BoxInt64(i)
	})
	reg("div", func(e *Engine, args []layout.Ptr) layout.Ptr {
		a, b := e.twoInts("div", args)
		if b == 0 {
			e.RaiseDivide()
		}
		return e.BoxInt64(a / b)
	})
	reg("rem", func(e *Engine, args []layout.Ptr) layout.Ptr {
		a, b := e.twoInts("rem", args)
		if b == 0 {
			e.RaiseDivide()
		}
		return e.BoxInt64(a % b)
	})
	reg("throw", func(e *Engine, args []layout.Ptr) layout.Ptr {
		if len(args) != 1 {
			e.RaiseTooManyArgs("throw", 1)
		}
		e.Throw(args[0])
		return nil
	})
	reg("error", func(e *Engine, args []layout.Ptr) layout.Ptr {
		var b strings.Builder
		for _, a := range args {
			b.WriteString(e.show(a, false))
		}
		e.RaiseError(b.String())
		return nil
	})
	reg("typeof", func(e *Engine, args []layout.Ptr) layout.Ptr {
		if len(args) != 1 {
			e.RaiseTooManyArgs("typeof", 1)
		}
		return layout.TypeOf(args[0])
	})
	reg("isa", func(e *Engine, args []layout.Ptr) layout.Ptr {
		if len(args) != 2 {
			e.RaiseTooManyArgs("isa", 2)
		}
		return e.BoxBool(e.Isa(args[0], args[1]))
	})
	reg("length", func(e *Engine, args []layout.Ptr) layout.Ptr {
		if len(args) != 1 {
			e.RaiseTooManyArgs("length", 1)
		}
		p := args[0]
		switch {
		case layout.TypeTagIs(p, uintptr(layout.TagString)<<4):
			return e.BoxInt64(int64(layout.StringLen(p)))
		case layout.TypeTagIs(p, uintptr(layout.TagSimpleVector)<<4):
			return e.BoxInt64(int64(layout.SvecLen(p)))
		case e.IsArray(p):
			return e.BoxInt64(int64(e.ArrayLen(p)))
		}
		e.RaiseMethodError(e.Symbol("length"), args)
		return nil
	})
	reg("getfield", func(e *Engine, args []layout.Ptr) layout.Ptr {
		if len(args) != 2 {
			e.RaiseTooManyArgs("getfield", 2)
		}
		sym, ok := e.asSymbol(args[1])
		if !ok {
			e.RaiseTypeError("getfield", e.types.symbol, args[1])
		}
		return e.getFieldByName(args[0], sym)
	})
	reg("setfield!", func(e *Engine, args []layout.Ptr) layout.Ptr {
		if len(args) != 3 {
			e.RaiseTooManyArgs("setfield!", 3)
		}
		sym, ok := e.asSymbol(args[1])
		if !ok {
			e.RaiseTypeError("setfield!", e.types.symbol, args[1])
		}
		e.setFieldByName(args[0], sym, args[2])
		return args[2]
	})
	reg("getindex", func(e *Engine, args []layout.Ptr) layout.Ptr {
		if len(args) != 2 {
			e.RaiseTooManyArgs("getindex", 2)
		}
		if !e.IsArray(args[0]) {
			e.RaiseMethodError(e.Symbol("getindex"), args)
		}
		i, ok := e.numericInt(args[1])
		if !ok {
			e.RaiseTypeError("getindex", e.types.int64T, args[1])
		}
		return e.ArrayRef(args[0], int(i)-1)
	})
	reg("setindex!", func(e *Engine, args []layout.Ptr) layout.Ptr {
		if len(args) != 3 {
			e.RaiseTooManyArgs("setindex!", 3)
		}
		if !e.IsArray(args[0]) {
			e.RaiseMethodError(e.Symbol("setindex!"), args)
		}
		i, ok := e.numericInt(args[2])
		if !ok {
			e.RaiseTypeError("setindex!", e.types.int64T, args[2])
		}
		e.ArraySet(args[0], int(i)-1, args[1])
		return args[1]
	})
}

func (e *Engine) printArgs(args []layout.Ptr) {
	for _, a := range args {
		fmt.Fprint(e.opts.Stdout, e.show(a, false))
	}
}

func (e *Engine) twoInts(op string, args []layout.Ptr) (int64, int64) {
	if len(args) != 2 {
		e.RaiseTooManyArgs(op, 2)
	}
	a, ok := e.numericInt(args[0])
	if !ok || e.isFloat(args[0]) {
		e.RaiseTypeError(op, e.types.int64T, args[0])
	}
	b, ok := e.numericInt(args[1])
	if !ok || e.isFloat(args[1]) {
		e.RaiseTypeError(op, e.types.int64T, args[1])
	}
	return a, b
}
