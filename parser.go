// Copyright 2024 occ Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import "fmt"

// parser holds everything the recursive-descent grammar and its inline
// semantic actions need, threaded explicitly as *parser rather than as
// package-level globals (spec.md §5's design note: a parser is a value, not
// a singleton, so embedding occ as a library is possible later).
type parser struct {
	scope *scope

	globals     *Obj
	globalsTail *Obj

	curFn  *Obj
	locals *Obj

	curSwitch *Node
	brkLabel  string
	contLabel string

	gotos  []*Node
	labels []*Node

	uniqueID int
	strCount int
}

// Parse runs the full grammar over tok and returns the program's global
// object list. It panics with an *occError on any syntax or semantic
// error; main.go's top-level recover turns that into an exit code.
func Parse(tok *Token) *Program {
	p := &parser{}
	p.enterScope()

	for tok.Kind != TokenEOF {
		attr := &varAttr{}
		basety, rest := p.declspec(tok, attr)
		tok = rest

		if attr.IsTypedef {
			tok = p.parseTypedef(tok, basety)
			continue
		}

		if p.isFunction(tok, basety) {
			tok = p.functionDefinition(tok, basety, attr)
			continue
		}

		tok = p.globalVariable(tok, basety, attr)
	}

	return &Program{Globals: p.globals}
}

func (p *parser) addGlobal(o *Obj) {
	if p.globalsTail == nil {
		p.globals = o
	} else {
		p.globalsTail.Next = o
	}
	p.globalsTail = o
}

func (p *parser) newLVar(name string, ty *Type) *Obj {
	v := &Obj{Name: name, Ty: ty, IsLocal: true, Next: p.locals}
	p.locals = v
	p.pushVar(name, v)
	return v
}

func (p *parser) newUniqueLabel() string {
	p.uniqueID++
	return fmt.Sprintf(".L..%d", p.uniqueID)
}

// ---- declspec / declarator --------------------------------------------

// varAttr carries the storage-class flags declspec accumulates alongside
// the base type, per spec.md §4.2's "declspec also tracks a separate
// storage-class/typedef flag".
type varAttr struct {
	IsTypedef bool
	IsStatic  bool
}

// Type-specifier bitmap: each scalar keyword contributes a disjoint bit
// range so every valid C combination ("short int", "long long", ...) sums
// to a distinct value, and invalid ones fall through the switch in
// declspec. OTHER marks struct/union/enum/typedef-name base types, which
// never combine with anything else.
const (
	specVoid  = 1 << 0
	specBool  = 1 << 2
	specChar  = 1 << 4
	specShort = 1 << 6
	specInt   = 1 << 8
	specLong  = 1 << 10
	specOther = 1 << 12
)

func (p *parser) isTypename(tok *Token) bool {
	if tok.Kind == TokenKeyword {
		switch tok.Text {
		case "void", "_Bool", "char", "short", "int", "long",
			"struct", "union", "enum", "typedef", "static":
			return true
		}
	}
	if tok.Kind == TokenIdent {
		if e := p.findVarEntry(tok.Text); e != nil && e.Typedef != nil {
			return true
		}
	}
	return false
}

func (p *parser) findTypedef(tok *Token) *Type {
	if tok.Kind != TokenIdent {
		return nil
	}
	if e := p.findVarEntry(tok.Text); e != nil && e.Typedef != nil {
		return e.Typedef
	}
	return nil
}

func (p *parser) declspec(tok *Token, attr *varAttr) (*Type, *Token) {
	var ty *Type
	counter := 0

	for p.isTypename(tok) {
		if equal(tok, "typedef") || equal(tok, "static") {
			if attr == nil {
				panic(errorTok(tok, "storage-class specifier not allowed in this context"))
			}
			if equal(tok, "typedef") {
				attr.IsTypedef = true
			} else {
				attr.IsStatic = true
			}
			if attr.IsTypedef && attr.IsStatic {
				panic(errorTok(tok, "typedef and static may not be used together"))
			}
			tok = tok.Next
			continue
		}

		if td := p.findTypedef(tok); td != nil || equal(tok, "struct") || equal(tok, "union") || equal(tok, "enum") {
			if counter > 0 {
				break
			}
			switch {
			case equal(tok, "struct"):
				ty, tok = p.structDecl(tok.Next)
			case equal(tok, "union"):
				ty, tok = p.unionDecl(tok.Next)
			case equal(tok, "enum"):
				ty, tok = p.enumSpecifier(tok.Next)
			default:
				ty = td
				tok = tok.Next
			}
			counter += specOther
			continue
		}

		switch tok.Text {
		case "void":
			counter += specVoid
		case "_Bool":
			counter += specBool
		case "char":
			counter += specChar
		case "short":
			counter += specShort
		case "int":
			counter += specInt
		case "long":
			counter += specLong
		default:
			panic(errorTok(tok, "unreachable type specifier"))
		}
		tok = tok.Next
	}

	switch counter {
	case specVoid:
		return tyVoid, tok
	case specBool:
		return tyBool, tok
	case specChar:
		return tyChar, tok
	case specShort, specShort + specInt:
		return tyShort, tok
	case specInt:
		return tyInt, tok
	case specLong, specLong + specInt, specLong + specLong, specLong + specLong + specInt:
		return tyLong, tok
	case specOther:
		return ty, tok
	default:
		panic(errorTok(tok, "invalid type"))
	}
}

// taggedDecl parses the shared "struct/union tag-or-body" grammar. A
// reference (no "{") resolves an existing tag or starts a forward
// declaration; a body completes a matching forward declaration in the
// innermost scope in place, or starts a fresh type.
func (p *parser) taggedDecl(tok *Token, kind TypeKind) (*Type, *Token) {
	var tag *Token
	if tok.Kind == TokenIdent {
		tag = tok
		tok = tok.Next
	}

	if tag != nil && !equal(tok, "{") {
		ty := p.findTag(tag.Text)
		if ty == nil {
			ty = newIncompleteStructType(kind)
			p.pushTag(tag.Text, ty)
		}
		return ty, tok
	}

	tok = skip(tok, "{")
	members, rest := p.memberList(tok)
	tok = rest

	var ty *Type
	if tag != nil {
		if existing, ok := p.scope.Tags[tag.Text]; ok {
			ty = existing
		}
	}
	if ty == nil {
		ty = &Type{Kind: kind}
	} else {
		ty.Kind = kind
	}
	ty.Members = members
	if kind == TyStruct {
		ty.Size, ty.Align, ty.IsFlexible = layoutStruct(members)
	} else {
		ty.Size, ty.Align = layoutUnion(members)
	}
	if tag != nil {
		p.pushTag(tag.Text, ty)
	}
	return ty, tok
}

func (p *parser) structDecl(tok *Token) (*Type, *Token) { return p.taggedDecl(tok, TyStruct) }
func (p *parser) unionDecl(tok *Token) (*Type, *Token)  { return p.taggedDecl(tok, TyUnion) }

func (p *parser) memberList(tok *Token) ([]*Member, *Token) {
	var members []*Member
	idx := 0
	for !equal(tok, "}") {
		basety, rest := p.declspec(tok, nil)
		tok = rest

		first := true
		for {
			if rest, ok := consume(tok, ";"); ok {
				tok = rest
				break
			}
			if !first {
				tok = skip(tok, ",")
			}
			first = false

			ty, rest2 := p.declarator(tok, basety)
			tok = rest2
			members = append(members, &Member{Ty: ty, Name: ty.NameTok, Idx: idx})
			idx++
		}
	}
	tok = skip(tok, "}")
	return members, tok
}

func (p *parser) enumSpecifier(tok *Token) (*Type, *Token) {
	ty := enumType()

	var tag *Token
	if tok.Kind == TokenIdent {
		tag = tok
		tok = tok.Next
	}

	if tag != nil && !equal(tok, "{") {
		t := p.findTag(tag.Text)
		if t == nil || t.Kind != TyEnum {
			panic(errorTok(tag, "unknown enum tag"))
		}
		return t, tok
	}

	tok = skip(tok, "{")

	var val int64
	first := true
	for !equal(tok, "}") {
		if !first {
			tok = skip(tok, ",")
		}
		first = false
		if equal(tok, "}") {
			break
		}
		name := ident(tok)
		tok = tok.Next
		if rest, ok := consume(tok, "="); ok {
			v, rest2 := p.constExpr(rest)
			val = v
			tok = rest2
		}
		p.pushEnumConst(name, ty, val)
		val++
	}
	tok = skip(tok, "}")

	if tag != nil {
		p.pushTag(tag.Text, ty)
	}
	return ty, tok
}

// declarator implements declarator unfolding, including the classic
// parenthesized-sub-declarator trick: the first recursive call only
// advances past the inner declarator to find its matching ")"; the type
// suffix found after that ")" applies to the OUTER type, and the second
// recursive call re-parses the same inner tokens against that now-complete
// type (_examples/original_source/parse.c's declarator does the same
// double pass).
func (p *parser) declarator(tok *Token, ty *Type) (*Type, *Token) {
	for {
		if rest, ok := consume(tok, "*"); ok {
			ty = pointerTo(ty)
			tok = rest
			continue
		}
		break
	}

	if equal(tok, "(") {
		start := tok
		dummy := &Type{}
		_, tok2 := p.declarator(start.Next, dummy)
		tok2 = skip(tok2, ")")
		ty, rest := p.typeSuffix(tok2, ty)
		final, _ := p.declarator(start.Next, ty)
		return final, rest
	}

	var nameTok *Token
	if tok.Kind == TokenIdent {
		nameTok = tok
		tok = tok.Next
	}

	ty, tok = p.typeSuffix(tok, ty)
	ty = copyType(ty)
	ty.NameTok = nameTok
	return ty, tok
}

func (p *parser) abstractDeclarator(tok *Token, ty *Type) (*Type, *Token) {
	for {
		if rest, ok := consume(tok, "*"); ok {
			ty = pointerTo(ty)
			tok = rest
			continue
		}
		break
	}
	if equal(tok, "(") {
		start := tok
		dummy := &Type{}
		_, tok2 := p.abstractDeclarator(start.Next, dummy)
		tok2 = skip(tok2, ")")
		ty, rest := p.typeSuffix(tok2, ty)
		final, _ := p.abstractDeclarator(start.Next, ty)
		return final, rest
	}
	return p.typeSuffix(tok, ty)
}

func (p *parser) typeSuffix(tok *Token, ty *Type) (*Type, *Token) {
	if equal(tok, "(") {
		return p.funcParams(tok.Next, ty)
	}
	if equal(tok, "[") {
		tok = tok.Next
		length := -1
		if !equal(tok, "]") {
			v, rest := p.constExpr(tok)
			length = int(v)
			tok = rest
		}
		tok = skip(tok, "]")
		base, rest := p.typeSuffix(tok, ty)
		return arrayOf(base, length), rest
	}
	return ty, tok
}

func (p *parser) funcParams(tok *Token, returnTy *Type) (*Type, *Token) {
	var params []*Type
	first := true
	for !equal(tok, ")") {
		if !first {
			tok = skip(tok, ",")
		}
		first = false
		basety, rest := p.declspec(tok, nil)
		tok = rest
		paramTy, rest2 := p.declarator(tok, basety)
		tok = rest2
		params = append(params, paramTy)
	}
	tok = skip(tok, ")")
	return funcType(returnTy, params), tok
}

func (p *parser) typename(tok *Token) (*Type, *Token) {
	basety, tok := p.declspec(tok, nil)
	return p.abstractDeclarator(tok, basety)
}

// ---- top-level declarations --------------------------------------------

func (p *parser) parseTypedef(tok *Token, basety *Type) *Token {
	first := true
	for {
		if rest, ok := consume(tok, ";"); ok {
			return rest
		}
		if !first {
			tok = skip(tok, ",")
		}
		first = false
		ty, rest := p.declarator(tok, basety)
		tok = rest
		p.pushTypedef(ident(ty.NameTok), ty)
	}
}

func (p *parser) isFunction(tok *Token, basety *Type) bool {
	if equal(tok, ";") {
		return false
	}
	ty, _ := p.declarator(tok, basety)
	return ty.Kind == TyFunc
}

// newParamLocals installs one local Obj per parameter, in declaration
// order. Walking the slice back-to-front and prepending to p.locals
// matches _examples/original_source/parse.c's create_param_lvars, whose
// recursion visits the tail first so the head ends up holding the
// first-declared parameter.
func (p *parser) newParamLocals(params []*Type) []*Obj {
	objs := make([]*Obj, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		pt := params[i]
		name := ""
		if pt.NameTok != nil {
			name = pt.NameTok.Text
		}
		objs[i] = p.newLVar(name, pt)
	}
	return objs
}

func (p *parser) functionDefinition(tok *Token, basety *Type, attr *varAttr) *Token {
	ty, rest := p.declarator(tok, basety)
	tok = rest

	fn := &Obj{Name: ident(ty.NameTok), Ty: ty, IsFunction: true, IsStatic: attr.IsStatic}
	p.pushVar(fn.Name, fn)
	p.addGlobal(fn)

	if rest, ok := consume(tok, ";"); ok {
		return rest
	}

	prevFn, prevLocals := p.curFn, p.locals
	p.curFn, p.locals = fn, nil
	p.gotos, p.labels = nil, nil

	p.enterScope()
	fn.Params = p.newParamLocals(ty.Params)

	tok = skip(tok, "{")
	body, rest2 := p.compoundStmt(tok)
	fn.Body = body
	fn.Locals = p.locals
	p.leaveScope()

	p.resolveGotoLabels()

	fn.IsDefinition = true
	p.curFn, p.locals = prevFn, prevLocals
	return rest2
}

func (p *parser) globalVariable(tok *Token, basety *Type, attr *varAttr) *Token {
	first := true
	for {
		if rest, ok := consume(tok, ";"); ok {
			return rest
		}
		if !first {
			tok = skip(tok, ",")
		}
		first = false

		ty, rest := p.declarator(tok, basety)
		tok = rest

		gv := &Obj{Name: ident(ty.NameTok), Ty: ty, IsStatic: attr.IsStatic, IsDefinition: true}
		p.pushVar(gv.Name, gv)
		p.addGlobal(gv)

		if rest2, ok := consume(tok, "="); ok {
			tok = p.globalInitializer(rest2, gv)
		}
	}
}

func (p *parser) resolveGotoLabels() {
	for _, g := range p.gotos {
		found := false
		for _, l := range p.labels {
			if l.GotoTarget == g.GotoTarget {
				g.GotoLabel = l
				g.UniqueLabel = l.UniqueLabel
				found = true
				break
			}
		}
		if !found {
			panic(errorTok(g.Tok, "use of undeclared label '%s'", g.GotoTarget))
		}
	}
}

// ---- statements ----------------------------------------------------------

func (p *parser) compoundStmt(tok *Token) (*Node, *Token) {
	node := newNode(NdBlock, tok)
	p.enterScope()

	head := &Node{}
	cur := head
	for !equal(tok, "}") {
		var n *Node
		if p.isTypename(tok) && !equal(tok.Next, ":") {
			attr := &varAttr{}
			basety, rest := p.declspec(tok, attr)
			tok = rest
			if attr.IsTypedef {
				tok = p.parseTypedef(tok, basety)
				continue
			}
			n, tok = p.declaration(tok, basety, attr)
		} else {
			n, tok = p.stmt(tok)
		}
		addType(n)
		cur.Next = n
		cur = n
	}

	p.leaveScope()
	node.Body = head.Next
	return node, tok.Next
}

func (p *parser) declaration(tok *Token, basety *Type, attr *varAttr) (*Node, *Token) {
	head := &Node{}
	cur := head
	first := true

	for !equal(tok, ";") {
		if !first {
			tok = skip(tok, ",")
		}
		first = false

		ty, rest := p.declarator(tok, basety)
		tok = rest
		if ty.Kind == TyVoid {
			panic(errorTok(tok, "variable declared void"))
		}

		v := p.newLVar(ident(ty.NameTok), ty)
		v.IsStatic = attr.IsStatic

		if equal(tok, "=") {
			n, rest2 := p.lvarInitializer(tok.Next, v)
			tok = rest2
			cur.Next = newUnary(NdExprStmt, n, tok)
			cur = cur.Next
		} else if v.Ty.Size < 0 {
			panic(errorTok(ty.NameTok, "variable has incomplete type"))
		}
	}

	node := newNode(NdBlock, tok)
	node.Body = head.Next
	return node, tok.Next
}

func (p *parser) stmt(tok *Token) (*Node, *Token) {
	if equal(tok, "return") {
		node := newNode(NdReturn, tok)
		if rest, ok := consume(tok.Next, ";"); ok {
			return node, rest
		}
		e, rest := p.expr(tok.Next)
		addType(e)
		node.Lhs = newCast(e, p.curFn.Ty.ReturnType)
		rest = skip(rest, ";")
		return node, rest
	}

	if equal(tok, "if") {
		node := newNode(NdIf, tok)
		tok = skip(tok.Next, "(")
		cond, rest := p.expr(tok)
		node.Cond = cond
		tok = skip(rest, ")")
		then, rest2 := p.stmt(tok)
		node.Then = then
		tok = rest2
		if equal(tok, "else") {
			els, rest3 := p.stmt(tok.Next)
			node.Els = els
			tok = rest3
		}
		return node, tok
	}

	if equal(tok, "switch") {
		node := newNode(NdSwitch, tok)
		tok = skip(tok.Next, "(")
		cond, rest := p.expr(tok)
		node.Cond = cond
		tok = skip(rest, ")")

		prevSwitch, prevBrk := p.curSwitch, p.brkLabel
		p.curSwitch = node
		node.BrkLabel = p.newUniqueLabel()
		p.brkLabel = node.BrkLabel

		then, rest2 := p.stmt(tok)
		node.Then = then

		p.curSwitch, p.brkLabel = prevSwitch, prevBrk
		return node, rest2
	}

	if equal(tok, "case") {
		if p.curSwitch == nil {
			panic(errorTok(tok, "'case' label not within a switch statement"))
		}
		val, rest := p.constExpr(tok.Next)
		rest = skip(rest, ":")
		node := newNode(NdCase, tok)
		node.CaseLabel = p.newUniqueLabel()
		node.CaseVal = val
		then, rest2 := p.stmt(rest)
		node.Lhs = then
		node.CaseNext = p.curSwitch.CaseNext
		p.curSwitch.CaseNext = node
		return node, rest2
	}

	if equal(tok, "default") {
		if p.curSwitch == nil {
			panic(errorTok(tok, "'default' label not within a switch statement"))
		}
		rest := skip(tok.Next, ":")
		node := newNode(NdCase, tok)
		node.CaseLabel = p.newUniqueLabel()
		then, rest2 := p.stmt(rest)
		node.Lhs = then
		p.curSwitch.DefaultCase = node
		return node, rest2
	}

	if equal(tok, "while") {
		node := newNode(NdWhile, tok)
		tok = skip(tok.Next, "(")
		cond, rest := p.expr(tok)
		node.Cond = cond
		tok = skip(rest, ")")

		prevBrk, prevCont := p.brkLabel, p.contLabel
		node.BrkLabel = p.newUniqueLabel()
		node.ContLabel = p.newUniqueLabel()
		p.brkLabel, p.contLabel = node.BrkLabel, node.ContLabel

		then, rest2 := p.stmt(tok)
		node.Then = then

		p.brkLabel, p.contLabel = prevBrk, prevCont
		return node, rest2
	}

	if equal(tok, "for") {
		node := newNode(NdFor, tok)
		tok = skip(tok.Next, "(")
		p.enterScope()

		prevBrk, prevCont := p.brkLabel, p.contLabel
		node.BrkLabel = p.newUniqueLabel()
		node.ContLabel = p.newUniqueLabel()
		p.brkLabel, p.contLabel = node.BrkLabel, node.ContLabel

		if p.isTypename(tok) {
			basety, rest := p.declspec(tok, nil)
			init, rest2 := p.declaration(rest, basety, &varAttr{})
			node.Init = init
			tok = rest2
		} else {
			init, rest := p.exprStmt(tok)
			node.Init = init
			tok = rest
		}

		if !equal(tok, ";") {
			cond, rest := p.expr(tok)
			node.Cond = cond
			tok = rest
		}
		tok = skip(tok, ";")

		if !equal(tok, ")") {
			inc, rest := p.expr(tok)
			node.Inc = inc
			tok = rest
		}
		tok = skip(tok, ")")

		then, rest := p.stmt(tok)
		node.Then = then

		p.leaveScope()
		p.brkLabel, p.contLabel = prevBrk, prevCont
		return node, rest
	}

	if equal(tok, "break") {
		if p.brkLabel == "" {
			panic(errorTok(tok, "'break' statement not within a loop or switch"))
		}
		node := newNode(NdGoto, tok)
		node.UniqueLabel = p.brkLabel
		rest := skip(tok.Next, ";")
		return node, rest
	}

	if equal(tok, "continue") {
		if p.contLabel == "" {
			panic(errorTok(tok, "'continue' statement not within a loop"))
		}
		node := newNode(NdGoto, tok)
		node.UniqueLabel = p.contLabel
		rest := skip(tok.Next, ";")
		return node, rest
	}

	if equal(tok, "goto") {
		node := newNode(NdGoto, tok)
		node.GotoTarget = ident(tok.Next)
		rest := skip(tok.Next.Next, ";")
		p.gotos = append(p.gotos, node)
		return node, rest
	}

	if tok.Kind == TokenIdent && equal(tok.Next, ":") {
		node := newNode(NdLabel, tok)
		node.GotoTarget = tok.Text
		node.UniqueLabel = p.newUniqueLabel()
		then, rest := p.stmt(tok.Next.Next)
		node.Lhs = then
		p.labels = append(p.labels, node)
		return node, rest
	}

	if equal(tok, "{") {
		return p.compoundStmt(tok.Next)
	}

	return p.exprStmt(tok)
}

func (p *parser) exprStmt(tok *Token) (*Node, *Token) {
	if rest, ok := consume(tok, ";"); ok {
		return newNode(NdBlock, tok), rest
	}
	node := newNode(NdExprStmt, tok)
	e, rest := p.expr(tok)
	node.Lhs = e
	rest = skip(rest, ";")
	return node, rest
}

// ---- expressions ----------------------------------------------------------

func (p *parser) expr(tok *Token) (*Node, *Token) {
	node, tok := p.assign(tok)
	if equal(tok, ",") {
		rhs, rest := p.expr(tok.Next)
		return newBinary(NdComma, node, rhs, tok), rest
	}
	return node, tok
}

type assignOp struct {
	text string
	kind NodeKind
}

var compoundAssignOps = []assignOp{
	{"+=", NdAdd}, {"-=", NdSub}, {"*=", NdMul}, {"/=", NdDiv}, {"%=", NdMod},
	{"&=", NdBitAnd}, {"|=", NdBitOr}, {"^=", NdBitXor}, {"<<=", NdShl}, {">>=", NdShr},
}

func (p *parser) assign(tok *Token) (*Node, *Token) {
	node, tok := p.conditional(tok)

	if equal(tok, "=") {
		rhs, rest := p.assign(tok.Next)
		return newBinary(NdAssign, node, rhs, tok), rest
	}

	for _, op := range compoundAssignOps {
		if !equal(tok, op.text) {
			continue
		}
		rhs, rest := p.assign(tok.Next)
		var binary *Node
		switch op.kind {
		case NdAdd:
			binary = p.newAddExpr(node, rhs, tok)
		case NdSub:
			binary = p.newSubExpr(node, rhs, tok)
		default:
			binary = newBinary(op.kind, node, rhs, tok)
		}
		return p.toAssign(binary, tok), rest
	}

	return node, tok
}

// toAssign rewrites "A op= B" (already folded into the binary node
// binary = OP(A, B)) into "tmp = &A, *tmp = OP(*tmp, B)" so A is only
// evaluated once, per _examples/original_source/parse.c's to_assign.
func (p *parser) toAssign(binary *Node, tok *Token) *Node {
	addType(binary.Lhs)
	addType(binary.Rhs)

	v := p.newLVar("", pointerTo(binary.Lhs.Ty))

	expr1 := newBinary(NdAssign, newVarNode(v, tok), newUnary(NdAddr, binary.Lhs, tok), tok)
	expr2 := newBinary(NdAssign,
		newUnary(NdDeref, newVarNode(v, tok), tok),
		newBinary(binary.Kind, newUnary(NdDeref, newVarNode(v, tok), tok), binary.Rhs, tok),
		tok)
	return newBinary(NdComma, expr1, expr2, tok)
}

func (p *parser) conditional(tok *Token) (*Node, *Token) {
	cond, tok := p.logOr(tok)
	if !equal(tok, "?") {
		return cond, tok
	}
	node := newNode(NdCond, tok)
	node.Cond = cond
	then, rest := p.expr(tok.Next)
	node.Then = then
	rest = skip(rest, ":")
	els, rest2 := p.conditional(rest)
	node.Els = els
	return node, rest2
}

func (p *parser) logOr(tok *Token) (*Node, *Token) {
	node, tok := p.logAnd(tok)
	for equal(tok, "||") {
		start := tok
		rhs, rest := p.logAnd(tok.Next)
		node = newBinary(NdLogOr, node, rhs, start)
		tok = rest
	}
	return node, tok
}

func (p *parser) logAnd(tok *Token) (*Node, *Token) {
	node, tok := p.bitOr(tok)
	for equal(tok, "&&") {
		start := tok
		rhs, rest := p.bitOr(tok.Next)
		node = newBinary(NdLogAnd, node, rhs, start)
		tok = rest
	}
	return node, tok
}

func (p *parser) bitOr(tok *Token) (*Node, *Token) {
	node, tok := p.bitXor(tok)
	for equal(tok, "|") {
		start := tok
		rhs, rest := p.bitXor(tok.Next)
		node = newBinary(NdBitOr, node, rhs, start)
		tok = rest
	}
	return node, tok
}

func (p *parser) bitXor(tok *Token) (*Node, *Token) {
	node, tok := p.bitAnd(tok)
	for equal(tok, "^") {
		start := tok
		rhs, rest := p.bitAnd(tok.Next)
		node = newBinary(NdBitXor, node, rhs, start)
		tok = rest
	}
	return node, tok
}

func (p *parser) bitAnd(tok *Token) (*Node, *Token) {
	node, tok := p.equality(tok)
	for equal(tok, "&") {
		start := tok
		rhs, rest := p.equality(tok.Next)
		node = newBinary(NdBitAnd, node, rhs, start)
		tok = rest
	}
	return node, tok
}

func (p *parser) equality(tok *Token) (*Node, *Token) {
	node, tok := p.relational(tok)
	for {
		start := tok
		switch {
		case equal(tok, "=="):
			rhs, rest := p.relational(tok.Next)
			node, tok = newBinary(NdEq, node, rhs, start), rest
		case equal(tok, "!="):
			rhs, rest := p.relational(tok.Next)
			node, tok = newBinary(NdNe, node, rhs, start), rest
		default:
			return node, tok
		}
	}
}

func (p *parser) relational(tok *Token) (*Node, *Token) {
	node, tok := p.shift(tok)
	for {
		start := tok
		switch {
		case equal(tok, "<"):
			rhs, rest := p.shift(tok.Next)
			node, tok = newBinary(NdLt, node, rhs, start), rest
		case equal(tok, "<="):
			rhs, rest := p.shift(tok.Next)
			node, tok = newBinary(NdLe, node, rhs, start), rest
		case equal(tok, ">"):
			rhs, rest := p.shift(tok.Next)
			node, tok = newBinary(NdLt, rhs, node, start), rest
		case equal(tok, ">="):
			rhs, rest := p.shift(tok.Next)
			node, tok = newBinary(NdLe, rhs, node, start), rest
		default:
			return node, tok
		}
	}
}

func (p *parser) shift(tok *Token) (*Node, *Token) {
	node, tok := p.add(tok)
	for {
		start := tok
		switch {
		case equal(tok, "<<"):
			rhs, rest := p.add(tok.Next)
			node, tok = newBinary(NdShl, node, rhs, start), rest
		case equal(tok, ">>"):
			rhs, rest := p.add(tok.Next)
			node, tok = newBinary(NdShr, node, rhs, start), rest
		default:
			return node, tok
		}
	}
}

// newAddExpr implements pointer-arithmetic scaling: int+int is plain
// ND_ADD; ptr+ptr is fatal; int+ptr is swapped to ptr+int; ptr+int scales
// the integer operand by the pointee size before adding. Mirrors
// _examples/original_source/parse.c's new_add exactly.
func (p *parser) newAddExpr(lhs, rhs *Node, tok *Token) *Node {
	addType(lhs)
	addType(rhs)

	if isInteger(lhs.Ty) && isInteger(rhs.Ty) {
		return newBinary(NdAdd, lhs, rhs, tok)
	}
	if isPointerLike(lhs.Ty) && isPointerLike(rhs.Ty) {
		panic(errorTok(tok, "invalid operands: pointer + pointer"))
	}
	if isInteger(lhs.Ty) && isPointerLike(rhs.Ty) {
		lhs, rhs = rhs, lhs
	}
	scaled := newBinary(NdMul, rhs, newNum(int64(pointerBase(lhs.Ty).Size), tok), tok)
	return newBinary(NdAdd, lhs, scaled, tok)
}

// newSubExpr mirrors new_sub: ptr-ptr yields the element difference (a
// plain ND_DIV by the pointee size after an ND_SUB typed as long).
func (p *parser) newSubExpr(lhs, rhs *Node, tok *Token) *Node {
	addType(lhs)
	addType(rhs)

	if isInteger(lhs.Ty) && isInteger(rhs.Ty) {
		return newBinary(NdSub, lhs, rhs, tok)
	}
	if isPointerLike(lhs.Ty) && isInteger(rhs.Ty) {
		scaled := newBinary(NdMul, rhs, newNum(int64(pointerBase(lhs.Ty).Size), tok), tok)
		return newBinary(NdSub, lhs, scaled, tok)
	}
	if isPointerLike(lhs.Ty) && isPointerLike(rhs.Ty) {
		diff := newBinary(NdSub, lhs, rhs, tok)
		diff.Ty = tyLong
		return newBinary(NdDiv, diff, newNum(int64(pointerBase(lhs.Ty).Size), tok), tok)
	}
	panic(errorTok(tok, "invalid operands for '-'"))
}

func (p *parser) add(tok *Token) (*Node, *Token) {
	node, tok := p.mul(tok)
	for {
		start := tok
		switch {
		case equal(tok, "+"):
			rhs, rest := p.mul(tok.Next)
			node, tok = p.newAddExpr(node, rhs, start), rest
		case equal(tok, "-"):
			rhs, rest := p.mul(tok.Next)
			node, tok = p.newSubExpr(node, rhs, start), rest
		default:
			return node, tok
		}
	}
}

func (p *parser) mul(tok *Token) (*Node, *Token) {
	node, tok := p.cast(tok)
	for {
		start := tok
		switch {
		case equal(tok, "*"):
			rhs, rest := p.cast(tok.Next)
			node, tok = newBinary(NdMul, node, rhs, start), rest
		case equal(tok, "/"):
			rhs, rest := p.cast(tok.Next)
			node, tok = newBinary(NdDiv, node, rhs, start), rest
		case equal(tok, "%"):
			rhs, rest := p.cast(tok.Next)
			node, tok = newBinary(NdMod, node, rhs, start), rest
		default:
			return node, tok
		}
	}
}

func (p *parser) cast(tok *Token) (*Node, *Token) {
	if equal(tok, "(") && p.isTypename(tok.Next) {
		start := tok
		ty, rest := p.typename(tok.Next)
		rest = skip(rest, ")")
		expr, rest2 := p.cast(rest)
		node := newCast(expr, ty)
		node.Tok = start
		return node, rest2
	}
	return p.unary(tok)
}

func (p *parser) unary(tok *Token) (*Node, *Token) {
	switch {
	case equal(tok, "+"):
		return p.cast(tok.Next)
	case equal(tok, "-"):
		e, rest := p.cast(tok.Next)
		return newUnary(NdNeg, e, tok), rest
	case equal(tok, "&"):
		e, rest := p.cast(tok.Next)
		return newUnary(NdAddr, e, tok), rest
	case equal(tok, "*"):
		e, rest := p.cast(tok.Next)
		return newUnary(NdDeref, e, tok), rest
	case equal(tok, "!"):
		e, rest := p.cast(tok.Next)
		return newUnary(NdNot, e, tok), rest
	case equal(tok, "~"):
		e, rest := p.cast(tok.Next)
		return newUnary(NdBitNot, e, tok), rest
	case equal(tok, "++"):
		e, rest := p.unary(tok.Next)
		return p.toAssign(p.newAddExpr(e, newNum(1, tok), tok), tok), rest
	case equal(tok, "--"):
		e, rest := p.unary(tok.Next)
		return p.toAssign(p.newSubExpr(e, newNum(1, tok), tok), tok), rest
	case equal(tok, "sizeof"):
		if equal(tok.Next, "(") && p.isTypename(tok.Next.Next) {
			ty, rest := p.typename(tok.Next.Next)
			rest = skip(rest, ")")
			return newNum(int64(ty.Size), tok), rest
		}
		e, rest := p.unary(tok.Next)
		addType(e)
		return newNum(int64(e.Ty.Size), tok), rest
	}
	return p.postfix(tok)
}

func (p *parser) postfix(tok *Token) (*Node, *Token) {
	node, tok := p.primary(tok)

	for {
		switch {
		case equal(tok, "["):
			start := tok
			idx, rest := p.expr(tok.Next)
			rest = skip(rest, "]")
			node = newUnary(NdDeref, p.newAddExpr(node, idx, start), start)
			tok = rest
		case equal(tok, "."):
			node, tok = p.structRef(node, tok.Next)
		case equal(tok, "->"):
			node = newUnary(NdDeref, node, tok)
			node, tok = p.structRef(node, tok.Next)
		case equal(tok, "++"):
			node = p.postfixInc(node, tok)
			tok = tok.Next
		case equal(tok, "--"):
			node = p.postfixDec(node, tok)
			tok = tok.Next
		default:
			return node, tok
		}
	}
}

// postfixInc/postfixDec lower a++/a-- to (typeof a)((a += 1) - 1) and
// (typeof a)((a -= 1) + 1), per spec.md §4.2.
func (p *parser) postfixInc(node *Node, tok *Token) *Node {
	addType(node)
	inc := p.toAssign(p.newAddExpr(node, newNum(1, tok), tok), tok)
	return newCast(p.newSubExpr(inc, newNum(1, tok), tok), node.Ty)
}

func (p *parser) postfixDec(node *Node, tok *Token) *Node {
	addType(node)
	dec := p.toAssign(p.newSubExpr(node, newNum(1, tok), tok), tok)
	return newCast(p.newAddExpr(dec, newNum(1, tok), tok), node.Ty)
}

func (p *parser) structRef(node *Node, tok *Token) (*Node, *Token) {
	addType(node)
	if node.Ty.Kind != TyStruct && node.Ty.Kind != TyUnion {
		panic(errorTok(tok, "not a struct or union"))
	}
	name := ident(tok)
	m := findMember(node.Ty, name)
	if m == nil {
		panic(errorTok(tok, "no such member: %s", name))
	}
	n := newUnary(NdMember, node, tok)
	n.Mem = m
	return n, tok.Next
}

func (p *parser) primary(tok *Token) (*Node, *Token) {
	if equal(tok, "(") && equal(tok.Next, "{") {
		node := newNode(NdStmtExpr, tok)
		body, rest := p.compoundStmt(tok.Next.Next)
		node.Body = body.Body
		rest = skip(rest, ")")
		return node, rest
	}

	if equal(tok, "(") {
		e, rest := p.expr(tok.Next)
		rest = skip(rest, ")")
		return e, rest
	}

	if tok.Kind == TokenIdent {
		if equal(tok.Next, "(") {
			return p.funcall(tok)
		}
		e := p.findVarEntry(tok.Text)
		if e == nil {
			panic(errorTok(tok, "undeclared identifier: %s", tok.Text))
		}
		if e.Typedef != nil {
			panic(errorTok(tok, "%s names a type, not a variable", tok.Text))
		}
		if e.Var == nil {
			return newNum(e.EnumVal, tok), tok.Next
		}
		return newVarNode(e.Var, tok), tok.Next
	}

	if tok.Kind == TokenNum {
		return newNum(tok.Val, tok), tok.Next
	}

	if tok.Kind == TokenStr {
		v := p.newStringLiteral(tok.Str, tok.Ty)
		return newVarNode(v, tok), tok.Next
	}

	panic(errorTok(tok, "expected an expression"))
}

func (p *parser) newStringLiteral(data []byte, ty *Type) *Obj {
	label := fmt.Sprintf(".LC%d", p.strCount)
	p.strCount++
	buf := append([]byte(nil), data...)
	v := &Obj{Name: label, Ty: ty, IsStatic: true, IsDefinition: true, InitData: buf}
	p.addGlobal(v)
	return v
}

// funcall casts each argument to the matching parameter type of a known
// prototype; the argument count is not checked against the prototype, and
// arguments beyond its parameter list are passed uncast. An undeclared callee defaults to a long-returning implicit prototype,
// matching the legacy "implicit int/long" behavior spec.md §4.2 calls out.
func (p *parser) funcall(tok *Token) (*Node, *Token) {
	start := tok
	funcNameTok := tok
	tok = tok.Next.Next // skip ident "("

	var calleeTy *Type
	if e := p.findVarEntry(funcNameTok.Text); e != nil && e.Var != nil && e.Var.Ty.Kind == TyFunc {
		calleeTy = e.Var.Ty
	}

	var args []*Node
	first := true
	for !equal(tok, ")") {
		if !first {
			tok = skip(tok, ",")
		}
		first = false
		arg, rest := p.assign(tok)
		tok = rest
		addType(arg)
		if arg.Ty.Kind == TyStruct || arg.Ty.Kind == TyUnion {
			panic(errorTok(arg.Tok, "passing a struct/union by value is not supported"))
		}
		args = append(args, arg)
	}
	tok = skip(tok, ")")

	if calleeTy != nil {
		for i := range args {
			if i < len(calleeTy.Params) {
				args[i] = newCast(args[i], calleeTy.Params[i])
			}
		}
	}

	node := newNode(NdFuncall, start)
	node.FuncName = funcNameTok.Text
	node.FuncType = calleeTy
	node.Args = args
	if calleeTy != nil {
		node.Ty = calleeTy.ReturnType
	} else {
		node.Ty = tyLong
	}
	return node, tok
}

func (p *parser) constExpr(tok *Token) (int64, *Token) {
	node, rest := p.conditional(tok)
	addType(node)
	return evalConst(node), rest
}
