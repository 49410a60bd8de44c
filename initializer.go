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

// Initializer is a tree shaped like the type it initializes: a scalar
// leaf carries Expr, an array/struct/union node carries Children indexed
// the same way as its Type's elements/members. A nil Children entry (or a
// nil Children slice entirely) means "left at its default zero value" -
// locals rely on an upfront MEMZERO for that, globals rely on their byte
// image starting zeroed.
type Initializer struct {
	Ty       *Type
	Expr     *Node
	Children []*Initializer
}

func (p *parser) initializer(tok *Token, ty *Type) (*Initializer, *Token) {
	switch {
	case ty.Kind == TyArray && ty.Base.Kind == TyChar && tok.Kind == TokenStr:
		return p.stringInitializer(tok, ty)
	case ty.Kind == TyArray:
		return p.arrayInitializer(tok, ty)
	case ty.Kind == TyStruct:
		return p.structInitializer(tok, ty)
	case ty.Kind == TyUnion:
		return p.unionInitializer(tok, ty)
	default:
		return p.scalarInitializer(tok, ty)
	}
}

// stringInitializer handles `char buf[] = "abc"` (completing the
// flexible array length to len+1) and `char buf[N] = "..."` (truncating
// or zero-padding to N, per ordinary C array-initializer rules).
func (p *parser) stringInitializer(tok *Token, ty *Type) (*Initializer, *Token) {
	if ty.ArrayLen < 0 {
		ty.ArrayLen = len(tok.Str) + 1
		ty.Size = ty.ArrayLen
	}
	init := &Initializer{Ty: ty}
	init.Children = make([]*Initializer, ty.ArrayLen)
	for i := 0; i < ty.ArrayLen; i++ {
		var v byte
		if i < len(tok.Str) {
			v = tok.Str[i]
		}
		init.Children[i] = &Initializer{Ty: tyChar, Expr: newNum(int64(v), tok)}
	}
	return init, tok.Next
}

func (p *parser) arrayInitializer(tok *Token, ty *Type) (*Initializer, *Token) {
	tok = skip(tok, "{")

	var children []*Initializer
	first := true
	for !equal(tok, "}") {
		if !first {
			tok = skip(tok, ",")
			if equal(tok, "}") {
				break
			}
		}
		first = false
		child, rest := p.initializer(tok, ty.Base)
		children = append(children, child)
		tok = rest
	}
	tok = skip(tok, "}")

	if ty.ArrayLen < 0 {
		ty.ArrayLen = len(children)
		ty.Size = ty.Base.Size * ty.ArrayLen
	}
	for len(children) < ty.ArrayLen {
		children = append(children, &Initializer{Ty: ty.Base})
	}
	return &Initializer{Ty: ty, Children: children}, tok
}

func (p *parser) structInitializer(tok *Token, ty *Type) (*Initializer, *Token) {
	if !equal(tok, "{") {
		e, rest := p.assign(tok)
		return &Initializer{Ty: ty, Expr: e}, rest
	}

	tok = skip(tok, "{")
	children := make([]*Initializer, len(ty.Members))
	first := true
	i := 0
	for !equal(tok, "}") && i < len(ty.Members) {
		if !first {
			tok = skip(tok, ",")
			if equal(tok, "}") {
				break
			}
		}
		first = false
		child, rest := p.initializer(tok, ty.Members[i].Ty)
		children[i] = child
		tok = rest
		i++
	}
	for !equal(tok, "}") {
		if !first {
			tok = skip(tok, ",")
			if equal(tok, "}") {
				break
			}
		}
		first = false
		_, rest := p.assign(tok)
		tok = rest
	}
	tok = skip(tok, "}")
	return &Initializer{Ty: ty, Children: children}, tok
}

func (p *parser) unionInitializer(tok *Token, ty *Type) (*Initializer, *Token) {
	if !equal(tok, "{") {
		e, rest := p.assign(tok)
		return &Initializer{Ty: ty, Expr: e}, rest
	}
	tok = skip(tok, "{")
	children := make([]*Initializer, len(ty.Members))
	if len(ty.Members) > 0 && !equal(tok, "}") {
		child, rest := p.initializer(tok, ty.Members[0].Ty)
		children[0] = child
		tok = rest
	}
	if rest, ok := consume(tok, ","); ok {
		tok = rest
	}
	tok = skip(tok, "}")
	return &Initializer{Ty: ty, Children: children}, tok
}

func (p *parser) scalarInitializer(tok *Token, ty *Type) (*Initializer, *Token) {
	e, rest := p.assign(tok)
	return &Initializer{Ty: ty, Expr: e}, rest
}

// lvarInitializer builds the local-variable lowering spec.md §4.2
// describes: an up-front MEMZERO of the whole object followed by one
// ND_ASSIGN per explicit leaf in the Initializer tree, addressed by a
// deref(base+index)/member(base) node chain built on the fly (these
// chains ARE the "InitDesg" spec.md §3 names; occ builds them directly as
// Node subtrees rather than a separate designator value).
func (p *parser) lvarInitializer(tok *Token, v *Obj) (*Node, *Token) {
	init, rest := p.initializer(tok, v.Ty)
	v.Ty = init.Ty

	zero := newUnary(NdMemZero, newVarNode(v, rest), rest)
	assigns := p.createLocalInit(init, newVarNode(v, rest), rest)

	node := zero
	for _, a := range assigns {
		node = newBinary(NdComma, node, a, rest)
	}
	return node, rest
}

func (p *parser) createLocalInit(init *Initializer, base *Node, tok *Token) []*Node {
	var out []*Node
	switch init.Ty.Kind {
	case TyArray:
		if init.Children == nil {
			return nil
		}
		for i, child := range init.Children {
			if child == nil {
				continue
			}
			elemBase := newUnary(NdDeref, p.newAddExpr(base, newNum(int64(i), tok), tok), tok)
			out = append(out, p.createLocalInit(child, elemBase, tok)...)
		}
	case TyStruct, TyUnion:
		if init.Expr != nil {
			return []*Node{newBinary(NdAssign, base, init.Expr, tok)}
		}
		if init.Children == nil {
			return nil
		}
		for i, m := range init.Ty.Members {
			if i >= len(init.Children) || init.Children[i] == nil {
				continue
			}
			memberBase := newUnary(NdMember, base, tok)
			memberBase.Mem = m
			out = append(out, p.createLocalInit(init.Children[i], memberBase, tok)...)
		}
	default:
		if init.Expr == nil {
			return nil
		}
		out = append(out, newBinary(NdAssign, base, init.Expr, tok))
	}
	return out
}

// globalInitializer constant-folds init into a byte image plus a list of
// relocations (address-valued leaves), per spec.md §4.2's "compile-time
// constant folding for globals".
func (p *parser) globalInitializer(tok *Token, v *Obj) *Token {
	init, rest := p.initializer(tok, v.Ty)
	v.Ty = init.Ty

	buf := make([]byte, v.Ty.Size)
	var relocs []*Relocation
	writeGlobalInit(init, buf, 0, &relocs)
	v.InitData = buf
	v.Relocations = relocs
	return rest
}

func writeGlobalInit(init *Initializer, buf []byte, offset int, relocs *[]*Relocation) {
	if init == nil {
		return
	}
	switch init.Ty.Kind {
	case TyArray:
		if init.Children == nil {
			return
		}
		elemSize := init.Ty.Base.Size
		for i, child := range init.Children {
			writeGlobalInit(child, buf, offset+i*elemSize, relocs)
		}
	case TyStruct:
		if init.Expr != nil {
			panic(errorTok(init.Expr.Tok, "initializer is not a compile-time constant"))
		}
		if init.Children == nil {
			return
		}
		for i, m := range init.Ty.Members {
			if i >= len(init.Children) || init.Children[i] == nil {
				continue
			}
			writeGlobalInit(init.Children[i], buf, offset+m.Offset, relocs)
		}
	case TyUnion:
		if len(init.Children) > 0 && init.Children[0] != nil {
			writeGlobalInit(init.Children[0], buf, offset, relocs)
		}
	default:
		if init.Expr == nil {
			return
		}
		writeScalarInit(init.Expr, init.Ty, buf, offset, relocs)
	}
}

func writeScalarInit(expr *Node, ty *Type, buf []byte, offset int, relocs *[]*Relocation) {
	addType(expr)
	if label, addend, ok := evalInitializerAddr(expr); ok {
		*relocs = append(*relocs, &Relocation{Offset: offset, Label: label, Addend: addend})
		return
	}
	putBytes(buf, offset, evalConst(expr), ty.Size)
}

// putBytes stores the low sz bytes of val, little-endian.
func putBytes(buf []byte, offset int, val int64, sz int) {
	for i := 0; i < sz && offset+i < len(buf); i++ {
		buf[offset+i] = byte(val >> (8 * uint(i)))
	}
}
