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

import (
	"fmt"
	"io"

	"github.com/samber/lo"
)

var argRegs64 = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
var argRegs32 = []string{"edi", "esi", "edx", "ecx", "r8d", "r9d"}
var argRegs16 = []string{"di", "si", "dx", "cx", "r8w", "r9w"}
var argRegs8 = []string{"dil", "sil", "dl", "cl", "r8b", "r9b"}

// codegen is the tree-walking x86-64 / GAS Intel-syntax emitter spec.md §4.3
// describes: gen_addr computes an lvalue's address into rax, gen_expr
// evaluates a value into rax, gen_stmt has no return value. depth tracks
// outstanding push()es so call sites can keep rsp 16-byte aligned without
// a separate symbolic stack-slot allocator.
type codegen struct {
	out      io.Writer
	depth    int
	curFn    *Obj
	labelSeq int
	emitLocs bool
}

// Codegen lowers prog to GAS assembly on out. Frame offsets are assigned
// first (assignLvarOffsets) so gen_addr can reference them directly.
func Codegen(prog *Program, out io.Writer, emitLocs bool) {
	assignLvarOffsets(prog)
	c := &codegen{out: out, emitLocs: emitLocs}
	fmt.Fprintln(out, ".intel_syntax noprefix")
	c.emitData(prog)
	c.emitText(prog)
}

// assignLvarOffsets lays out each function's locals bottom-up from rbp,
// rounding each to its own alignment and the final frame to 16 bytes -
// the same two-step alignTo reuse spec.md §4.3 calls out. Offsets are
// accumulated sequentially (each depends on the last), then paired with
// their Obj via lo.Tuple2 and applied with lo.ForEach, the same
// stack-offset/value pairing idiom ajroetker-goat/amd64_parser.go's
// parseAssembly uses for lo.Tuple2[int, Parameter].
func assignLvarOffsets(prog *Program) {
	for fn := prog.Globals; fn != nil; fn = fn.Next {
		if !fn.IsFunction {
			continue
		}
		var locals []*Obj
		for v := fn.Locals; v != nil; v = v.Next {
			locals = append(locals, v)
		}

		offset := 0
		pairs := make([]lo.Tuple2[int, *Obj], len(locals))
		for i, v := range locals {
			offset += v.Ty.Size
			offset = alignTo(offset, v.Ty.Align)
			pairs[i] = lo.Tuple2[int, *Obj]{A: offset, B: v}
		}
		lo.ForEach(pairs, func(p lo.Tuple2[int, *Obj], _ int) {
			p.B.Offset = p.A
		})
		fn.StackSize = alignTo(offset, 16)
	}
}

func (c *codegen) push() {
	fmt.Fprintln(c.out, "  push rax")
	c.depth++
}

func (c *codegen) pop(reg string) {
	fmt.Fprintf(c.out, "  pop %s\n", reg)
	c.depth--
}

func (c *codegen) nextSeq() int {
	c.labelSeq++
	return c.labelSeq
}

// caseChainToSlice flattens a switch's CaseNext linked list into a slice so
// the emission step can use lo.Map/lo.ForEach instead of a hand-rolled
// accumulator loop.
func caseChainToSlice(head *Node) []*Node {
	var out []*Node
	for n := head; n != nil; n = n.CaseNext {
		out = append(out, n)
	}
	return out
}

func relocationsByOffset(relocs []*Relocation) map[int]*Relocation {
	m := make(map[int]*Relocation, len(relocs))
	for _, r := range relocs {
		m[r.Offset] = r
	}
	return m
}

// emitData writes every global variable's byte image into .data, with
// relocated 8-byte slots emitted as ".quad label+addend" instead of raw
// bytes. Whatever part of the object the image does not cover (all of an
// uninitialized global, a string literal's trailing NUL) is emitted as
// ".zero".
func (c *codegen) emitData(prog *Program) {
	for v := prog.Globals; v != nil; v = v.Next {
		if v.IsFunction || !v.IsDefinition {
			continue
		}
		fmt.Fprintln(c.out, ".data")
		if v.IsStatic {
			fmt.Fprintf(c.out, ".local %s\n", v.Name)
		} else {
			fmt.Fprintf(c.out, ".globl %s\n", v.Name)
		}
		fmt.Fprintf(c.out, ".align %d\n", v.Ty.Align)
		fmt.Fprintf(c.out, "%s:\n", v.Name)

		relocs := relocationsByOffset(v.Relocations)
		i := 0
		for i < len(v.InitData) {
			if r, ok := relocs[i]; ok {
				if r.Addend != 0 {
					fmt.Fprintf(c.out, "  .quad %s+%d\n", r.Label, r.Addend)
				} else {
					fmt.Fprintf(c.out, "  .quad %s\n", r.Label)
				}
				i += 8
				continue
			}
			fmt.Fprintf(c.out, "  .byte %d\n", v.InitData[i])
			i++
		}
		if n := v.Ty.Size - i; n > 0 {
			fmt.Fprintf(c.out, "  .zero %d\n", n)
		}
	}
}

func (c *codegen) emitText(prog *Program) {
	for fn := prog.Globals; fn != nil; fn = fn.Next {
		if !fn.IsFunction || !fn.IsDefinition {
			continue
		}
		fmt.Fprintln(c.out, ".text")
		if fn.IsStatic {
			fmt.Fprintf(c.out, ".local %s\n", fn.Name)
		} else {
			fmt.Fprintf(c.out, ".globl %s\n", fn.Name)
		}
		fmt.Fprintf(c.out, "%s:\n", fn.Name)
		c.curFn = fn
		c.depth = 0

		fmt.Fprintln(c.out, "  push rbp")
		fmt.Fprintln(c.out, "  mov rbp, rsp")
		fmt.Fprintf(c.out, "  sub rsp, %d\n", fn.StackSize)

		for i, p := range fn.Params {
			var reg string
			switch p.Ty.Size {
			case 1:
				reg = argRegs8[i]
			case 2:
				reg = argRegs16[i]
			case 4:
				reg = argRegs32[i]
			default:
				reg = argRegs64[i]
			}
			fmt.Fprintf(c.out, "  mov [rbp-%d], %s\n", p.Offset, reg)
		}

		c.genStmt(fn.Body)
		if c.depth != 0 {
			panic(fmt.Sprintf("codegen: stack depth %d at end of %s", c.depth, fn.Name))
		}

		fmt.Fprintf(c.out, ".L.return.%s:\n", fn.Name)
		fmt.Fprintln(c.out, "  mov rsp, rbp")
		fmt.Fprintln(c.out, "  pop rbp")
		fmt.Fprintln(c.out, "  ret")
	}
}

// genAddr computes node's address into rax. Only lvalue-shaped kinds are
// legal here; anything else is an internal invariant violation the parser
// should already have rejected.
func (c *codegen) genAddr(node *Node) {
	switch node.Kind {
	case NdVar:
		if node.Var.IsLocal {
			fmt.Fprintf(c.out, "  lea rax, [rbp-%d]\n", node.Var.Offset)
		} else {
			fmt.Fprintf(c.out, "  lea rax, %s[rip]\n", node.Var.Name)
		}
		return
	case NdDeref:
		c.genExpr(node.Lhs)
		return
	case NdComma:
		c.genExpr(node.Lhs)
		c.genAddr(node.Rhs)
		return
	case NdMember:
		c.genAddr(node.Lhs)
		fmt.Fprintf(c.out, "  add rax, %d\n", node.Mem.Offset)
		return
	}
	panic(errorTok(node.Tok, "not an lvalue"))
}

// load reads the value addressed by rax into rax itself, sign- or
// zero-extending to fill the 64-bit register per ty's width. Aggregates
// are never loaded as a value: their "value" in most expression contexts
// is the address gen_addr already computed (array-to-pointer decay,
// struct-by-address use in assignment).
func (c *codegen) load(ty *Type) {
	switch ty.Kind {
	case TyArray, TyStruct, TyUnion:
		return
	case TyBool:
		fmt.Fprintln(c.out, "  movzx rax, BYTE PTR [rax]")
		return
	}
	switch sizeForAssign(ty) {
	case 1:
		fmt.Fprintln(c.out, "  movsx rax, BYTE PTR [rax]")
	case 2:
		fmt.Fprintln(c.out, "  movsx rax, WORD PTR [rax]")
	case 4:
		fmt.Fprintln(c.out, "  movsxd rax, DWORD PTR [rax]")
	default:
		fmt.Fprintln(c.out, "  mov rax, [rax]")
	}
}

// store writes rax to the address pop()ed off the stack (pushed by the
// caller right after gen_addr). Struct/union stores are a byte-by-byte
// copy of size bytes through r8b, matching spec.md §4.3.
func (c *codegen) store(ty *Type) {
	c.pop("rdi")
	if ty.Kind == TyStruct || ty.Kind == TyUnion {
		for i := 0; i < ty.Size; i++ {
			fmt.Fprintf(c.out, "  mov r8b, [rax+%d]\n", i)
			fmt.Fprintf(c.out, "  mov [rdi+%d], r8b\n", i)
		}
		return
	}
	switch sizeForAssign(ty) {
	case 1:
		fmt.Fprintln(c.out, "  mov [rdi], al")
	case 2:
		fmt.Fprintln(c.out, "  mov [rdi], ax")
	case 4:
		fmt.Fprintln(c.out, "  mov [rdi], eax")
	default:
		fmt.Fprintln(c.out, "  mov [rdi], rax")
	}
}

// castTo narrows/extends rax from one width to another. A 1-, 2- or 4-byte
// target sign-extends rax from that many low bytes; an 8-byte target emits
// nothing, since load, call results and narrower casts already leave rax
// sign-extended to 64 bits.
func (c *codegen) castTo(to *Type) {
	if to.Kind == TyVoid {
		return
	}
	if to.Kind == TyBool {
		fmt.Fprintln(c.out, "  cmp rax, 0")
		fmt.Fprintln(c.out, "  setne al")
		fmt.Fprintln(c.out, "  movzx rax, al")
		return
	}
	switch to.Size {
	case 1:
		fmt.Fprintln(c.out, "  movsx rax, al")
	case 2:
		fmt.Fprintln(c.out, "  movsx rax, ax")
	case 4:
		fmt.Fprintln(c.out, "  movsxd rax, eax")
	}
}

func (c *codegen) emitLoc(tok *Token) {
	if c.emitLocs && tok != nil {
		fmt.Fprintf(c.out, "  .loc 1 %d\n", tok.Line)
	}
}

func (c *codegen) genExpr(node *Node) {
	c.emitLoc(node.Tok)

	switch node.Kind {
	case NdNum:
		fmt.Fprintf(c.out, "  mov rax, %d\n", node.Val)
		return
	case NdNeg:
		c.genExpr(node.Lhs)
		fmt.Fprintln(c.out, "  neg rax")
		return
	case NdVar, NdMember:
		c.genAddr(node)
		c.load(node.Ty)
		return
	case NdDeref:
		c.genExpr(node.Lhs)
		c.load(node.Ty)
		return
	case NdAddr:
		c.genAddr(node.Lhs)
		return
	case NdAssign:
		c.genAddr(node.Lhs)
		c.push()
		c.genExpr(node.Rhs)
		c.store(node.Lhs.Ty)
		return
	case NdMemZero:
		c.genAddr(node.Lhs)
		fmt.Fprintln(c.out, "  mov rdi, rax")
		fmt.Fprintf(c.out, "  mov rcx, %d\n", node.Lhs.Ty.Size)
		fmt.Fprintln(c.out, "  mov al, 0")
		fmt.Fprintln(c.out, "  rep stosb")
		return
	case NdStmtExpr:
		for n := node.Body; n != nil; n = n.Next {
			c.genStmt(n)
		}
		return
	case NdComma:
		c.genExpr(node.Lhs)
		c.genExpr(node.Rhs)
		return
	case NdCast:
		c.genExpr(node.Lhs)
		c.castTo(node.Ty)
		return
	case NdCond:
		seq := c.nextSeq()
		c.genExpr(node.Cond)
		fmt.Fprintln(c.out, "  cmp rax, 0")
		fmt.Fprintf(c.out, "  je .L.else.%d\n", seq)
		c.genExpr(node.Then)
		fmt.Fprintf(c.out, "  jmp .L.end.%d\n", seq)
		fmt.Fprintf(c.out, ".L.else.%d:\n", seq)
		c.genExpr(node.Els)
		fmt.Fprintf(c.out, ".L.end.%d:\n", seq)
		return
	case NdNot:
		c.genExpr(node.Lhs)
		fmt.Fprintln(c.out, "  cmp rax, 0")
		fmt.Fprintln(c.out, "  sete al")
		fmt.Fprintln(c.out, "  movzx rax, al")
		return
	case NdBitNot:
		c.genExpr(node.Lhs)
		fmt.Fprintln(c.out, "  not rax")
		return
	case NdLogAnd:
		seq := c.nextSeq()
		c.genExpr(node.Lhs)
		fmt.Fprintln(c.out, "  cmp rax, 0")
		fmt.Fprintf(c.out, "  je .L.false.%d\n", seq)
		c.genExpr(node.Rhs)
		fmt.Fprintln(c.out, "  cmp rax, 0")
		fmt.Fprintf(c.out, "  je .L.false.%d\n", seq)
		fmt.Fprintln(c.out, "  mov rax, 1")
		fmt.Fprintf(c.out, "  jmp .L.end.%d\n", seq)
		fmt.Fprintf(c.out, ".L.false.%d:\n", seq)
		fmt.Fprintln(c.out, "  mov rax, 0")
		fmt.Fprintf(c.out, ".L.end.%d:\n", seq)
		return
	case NdLogOr:
		seq := c.nextSeq()
		c.genExpr(node.Lhs)
		fmt.Fprintln(c.out, "  cmp rax, 0")
		fmt.Fprintf(c.out, "  jne .L.true.%d\n", seq)
		c.genExpr(node.Rhs)
		fmt.Fprintln(c.out, "  cmp rax, 0")
		fmt.Fprintf(c.out, "  jne .L.true.%d\n", seq)
		fmt.Fprintln(c.out, "  mov rax, 0")
		fmt.Fprintf(c.out, "  jmp .L.end.%d\n", seq)
		fmt.Fprintf(c.out, ".L.true.%d:\n", seq)
		fmt.Fprintln(c.out, "  mov rax, 1")
		fmt.Fprintf(c.out, ".L.end.%d:\n", seq)
		return
	case NdFuncall:
		c.genFuncall(node)
		return
	}

	// Generic binary arithmetic/comparison: rhs is evaluated first and
	// pushed, then lhs, so lhs ends up in rax and rhs in rdi.
	c.genExpr(node.Rhs)
	c.push()
	c.genExpr(node.Lhs)
	c.pop("rdi")

	switch node.Kind {
	case NdAdd:
		fmt.Fprintln(c.out, "  add rax, rdi")
	case NdSub:
		fmt.Fprintln(c.out, "  sub rax, rdi")
	case NdMul:
		fmt.Fprintln(c.out, "  imul rax, rdi")
	case NdDiv:
		fmt.Fprintln(c.out, "  cqo")
		fmt.Fprintln(c.out, "  idiv rdi")
	case NdMod:
		fmt.Fprintln(c.out, "  cqo")
		fmt.Fprintln(c.out, "  idiv rdi")
		fmt.Fprintln(c.out, "  mov rax, rdx")
	case NdBitAnd:
		fmt.Fprintln(c.out, "  and rax, rdi")
	case NdBitOr:
		fmt.Fprintln(c.out, "  or rax, rdi")
	case NdBitXor:
		fmt.Fprintln(c.out, "  xor rax, rdi")
	case NdShl:
		fmt.Fprintln(c.out, "  mov rcx, rdi")
		fmt.Fprintln(c.out, "  sal rax, cl")
	case NdShr:
		fmt.Fprintln(c.out, "  mov rcx, rdi")
		fmt.Fprintln(c.out, "  sar rax, cl")
	case NdEq:
		fmt.Fprintln(c.out, "  cmp rax, rdi")
		fmt.Fprintln(c.out, "  sete al")
		fmt.Fprintln(c.out, "  movzx rax, al")
	case NdNe:
		fmt.Fprintln(c.out, "  cmp rax, rdi")
		fmt.Fprintln(c.out, "  setne al")
		fmt.Fprintln(c.out, "  movzx rax, al")
	case NdLt:
		fmt.Fprintln(c.out, "  cmp rax, rdi")
		fmt.Fprintln(c.out, "  setl al")
		fmt.Fprintln(c.out, "  movzx rax, al")
	case NdLe:
		fmt.Fprintln(c.out, "  cmp rax, rdi")
		fmt.Fprintln(c.out, "  setle al")
		fmt.Fprintln(c.out, "  movzx rax, al")
	default:
		panic(errorTok(node.Tok, "invalid expression"))
	}
}

func (c *codegen) genFuncall(node *Node) {
	for _, arg := range node.Args {
		c.genExpr(arg)
		c.push()
	}
	for i := len(node.Args) - 1; i >= 0; i-- {
		c.pop(argRegs64[i])
	}

	fmt.Fprintln(c.out, "  mov rax, 0")
	if c.depth%2 == 0 {
		fmt.Fprintf(c.out, "  call %s\n", node.FuncName)
	} else {
		fmt.Fprintln(c.out, "  sub rsp, 8")
		fmt.Fprintf(c.out, "  call %s\n", node.FuncName)
		fmt.Fprintln(c.out, "  add rsp, 8")
	}

	switch node.Ty.Kind {
	case TyBool:
		fmt.Fprintln(c.out, "  movzx rax, al")
	case TyChar:
		fmt.Fprintln(c.out, "  movsx rax, al")
	case TyShort:
		fmt.Fprintln(c.out, "  movsx rax, ax")
	case TyInt:
		fmt.Fprintln(c.out, "  movsxd rax, eax")
	}
}

func (c *codegen) genStmt(node *Node) {
	c.emitLoc(node.Tok)

	switch node.Kind {
	case NdIf:
		seq := c.nextSeq()
		c.genExpr(node.Cond)
		fmt.Fprintln(c.out, "  cmp rax, 0")
		if node.Els != nil {
			fmt.Fprintf(c.out, "  je .L.else.%d\n", seq)
			c.genStmt(node.Then)
			fmt.Fprintf(c.out, "  jmp .L.end.%d\n", seq)
			fmt.Fprintf(c.out, ".L.else.%d:\n", seq)
			c.genStmt(node.Els)
		} else {
			fmt.Fprintf(c.out, "  je .L.end.%d\n", seq)
			c.genStmt(node.Then)
		}
		fmt.Fprintf(c.out, ".L.end.%d:\n", seq)
		return

	case NdFor:
		seq := c.nextSeq()
		if node.Init != nil {
			c.genStmt(node.Init)
		}
		fmt.Fprintf(c.out, ".L.begin.%d:\n", seq)
		if node.Cond != nil {
			c.genExpr(node.Cond)
			fmt.Fprintln(c.out, "  cmp rax, 0")
			fmt.Fprintf(c.out, "  je %s\n", node.BrkLabel)
		}
		c.genStmt(node.Then)
		fmt.Fprintf(c.out, "%s:\n", node.ContLabel)
		if node.Inc != nil {
			c.genExpr(node.Inc)
		}
		fmt.Fprintf(c.out, "  jmp .L.begin.%d\n", seq)
		fmt.Fprintf(c.out, "%s:\n", node.BrkLabel)
		return

	case NdWhile:
		fmt.Fprintf(c.out, "%s:\n", node.ContLabel)
		c.genExpr(node.Cond)
		fmt.Fprintln(c.out, "  cmp rax, 0")
		fmt.Fprintf(c.out, "  je %s\n", node.BrkLabel)
		c.genStmt(node.Then)
		fmt.Fprintf(c.out, "  jmp %s\n", node.ContLabel)
		fmt.Fprintf(c.out, "%s:\n", node.BrkLabel)
		return

	case NdSwitch:
		c.genExpr(node.Cond)
		pairs := lo.Map(caseChainToSlice(node.CaseNext), func(n *Node, _ int) lo.Tuple2[int64, string] {
			return lo.Tuple2[int64, string]{A: n.CaseVal, B: n.CaseLabel}
		})
		lo.ForEach(pairs, func(p lo.Tuple2[int64, string], _ int) {
			fmt.Fprintf(c.out, "  cmp rax, %d\n", p.A)
			fmt.Fprintf(c.out, "  je %s\n", p.B)
		})
		if node.DefaultCase != nil {
			fmt.Fprintf(c.out, "  jmp %s\n", node.DefaultCase.CaseLabel)
		}
		fmt.Fprintf(c.out, "  jmp %s\n", node.BrkLabel)
		c.genStmt(node.Then)
		fmt.Fprintf(c.out, "%s:\n", node.BrkLabel)
		return

	case NdCase:
		fmt.Fprintf(c.out, "%s:\n", node.CaseLabel)
		c.genStmt(node.Lhs)
		return

	case NdBlock:
		for n := node.Body; n != nil; n = n.Next {
			c.genStmt(n)
		}
		return

	case NdGoto:
		fmt.Fprintf(c.out, "  jmp %s\n", node.UniqueLabel)
		return

	case NdLabel:
		fmt.Fprintf(c.out, "%s:\n", node.UniqueLabel)
		c.genStmt(node.Lhs)
		return

	case NdReturn:
		if node.Lhs != nil {
			c.genExpr(node.Lhs)
		}
		fmt.Fprintf(c.out, "  jmp .L.return.%s\n", c.curFn.Name)
		return

	case NdExprStmt:
		c.genExpr(node.Lhs)
		return
	}

	panic(errorTok(node.Tok, "invalid statement"))
}
