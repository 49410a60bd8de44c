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
	"bytes"
	"strings"
	"testing"
)

func codegenSrc(t *testing.T, src string) string {
	t.Helper()
	prog := parseSrc(t, src)
	var buf bytes.Buffer
	Codegen(prog, &buf, false)
	return buf.String()
}

// TestEmitterStackBalance covers spec.md §8's "every push has a matching
// pop within the same function body" property: depth must return to zero
// once a function's body is fully walked, since the epilogue restores rsp
// from rbp unconditionally regardless of depth.
func TestEmitterStackBalance(t *testing.T) {
	srcs := []string{
		"int main() { int a=1; int b=2; int c=3; return a+b*c; }",
		"int f(int a,int b,int c,int d,int e,int f){ return a+b+c+d+e+f; } int main(){ return f(1,2,3,4,5,6); }",
		"int fib(int n){ if(n<2) return n; return fib(n-1)+fib(n-2); } int main(){ return fib(10); }",
	}
	for _, src := range srcs {
		t.Run(src, func(t *testing.T) {
			asm := codegenSrc(t, src)
			pushes := strings.Count(asm, "push rax")
			pops := 0
			for _, line := range strings.Split(asm, "\n") {
				line = strings.TrimSpace(line)
				if strings.HasPrefix(line, "pop ") && line != "pop rbp" {
					pops++
				}
			}
			if pushes != pops {
				t.Errorf("push rax count = %d, pop count = %d, want equal", pushes, pops)
			}
		})
	}
}

// TestCallAlignmentPadding covers spec.md §8's "a call site with an odd
// outstanding push count pads rsp to a 16-byte boundary before call".
func TestCallAlignmentPadding(t *testing.T) {
	src := "int g(int x){ return x; } int main(){ return g(2)+1; }"
	asm := codegenSrc(t, src)
	if !strings.Contains(asm, "sub rsp, 8") || !strings.Contains(asm, "add rsp, 8") {
		t.Errorf("expected alignment padding around the nested call, got:\n%s", asm)
	}
}

// TestPointerArithmeticScaling covers spec.md §8's "p+n for a T* scales n
// by sizeof(T)" property: adding to an int* must multiply the offset by 4
// before the add.
func TestPointerArithmeticScaling(t *testing.T) {
	src := "int main(){ int a[4]; int *p=a; p=p+3; return 0; }"
	asm := codegenSrc(t, src)
	if !strings.Contains(asm, "imul rax, rdi") {
		t.Errorf("expected a scaling imul for pointer arithmetic on int*, got:\n%s", asm)
	}
	if !strings.Contains(asm, "mov rax, 4") {
		t.Errorf("expected sizeof(int)=4 loaded as the scale factor, got:\n%s", asm)
	}
}

// TestStructAssignmentByteCopy covers the byte-by-byte struct/union
// assignment path through r8b.
func TestStructAssignmentByteCopy(t *testing.T) {
	src := "struct S{int a;int b;}; int main(){ struct S s; struct S t; s=t; return 0; }"
	asm := codegenSrc(t, src)
	if !strings.Contains(asm, "mov r8b,") {
		t.Errorf("expected a byte-copy loop through r8b for struct assignment, got:\n%s", asm)
	}
}

func TestAssignLvarOffsetsFrameSizeIsSixteenByteAligned(t *testing.T) {
	src := "int main(){ char a; int b; long c; return 0; }"
	prog := parseSrc(t, src)
	fn := findFunc(prog, "main")
	assignLvarOffsets(prog)
	if fn.StackSize%16 != 0 {
		t.Errorf("StackSize = %d, want a multiple of 16", fn.StackSize)
	}
	for v := fn.Locals; v != nil; v = v.Next {
		if v.Offset%v.Ty.Align != 0 {
			t.Errorf("local %s offset %d not aligned to %d", v.Name, v.Offset, v.Ty.Align)
		}
	}
}

func TestSwitchEmitsOneCompareJumpPairPerCase(t *testing.T) {
	src := "int main(){ switch(2){ case 1: return 10; case 2: return 20; default: return 30; } }"
	asm := codegenSrc(t, src)
	if strings.Count(asm, "cmp rax, 1") == 0 || strings.Count(asm, "cmp rax, 2") == 0 {
		t.Errorf("expected a cmp per case label, got:\n%s", asm)
	}
}
