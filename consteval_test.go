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

import "testing"

func constExprOf(t *testing.T, src string) int64 {
	t.Helper()
	p := &parser{scope: newScope()}
	tok := tokenize(t, src)
	val, _ := p.constExpr(tok)
	return val
}

func TestEvalConstArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"10%3", 1},
		{"1<<4", 16},
		{"1==1", 1},
		{"1!=1", 0},
		{"1 && 0", 0},
		{"1 || 0", 1},
		{"1 ? 2 : 3", 2},
		{"0 ? 2 : 3", 3},
		{"~0", -1},
		{"-5", -5},
		{"(1, 2, 3)", 3},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := constExprOf(t, tt.src); got != tt.want {
				t.Errorf("constExpr(%q) = %d, want %d", tt.src, got, tt.want)
			}
		})
	}
}

func TestEvalConstNonConstantPanics(t *testing.T) {
	p := &parser{scope: newScope()}
	p.enterScope()
	v := p.newLVar("x", tyInt)
	node := newVarNode(v, nil)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic evaluating a non-constant (a variable read) expression")
		}
	}()
	evalConst(node)
}

func TestCastConstMasksLowBytes(t *testing.T) {
	tests := []struct {
		v    int64
		ty   *Type
		want int64
	}{
		{0x1FF, tyChar, 0xFF},
		{0x1FFFF, tyShort, 0xFFFF},
		{-1, tyInt, 0xFFFFFFFF},
		{-1, tyLong, -1},
	}
	for _, tt := range tests {
		if got := castConst(tt.v, tt.ty); got != tt.want {
			t.Errorf("castConst(%d, %v) = %d, want %d", tt.v, tt.ty, got, tt.want)
		}
	}
}
