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

func tokenize(t *testing.T, src string) *Token {
	t.Helper()
	return Tokenize(newSourceFile("test.c", src))
}

func TestTokenizeDeterminism(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"simple expr", "1 + 2", []string{"1", "+", "2"}},
		{"ident and punct", "int main(){return 0;}",
			[]string{"int", "main", "(", ")", "{", "return", "0", ";", "}"}},
		{"comments dropped", "1 /* c */ + // line\n2", []string{"1", "+", "2"}},
		{"multi-char punct not split", "a<<=1>>=b->c",
			[]string{"a", "<<=", "1", ">>=", "b", "->", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := tokenize(t, tt.src)
			var got []string
			for tk := tok; tk.Kind != TokenEOF; tk = tk.Next {
				got = append(got, tk.Text)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v tokens, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIntegerLiteralForms(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		{"0x1A", 26},
		{"0X1a", 26},
		{"0b101", 5},
		{"0B101", 5},
		{"017", 15},
		{"0", 0},
		{"42", 42},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tok := tokenize(t, tt.src)
			if tok.Kind != TokenNum {
				t.Fatalf("Tokenize(%q) first token kind = %v, want num", tt.src, tok.Kind)
			}
			if tok.Val != tt.want {
				t.Errorf("Tokenize(%q).Val = %d, want %d", tt.src, tok.Val, tt.want)
			}
		})
	}
}

func TestIntegerLiteralTrailingGarbageRejected(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on trailing garbage after integer literal")
		}
	}()
	tokenize(t, "123abc")
}

func TestEscapeDecoding(t *testing.T) {
	tests := []struct {
		src  string
		want byte
	}{
		{`'\n'`, '\n'},
		{`'\t'`, '\t'},
		{`'\\'`, '\\'},
		{`'\''`, '\''},
		{`'\0'`, 0},
		{`'\101'`, 'A'},
		{`'\x41'`, 'A'},
		{`'a'`, 'a'},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tok := tokenize(t, tt.src)
			if tok.Kind != TokenNum {
				t.Fatalf("Tokenize(%q) kind = %v, want num", tt.src, tok.Kind)
			}
			if byte(tok.Val) != tt.want {
				t.Errorf("Tokenize(%q).Val = %d, want %d", tt.src, tok.Val, tt.want)
			}
		})
	}
}

func TestStringLiteralCookedBytes(t *testing.T) {
	tok := tokenize(t, `"ab\ncd"`)
	if tok.Kind != TokenStr {
		t.Fatalf("kind = %v, want str", tok.Kind)
	}
	want := "ab\ncd"
	if string(tok.Str) != want {
		t.Errorf("Str = %q, want %q", tok.Str, want)
	}
	if tok.Ty.Kind != TyArray || tok.Ty.ArrayLen != len(want)+1 {
		t.Errorf("Ty = %+v, want array of len %d", tok.Ty, len(want)+1)
	}
}

func TestKeywordPromotion(t *testing.T) {
	tok := tokenize(t, "int returnValue")
	if tok.Kind != TokenKeyword {
		t.Errorf("\"int\" kind = %v, want keyword", tok.Kind)
	}
	if tok.Next.Kind != TokenIdent {
		t.Errorf("\"returnValue\" kind = %v, want ident (not a keyword prefix match)", tok.Next.Kind)
	}
}
