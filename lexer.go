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
	"strconv"
	"strings"
)

var keywords = map[string]bool{
	"return": true, "if": true, "else": true, "while": true, "for": true,
	"int": true, "sizeof": true, "char": true, "struct": true, "union": true,
	"long": true, "short": true, "void": true, "typedef": true, "_Bool": true,
	"enum": true, "static": true, "switch": true, "case": true, "default": true,
	"break": true, "continue": true, "goto": true,
}

// punctuators is searched longest-first so multi-character operators never
// get split into their single-character prefixes.
var punctuators = []string{
	"<<=", ">>=",
	"==", "!=", "<=", ">=", "->", "+=", "-=", "*=", "/=", "%=",
	"++", "--", "&&", "||", "<<", ">>", "&=", "|=", "^=",
	// single-byte punctuators are matched by isPunctByte, not listed here.
}

// newSourceFile wraps already-read content (compile in main.go reads the
// file or stdin) in a SourceFile, appending a trailing '\n' if the content
// doesn't already end in one. See DESIGN.md's Open Question decision on input normalization.
func newSourceFile(name, content string) *SourceFile {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return &SourceFile{Name: name, Buf: content}
}

type lexer struct {
	file *SourceFile
	buf  string
	pos  int
}

// Tokenize lexes file into a token stream terminated by a TokenEOF token.
func Tokenize(file *SourceFile) *Token {
	l := &lexer{file: file, buf: file.Buf}
	head := &Token{}
	cur := head
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]

		if c == '\n' || isSpace(c) {
			l.pos++
			continue
		}

		if strings.HasPrefix(l.buf[l.pos:], "//") {
			for l.pos < len(l.buf) && l.buf[l.pos] != '\n' {
				l.pos++
			}
			continue
		}

		if strings.HasPrefix(l.buf[l.pos:], "/*") {
			end := strings.Index(l.buf[l.pos+2:], "*/")
			if end < 0 {
				panic(errorAt(file, l.pos, "unterminated block comment"))
			}
			l.pos += 2 + end + 2
			continue
		}

		if c == '"' {
			cur.Next = l.readStringLiteral()
			cur = cur.Next
			continue
		}

		if c == '\'' {
			cur.Next = l.readCharLiteral()
			cur = cur.Next
			continue
		}

		if isDigit(c) {
			cur.Next = l.readNumber()
			cur = cur.Next
			continue
		}

		if isIdentStart(c) {
			start := l.pos
			l.pos++
			for l.pos < len(l.buf) && isIdentCont(l.buf[l.pos]) {
				l.pos++
			}
			cur.Next = l.newToken(TokenIdent, start, l.pos)
			cur = cur.Next
			continue
		}

		if n := matchPunct(l.buf[l.pos:]); n > 0 {
			cur.Next = l.newToken(TokenPunct, l.pos, l.pos+n)
			l.pos += n
			cur = cur.Next
			continue
		}

		panic(errorAt(file, l.pos, "invalid token"))
	}

	cur.Next = l.newToken(TokenEOF, l.pos, l.pos)
	addLineNumbers(file, head.Next)
	convertKeywords(head.Next)
	return head.Next
}

func (l *lexer) newToken(kind TokenKind, start, end int) *Token {
	return &Token{Kind: kind, File: l.file, Pos: start, Text: l.buf[start:end]}
}

func matchPunct(s string) int {
	for _, p := range punctuators {
		if strings.HasPrefix(s, p) {
			return len(p)
		}
	}
	if len(s) > 0 && isPunctByte(s[0]) {
		return 1
	}
	return 0
}

// addLineNumbers is the lexer's trailing pass: it walks the buffer once,
// bumping a line counter on '\n', and labels each token with the count at
// its starting position.
func addLineNumbers(file *SourceFile, tok *Token) {
	buf := file.Buf
	line := 1
	pos := 0
	for t := tok; t != nil; t = t.Next {
		for pos < t.Pos {
			if buf[pos] == '\n' {
				line++
			}
			pos++
		}
		t.Line = line
		if t.Kind == TokenEOF {
			break
		}
	}
}

// convertKeywords is the lexer's keyword-promotion post-pass: any
// TokenIdent whose text exactly matches the keyword set is re-tagged.
func convertKeywords(tok *Token) {
	for t := tok; t != nil && t.Kind != TokenEOF; t = t.Next {
		if t.Kind == TokenIdent && keywords[t.Text] {
			t.Kind = TokenKeyword
		}
	}
}

func isSpace(c byte) bool  { return c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}
func isIdentCont(c byte) bool { return isIdentStart(c) || isDigit(c) }

// isPunctByte reports whether c is one of the single-character operators
// and separators this language recognizes.
func isPunctByte(c byte) bool {
	return strings.IndexByte("+-*/%=<>!&|^~()[]{},.;:?", c) >= 0
}

// readNumber recognizes {0x,0X}hex, {0b,0B}binary, leading-0 octal, and
// plain decimal integer literals. Any alphanumeric character immediately
// following the digits is a fatal trailing-garbage error.
func (l *lexer) readNumber() *Token {
	start := l.pos
	var val int64
	var err error

	switch {
	case strings.HasPrefix(l.buf[l.pos:], "0x") || strings.HasPrefix(l.buf[l.pos:], "0X"):
		p := l.pos + 2
		for p < len(l.buf) && isHexDigit(l.buf[p]) {
			p++
		}
		val, err = strconv.ParseInt(l.buf[l.pos+2:p], 16, 64)
		l.pos = p
	case strings.HasPrefix(l.buf[l.pos:], "0b") || strings.HasPrefix(l.buf[l.pos:], "0B"):
		p := l.pos + 2
		for p < len(l.buf) && (l.buf[p] == '0' || l.buf[p] == '1') {
			p++
		}
		val, err = strconv.ParseInt(l.buf[l.pos+2:p], 2, 64)
		l.pos = p
	case l.buf[l.pos] == '0':
		p := l.pos
		for p < len(l.buf) && l.buf[p] >= '0' && l.buf[p] <= '7' {
			p++
		}
		if p == l.pos {
			p++ // the literal "0" itself
			val = 0
		} else {
			val, err = strconv.ParseInt(l.buf[l.pos:p], 8, 64)
		}
		l.pos = p
	default:
		p := l.pos
		for p < len(l.buf) && isDigit(l.buf[p]) {
			p++
		}
		val, err = strconv.ParseInt(l.buf[l.pos:p], 10, 64)
		l.pos = p
	}
	if err != nil {
		panic(errorAt(l.file, start, "invalid integer literal"))
	}
	if l.pos < len(l.buf) && isIdentCont(l.buf[l.pos]) {
		panic(errorAt(l.file, l.pos, "invalid digit or trailing character in integer literal"))
	}
	tok := l.newToken(TokenNum, start, l.pos)
	tok.Val = val
	return tok
}

// namedEscapes maps the single-letter escapes to their byte value; octal
// and hex escapes are decoded separately in readEscapedChar.
var namedEscapes = map[byte]byte{
	'a': 7, 'b': 8, 't': 9, 'n': 10, 'v': 11, 'f': 12, 'r': 13, 'e': 27,
	'\\': '\\', '\'': '\'', '"': '"', '?': '?', '0': 0,
}

// readEscapedChar decodes one escape sequence starting just after the
// backslash at buf[i]. It returns the decoded byte and the index of the
// first unconsumed byte.
func readEscapedChar(file *SourceFile, buf string, i int) (byte, int) {
	c := buf[i]
	switch {
	case c >= '0' && c <= '7':
		val := 0
		n := 0
		for n < 3 && i < len(buf) && buf[i] >= '0' && buf[i] <= '7' {
			val = val*8 + int(buf[i]-'0')
			i++
			n++
		}
		return byte(val), i
	case c == 'x':
		i++
		start := i
		val := 0
		for i < len(buf) && isHexDigit(buf[i]) {
			d := buf[i]
			var v int
			switch {
			case d >= '0' && d <= '9':
				v = int(d - '0')
			case d >= 'a' && d <= 'f':
				v = int(d-'a') + 10
			default:
				v = int(d-'A') + 10
			}
			val = val*16 + v
			i++
		}
		if i == start {
			panic(errorAt(file, start, "empty hex escape sequence"))
		}
		return byte(val), i
	default:
		if v, ok := namedEscapes[c]; ok {
			return v, i + 1
		}
		return c, i + 1
	}
}

// readStringLiteral decodes a "..." literal into a cooked byte buffer and
// produces an array-of-char[len+1] token, matching spec.md §4.1.
func (l *lexer) readStringLiteral() *Token {
	start := l.pos
	i := l.pos + 1
	var cooked []byte
	for i < len(l.buf) && l.buf[i] != '"' {
		if l.buf[i] == '\n' {
			panic(errorAt(l.file, start, "unterminated string literal"))
		}
		if l.buf[i] == '\\' {
			var b byte
			b, i = readEscapedChar(l.file, l.buf, i+1)
			cooked = append(cooked, b)
			continue
		}
		cooked = append(cooked, l.buf[i])
		i++
	}
	if i >= len(l.buf) {
		panic(errorAt(l.file, start, "unterminated string literal"))
	}
	i++ // closing quote
	tok := l.newToken(TokenStr, start, i)
	tok.Str = cooked
	tok.Ty = arrayOf(tyChar, len(cooked)+1)
	l.pos = i
	return tok
}

// readCharLiteral decodes a '...' literal into a TokenNum with the decoded
// value (C character constants have type int).
func (l *lexer) readCharLiteral() *Token {
	start := l.pos
	i := l.pos + 1
	if i >= len(l.buf) {
		panic(errorAt(l.file, start, "unterminated character literal"))
	}
	var val byte
	if l.buf[i] == '\\' {
		val, i = readEscapedChar(l.file, l.buf, i+1)
	} else {
		val = l.buf[i]
		i++
	}
	if i >= len(l.buf) || l.buf[i] != '\'' {
		panic(errorAt(l.file, start, "unterminated character literal"))
	}
	i++
	tok := l.newToken(TokenNum, start, i)
	tok.Val = int64(int8(val))
	l.pos = i
	return tok
}
