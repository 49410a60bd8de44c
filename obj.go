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

// Relocation is a deferred fixup to a global's byte image: at Offset
// bytes into the image, write a pointer to symbol Label plus Addend.
type Relocation struct {
	Offset int
	Label  string
	Addend int64
}

// Obj is a program-level entity: a global variable, a function, or (when
// IsLocal) a local variable or compiler-introduced temporary.
type Obj struct {
	Name string
	Ty   *Type
	Next *Obj

	IsLocal bool
	Offset  int // locals: byte offset from rbp (negative in codegen)

	IsFunction   bool
	IsDefinition bool
	IsStatic     bool

	InitData    []byte
	Relocations []*Relocation

	Params []*Obj
	Locals *Obj // head of this function's full ordered local list
	Body   *Node

	StackSize int
}

// Program is the parser's final output: the ordered list of global
// objects (spec.md §2's "list of global objects").
type Program struct {
	Globals *Obj
}
