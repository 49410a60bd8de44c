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

import "github.com/samber/lo"

// Member is one struct/union field: its type, name, declaration index, and
// byte offset from the struct base (always 0 for unions).
type Member struct {
	Ty     *Type
	Name   *Token
	Idx    int
	Offset int
}

// alignTo rounds n up to the nearest multiple of align, exactly the
// helper _examples/original_source/codegen.c names align_to and reuses for
// both frame sizes and struct sizes; occ keeps both call sites on one
// helper rather than inlining the rounding twice (SPEC_FULL.md §4.3).
func alignTo(n, align int) int {
	return (n + align - 1) / align * align
}

// layoutStruct assigns each member the smallest offset >= the running
// offset that's a multiple of its own alignment, then rounds the total
// size up to the struct's alignment (spec.md §8's "Struct layout"
// property). A final flexible array member (ArrayLen == -1) becomes a
// zero-length array: it contributes zero bytes to the size, but its
// element alignment still counts toward the struct's alignment.
func layoutStruct(members []*Member) (size, align int, flexible bool) {
	offset := 0
	align = 1
	for i, m := range members {
		if m.Ty.Kind == TyArray && m.Ty.ArrayLen < 0 && i == len(members)-1 {
			m.Ty = arrayOf(m.Ty.Base, 0)
			m.Offset = alignTo(offset, m.Ty.Align)
			flexible = true
			align = max(align, m.Ty.Align)
			continue
		}
		offset = alignTo(offset, m.Ty.Align)
		m.Offset = offset
		offset += m.Ty.Size
		align = max(align, m.Ty.Align)
	}
	size = alignTo(offset, align)
	return size, align, flexible
}

// layoutUnion sets every member's offset to 0; the union's size is the
// widest member rounded up to the widest alignment.
func layoutUnion(members []*Member) (size, align int) {
	pairs := lo.Map(members, func(m *Member, _ int) lo.Tuple2[int, int] {
		m.Offset = 0
		return lo.Tuple2[int, int]{A: m.Ty.Size, B: m.Ty.Align}
	})
	for _, p := range pairs {
		size = max(size, p.A)
		align = max(align, p.B)
	}
	if align == 0 {
		align = 1
	}
	return alignTo(size, align), align
}

// findMember returns the member named name, or nil.
func findMember(ty *Type, name string) *Member {
	for _, m := range ty.Members {
		if m.Name != nil && m.Name.Text == name {
			return m
		}
	}
	return nil
}
