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
	"os"

	"github.com/spf13/cobra"
)

// compile reads a single translation unit from path ("-" for stdin),
// tokenizes, parses and type-checks it, then emits assembly to out.
func compile(path string, out io.Writer, emitLocs bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if oe, ok := r.(*occError); ok {
				err = oe
				return
			}
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	var content []byte
	if path == "-" {
		content, err = io.ReadAll(os.Stdin)
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	name := path
	if path == "-" {
		name = "<stdin>"
	}

	file := newSourceFile(name, string(content))
	tok := Tokenize(file)
	prog := Parse(tok)
	Codegen(prog, out, emitLocs)
	return nil
}

var rootCmd = &cobra.Command{
	Use:  "occ [flags] <input-file | ->",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.PersistentFlags().GetString("output")
		emitLocs, _ := cmd.PersistentFlags().GetBool("emit-locs")

		var out io.Writer = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			defer f.Close()
			out = f
		}

		if err := compile(args[0], out, emitLocs); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("output", "o", "", "write assembly here instead of stdout")
	rootCmd.PersistentFlags().Bool("emit-locs", true, `emit ".loc 1 N" debug line directives`)
	rootCmd.PersistentFlags().BoolP("assembly", "S", true, "accepted for familiarity; a no-op, assembly is the only output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
