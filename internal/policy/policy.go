// Package policy loads engine policies from CUE sources.
//
// A policy source declares a top-level "policy" struct which is unified
// with the embedded #Policy schema. Omitted bounds take their defaults;
// the admin and custodian identities are always required.
//
//	policy: {
//		admin:     "0xadmin"
//		custodian: "0xvault"
//		lifetime:  288
//	}
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/format"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/escrow/internal/engine"
)

//go:embed schema.cue
var schemaSource string

// CompileError is a policy error with source position when known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile parses a single CUE source into a validated policy. The name is
// used for error positions.
func Compile(name string, src []byte) (engine.Policy, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return engine.Policy{}, formatCUEError(err)
	}
	return decode(ctx, v)
}

// Load reads a policy from a .cue file or from a directory holding one
// CUE package.
func Load(path string) (engine.Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return engine.Policy{}, fmt.Errorf("policy path: %w", err)
	}
	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return engine.Policy{}, fmt.Errorf("read policy: %w", err)
		}
		return Compile(filepath.Base(path), src)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return engine.Policy{}, &CompileError{Field: "load", Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return engine.Policy{}, formatCUEError(inst.Err)
	}
	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return engine.Policy{}, formatCUEError(err)
	}
	return decode(ctx, v)
}

func decode(ctx *cue.Context, v cue.Value) (engine.Policy, error) {
	root := v.LookupPath(cue.ParsePath("policy"))
	if !root.Exists() {
		return engine.Policy{}, &CompileError{
			Field:   "policy",
			Message: "policy struct is required",
			Pos:     v.Pos(),
		}
	}

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return engine.Policy{}, fmt.Errorf("embedded schema: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Policy")).Unify(root)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return engine.Policy{}, formatCUEError(err)
	}

	var p engine.Policy
	if err := unified.Decode(&p); err != nil {
		return engine.Policy{}, formatCUEError(err)
	}
	if err := p.Validate(); err != nil {
		return engine.Policy{}, &CompileError{
			Field:   "policy",
			Message: err.Error(),
			Pos:     root.Pos(),
		}
	}
	return p, nil
}

// Format renders a policy as a CUE source accepted by Compile.
func Format(p engine.Policy) ([]byte, error) {
	ctx := cuecontext.New()
	v := ctx.Encode(map[string]engine.Policy{"policy": p})
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	node := v.Syntax()
	if st, ok := node.(*ast.StructLit); ok {
		node = &ast.File{Decls: st.Elts}
	}
	out, err := format.Node(node)
	if err != nil {
		return nil, fmt.Errorf("format policy: %w", err)
	}
	return out, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	var pos token.Pos
	if positions := errors.Positions(first); len(positions) > 0 {
		pos = positions[0]
	}
	return &CompileError{
		Field:   pathOf(first),
		Message: first.Error(),
		Pos:     pos,
	}
}

func pathOf(err errors.Error) string {
	path := err.Path()
	if len(path) == 0 {
		return "cue"
	}
	out := path[0]
	for _, p := range path[1:] {
		out += "." + p
	}
	return out
}
