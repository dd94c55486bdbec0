package dupe

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cardcat/internal/textnorm"
)

// Resolution is the user's answer to a collision. The zero value is Discard.
type Resolution int

const (
	// Discard aborts the save.
	Discard Resolution = iota
	// Duplicate saves the candidate as an independent new record.
	Duplicate
	// Merge adds the candidate's quantity to the existing record and turns
	// the save into an update of that record.
	Merge
)

func (r Resolution) String() string {
	switch r {
	case Duplicate:
		return "duplicate"
	case Merge:
		return "merge"
	default:
		return "discard"
	}
}

// ParseResolution maps an answer to a Resolution. Anything unrecognized is
// Discard, never Duplicate.
func ParseResolution(s string) Resolution {
	switch textnorm.Fold(s) {
	case "duplicate", "duplicar", "dup", "d":
		return Duplicate
	case "merge", "sumar", "m", "s":
		return Merge
	default:
		return Discard
	}
}

// Resolver decides what to do with a collision. Implementations may block
// (a prompt, a dialog) and must honor ctx.
type Resolver interface {
	Resolve(ctx context.Context, c Collision) (Resolution, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, c Collision) (Resolution, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, c Collision) (Resolution, error) {
	return f(ctx, c)
}

// Fixed always answers with the same resolution.
func Fixed(r Resolution) Resolver {
	return ResolverFunc(func(context.Context, Collision) (Resolution, error) { return r, nil })
}

// Await asks r about c. A nil resolver, an error, a cancelled context or an
// out-of-range answer all resolve to Discard.
func Await(ctx context.Context, r Resolver, c Collision) Resolution {
	if r == nil {
		return Discard
	}
	res, err := r.Resolve(ctx, c)
	if err != nil || ctx.Err() != nil {
		return Discard
	}
	switch res {
	case Duplicate, Merge:
		return res
	default:
		return Discard
	}
}

// Prompt asks on out and reads one answer line from in. It reads byte by
// byte so that input past the answer stays in In for the next prompt.
//
// A cancelled ctx returns at once, but the pending Read on In only ends when
// In yields data, EOF or an error; callers that cancel should close In.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// Resolve implements Resolver. An empty line or EOF is Discard.
func (p Prompt) Resolve(ctx context.Context, c Collision) (Resolution, error) {
	fmt.Fprintf(p.Out, "Esta carta ya existe. %s\n", c.Describe())
	fmt.Fprint(p.Out, "[m] sumar cantidad  [d] crear duplicado  [Enter] descartar: ")

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := readLine(p.In)
		ch <- answer{strings.TrimSpace(line), err}
	}()

	select {
	case <-ctx.Done():
		return Discard, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return Discard, a.err
		}
		return ParseResolution(a.line), nil
	}
}

// readLine reads up to and including the next '\n'. EOF ends the line.
func readLine(r io.Reader) (string, error) {
	var b strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				return b.String(), nil
			}
			b.WriteByte(buf[0])
		}
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
	}
}
