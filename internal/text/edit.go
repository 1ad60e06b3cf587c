// Package text applies LSP text edits to file contents addressed by
// rune offsets.
package text

import (
	"bytes"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	lsp "github.com/sourcegraph/go-lsp"
)

// ToURI converts filename to a file URI.
func ToURI(filename string) lsp.DocumentURI {
	return lsp.DocumentURI("file://" + filename)
}

// ToPath converts a file URI to a filename.
func ToPath(uri lsp.DocumentURI) string {
	return strings.TrimPrefix(string(uri), "file://")
}

// File is a text file addressed by rune offsets.
type File interface {
	// Reader returns the current content of the file.
	Reader() (io.Reader, error)

	// WriteAt replaces the runes in [q0, q1) with b.
	WriteAt(q0, q1 int, b []byte) (int, error)
}

// BytesFile implements File for an in-memory byte slice.
type BytesFile []byte

func (f *BytesFile) Reader() (io.Reader, error) {
	return bytes.NewReader(*f), nil
}

func (f *BytesFile) WriteAt(q0, q1 int, b []byte) (int, error) {
	r := bytes.Runes(*f)
	if q0 > len(r) || q1 > len(r) || q0 > q1 {
		return 0, errors.Errorf("write range [%v, %v) out of bounds (%v runes)", q0, q1, len(r))
	}
	var out bytes.Buffer
	out.WriteString(string(r[:q0]))
	out.Write(b)
	out.WriteString(string(r[q1:]))
	*f = out.Bytes()
	return len(b), nil
}

// Edit applies edits to f. Edits are applied from the end of the file
// towards the beginning so earlier offsets stay valid, which requires
// the edit ranges to not overlap.
func Edit(f File, edits []lsp.TextEdit) error {
	rd, err := f.Reader()
	if err != nil {
		return err
	}
	off, err := GetNewlineOffsets(rd)
	if err != nil {
		return errors.Wrap(err, "failed to obtain newline offsets")
	}

	sorted := make([]lsp.TextEdit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		a := sorted[i].Range.Start
		b := sorted[j].Range.Start
		if a.Line == b.Line {
			return a.Character > b.Character
		}
		return a.Line > b.Line
	})

	prev := -1
	for _, e := range sorted {
		q0 := off.LineToOffset(e.Range.Start.Line, e.Range.Start.Character)
		q1 := off.LineToOffset(e.Range.End.Line, e.Range.End.Character)
		if prev >= 0 && q1 > prev {
			return errors.Errorf("overlapping edit at offset %v", q1)
		}
		prev = q0
		if _, err := f.WriteAt(q0, q1, []byte(e.NewText)); err != nil {
			return err
		}
	}
	return nil
}
