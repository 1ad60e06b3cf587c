package text

import (
	"bufio"
	"io"
	"unicode/utf8"
)

// LSP positions count UTF-16 code units but we count runes, so offsets
// computed here may be off within lines containing astral-plane runes.

// NLOffsets stores the rune offsets of newlines in a file.
type NLOffsets struct {
	nl       []int // rune offsets of '\n'
	leftover int   // runes leftover after last '\n'
}

// GetNewlineOffsets reads r to the end and records the offsets of its
// newlines.
func GetNewlineOffsets(r io.Reader) (*NLOffsets, error) {
	br := bufio.NewReader(r)
	o := 0
	nl := []int{0}
	leftover := 0
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if err == io.EOF {
			leftover = utf8.RuneCountInString(line)
			break
		}
		o += utf8.RuneCountInString(line)
		nl = append(nl, o)
	}
	return &NLOffsets{
		nl:       nl,
		leftover: leftover,
	}, nil
}

// LineToOffset returns the rune offset within the file given the
// line number and rune offset within the line.
func (off *NLOffsets) LineToOffset(line, col int) int {
	eof := off.nl[len(off.nl)-1] + off.leftover
	if line >= len(off.nl) {
		// beyond EOF, so just return the highest offset
		return eof
	}
	o := off.nl[line] + col
	if o > eof {
		o = eof
	}
	return o
}

// OffsetToLine returns the line number and rune offset within the line
// given rune offset within the file.
func (off *NLOffsets) OffsetToLine(offset int) (line, col int) {
	for i, o := range off.nl {
		if o > offset {
			return i - 1, offset - off.nl[i-1]
		}
	}
	if i := len(off.nl) - 1; offset >= off.nl[i] {
		return i, offset - off.nl[i]
	}
	panic("unreachable")
}
