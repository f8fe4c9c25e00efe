package canlog

import (
	"bufio"
	"io"
	"strings"

	"github.com/calsol/fatlog/checkpoint"
)

// Scanner reads one frame per line. Empty lines and lines starting with
// ';' are skipped.
type Scanner struct {
	scanner *bufio.Scanner
	line    int
}

var _ Source = (*Scanner)(nil)

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{scanner: bufio.NewScanner(r)}
}

// Next returns the next frame or io.EOF after the last one. A line which is
// no frame returns ErrFrame; scanning can continue after it.
func (s *Scanner) Next() (Frame, error) {
	for s.scanner.Scan() {
		s.line++
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		return ParseFrame(line)
	}
	if err := s.scanner.Err(); err != nil {
		return Frame{}, checkpoint.From(err)
	}
	return Frame{}, io.EOF
}

// Line returns the number of the line read last.
func (s *Scanner) Line() int {
	return s.line
}
