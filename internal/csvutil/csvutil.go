// Package csvutil contains the delimited-text tokenizer shared by both input
// datasets. It reads one logical record at a time, keeping its raw text for
// error reports, and splits it with tolerant quoting so stray inner quotes in
// titles survive. Records whose quoting never closes are still flagged.
package csvutil

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnterminatedQuote is returned by SplitFields when a quoted field is
// still open at the end of the record.
var ErrUnterminatedQuote = errors.New("unterminated quoted field")

// ErrRecordTooLong is returned by ReadLogicalLine when a quoted field stays
// open for more than MaxRecordLines physical lines.
var ErrRecordTooLong = errors.New("quoted field spans too many lines")

// MaxRecordLines bounds how many physical lines one logical record may span.
const MaxRecordLines = 1000

/*
	Design notes:
	- ReadLogicalLine reads a *logical* record that may span multiple
	  physical lines if a quoted field contains a line break.
	- SplitFields accepts inner quotes, doubled quotes ("") and quote
	  closures that appear right before a delimiter (or end).
	- A quote inside a quoted field that is not followed by a delimiter
	  and has no such closing quote later on the same physical line
	  closes the field; the text after it is kept as literal field text.
	  A record only continues onto the next line when its quoted field
	  is still open with no candidate closing quote.
	- Both take the delimiter explicitly; the loader only ever uses a
	  single byte.
*/

// ReadLogicalLine reads one logical record from r. If a quoted field spans
// multiple physical lines, it keeps reading until it observes a plausible
// closing quote. On EOF without a trailing newline the accumulated content is
// returned as the final record. If r is already at EOF, io.EOF is returned.
//
// The second result is the number of physical lines consumed. A record that
// reaches MaxRecordLines while still open is returned with ErrRecordTooLong.
func ReadLogicalLine(r *bufio.Reader, comma byte) (string, int, error) {
	var sb strings.Builder
	inQuotes := false
	atStartOfField := true
	physical := 0

	for {
		part, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", physical, err
		}
		if err == io.EOF && part == "" {
			if physical == 0 {
				return "", 0, io.EOF
			}
			return sb.String(), physical, nil
		}
		physical++
		part = strings.TrimRight(part, "\r\n")

		// Continuing a quoted field across physical lines keeps the break.
		if physical > 1 {
			sb.WriteString("\n")
		}
		sb.WriteString(part)

		for i := 0; i < len(part); i++ {
			ch := part[i]
			switch {
			case ch == comma:
				if !inQuotes {
					atStartOfField = true
				}
			case ch == '"':
				if inQuotes {
					if i+1 < len(part) && part[i+1] == '"' {
						i++
						continue
					}
					if closesField(part, i+1, comma) || !closedLater(part, i+1, comma) {
						inQuotes = false
						atStartOfField = false
					}
				} else if atStartOfField {
					inQuotes = true
					atStartOfField = false
				}
			default:
				if !inQuotes {
					atStartOfField = false
				}
			}
		}

		if !inQuotes || err == io.EOF {
			return sb.String(), physical, nil
		}
		if physical >= MaxRecordLines {
			return sb.String(), physical, ErrRecordTooLong
		}
	}
}

// SplitFields splits a single logical record into fields:
//   - Inner quotes inside unquoted fields are kept as literals.
//   - Doubled quotes ("") inside quoted fields are an escaped quote.
//   - A quote closes a quoted field when followed by the delimiter or the
//     end of the record (trailing blanks allowed). It is kept as a literal
//     when a later quote on the same line closes the field; otherwise it
//     closes the field and the text after it is literal.
//   - Delimiters inside quoted fields are preserved.
//
// A quoted field that is never closed yields ErrUnterminatedQuote.
func SplitFields(line string, comma byte) ([]string, error) {
	var fields []string
	var sb strings.Builder
	inQuotes := false
	atStartOfField := true

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == comma:
			if inQuotes {
				sb.WriteByte(ch)
				continue
			}
			fields = append(fields, sb.String())
			sb.Reset()
			atStartOfField = true
		case ch == '"':
			if !inQuotes {
				if atStartOfField {
					inQuotes = true
					atStartOfField = false
				} else {
					sb.WriteByte('"')
				}
				continue
			}
			if i+1 < len(line) && line[i+1] == '"' {
				sb.WriteByte('"')
				i++
				continue
			}
			if closesField(line, i+1, comma) || !closedLater(line, i+1, comma) {
				inQuotes = false
				continue
			}
			sb.WriteByte('"')
		default:
			sb.WriteByte(ch)
			if !inQuotes {
				atStartOfField = false
			}
		}
	}
	if inQuotes {
		return nil, ErrUnterminatedQuote
	}
	fields = append(fields, sb.String())
	return fields, nil
}

// closesField reports whether position j, after skipping blanks, is the end
// of s or a delimiter.
func closesField(s string, j int, comma byte) bool {
	for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
		j++
	}
	return j >= len(s) || s[j] == comma
}

// closedLater reports whether a quote at or after j, before the next line
// break, closes a quoted field. Doubled quotes are skipped.
func closedLater(s string, j int, comma byte) bool {
	for ; j < len(s) && s[j] != '\n'; j++ {
		if s[j] != '"' {
			continue
		}
		if j+1 < len(s) && s[j+1] == '"' {
			j++
			continue
		}
		if closesField(s, j+1, comma) {
			return true
		}
	}
	return false
}
