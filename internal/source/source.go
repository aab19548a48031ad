// Package source implements the forward-only readers over the two delimited
// input files. A Source knows its exact record count (one counting pass,
// cached) and hands out single-pass iterators that decode one logical record
// at a time. The first malformed record ends the read with a
// *domain.ParseError; there is no partial-record recovery.
package source

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"stagingloader/internal/csvutil"
	"stagingloader/internal/domain"
)

const readBufSize = 4 << 20

// Decoder turns the fields of one record into a typed value.
type Decoder[T any] func(fields []string) (T, error)

// Options controls how raw bytes are tokenized.
type Options struct {
	Comma    byte   // field delimiter; 0 means ','
	Encoding string // IANA charset name; "" means UTF-8
}

// Source is a reader over one delimited file. It is safe to call Len and
// Iterate more than once; every Iterate reopens the file.
type Source[T any] struct {
	path   string
	skip   int
	comma  byte
	enc    encoding.Encoding
	decode Decoder[T]

	counted bool
	n       int
}

// Open validates that path is a readable regular file and returns a Source
// that skips the first skip lines before decoding. Path problems are reported
// as *domain.FileError, unknown encodings as *domain.ConfigError.
func Open[T any](path string, skip int, opts Options, decode Decoder[T]) (*Source[T], error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, &domain.FileError{Path: path, Err: err}
	}
	if st.IsDir() {
		return nil, &domain.FileError{Path: path, Err: errors.New("is a directory")}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.FileError{Path: path, Err: err}
	}
	_ = f.Close()

	enc, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	comma := opts.Comma
	if comma == 0 {
		comma = ','
	}
	return &Source[T]{path: path, skip: skip, comma: comma, enc: enc, decode: decode}, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, &domain.ConfigError{Field: "encoding", Reason: "unsupported charset " + name}
	}
	return enc, nil
}

// Path returns the file path backing the source.
func (s *Source[T]) Path() string { return s.path }

// Len returns the number of records after the header skip. Blank lines are
// not records. The count is computed once and cached.
func (s *Source[T]) Len() (int, error) {
	if s.counted {
		return s.n, nil
	}
	sc, err := s.open()
	if err != nil {
		return 0, err
	}
	defer sc.close()

	n := 0
	for {
		raw, _, err := sc.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		if strings.TrimSpace(raw) != "" {
			n++
		}
	}
	s.n, s.counted = n, true
	return n, nil
}

// Iterate opens the file and returns an iterator positioned after the
// header skip. The caller must Close it.
func (s *Source[T]) Iterate() (*Iterator[T], error) {
	sc, err := s.open()
	if err != nil {
		return nil, err
	}
	return &Iterator[T]{src: s, sc: sc}, nil
}

// scanner pairs an open file with a physical line counter.
type scanner struct {
	path  string
	comma byte
	f     *os.File
	r     *bufio.Reader
	line  int // physical lines consumed so far
}

func (s *Source[T]) open() (*scanner, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, &domain.FileError{Path: s.path, Err: err}
	}
	dec := transform.NewReader(f, unicode.BOMOverride(s.enc.NewDecoder()))
	sc := &scanner{path: s.path, comma: s.comma, f: f, r: bufio.NewReaderSize(dec, readBufSize)}
	for i := 0; i < s.skip; i++ {
		if _, _, err := sc.next(); err != nil {
			if err == io.EOF {
				break
			}
			sc.close()
			return nil, err
		}
	}
	return sc, nil
}

// next returns the next logical line and the physical line it starts on.
func (sc *scanner) next() (string, int, error) {
	raw, n, err := csvutil.ReadLogicalLine(sc.r, sc.comma)
	if err == io.EOF {
		return "", 0, io.EOF
	}
	if errors.Is(err, csvutil.ErrRecordTooLong) {
		return "", 0, domain.NewParseError(sc.path, sc.line+1, raw, err)
	}
	if err != nil {
		return "", 0, &domain.FileError{Path: sc.path, Err: err}
	}
	start := sc.line + 1
	sc.line += n
	return raw, start, nil
}

func (sc *scanner) close() { _ = sc.f.Close() }

// Iterator is a forward-only, single-pass cursor over decoded records.
//
//	it, err := src.Iterate()
//	...
//	defer it.Close()
//	for it.Next() {
//		rec := it.Value()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator[T any] struct {
	src  *Source[T]
	sc   *scanner
	cur  T
	line int
	err  error
	done bool
}

// Next advances to the next record. It returns false at end of input or on
// the first error; check Err afterwards.
func (it *Iterator[T]) Next() bool {
	if it.done {
		return false
	}
	for {
		raw, start, err := it.sc.next()
		if err == io.EOF {
			it.done = true
			return false
		}
		if err != nil {
			it.fail(err)
			return false
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		fields, err := csvutil.SplitFields(raw, it.sc.comma)
		if err != nil {
			it.fail(domain.NewParseError(it.src.path, start, raw, err))
			return false
		}
		rec, err := it.src.decode(fields)
		if err != nil {
			it.fail(domain.NewParseError(it.src.path, start, raw, err))
			return false
		}
		it.cur, it.line = rec, start
		return true
	}
}

func (it *Iterator[T]) fail(err error) {
	it.err = err
	it.done = true
}

// Value returns the current record.
func (it *Iterator[T]) Value() T { return it.cur }

// Line returns the physical line number the current record starts on.
func (it *Iterator[T]) Line() int { return it.line }

// Err returns the error that stopped iteration, if any.
func (it *Iterator[T]) Err() error { return it.err }

// Close releases the underlying file.
func (it *Iterator[T]) Close() error { return it.sc.f.Close() }

// ReadAll drains a fresh iterator into a slice sized by Len.
func ReadAll[T any](s *Source[T]) ([]T, error) {
	n, err := s.Len()
	if err != nil {
		return nil, err
	}
	it, err := s.Iterate()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	out := make([]T, 0, n)
	for it.Next() {
		out = append(out, it.Value())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
