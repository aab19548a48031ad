package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"stagingloader/internal/domain"
)

// writeFile creates a file under the test's temp dir and returns its path.
func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestOpen_MissingAndDirectory(t *testing.T) {
	t.Parallel()

	var fe *domain.FileError
	if _, err := OpenRatings(filepath.Join(t.TempDir(), "nope.csv"), Options{}); !errors.As(err, &fe) {
		t.Fatalf("missing file: want *FileError, got %v", err)
	}
	if _, err := OpenCatalog(t.TempDir(), Options{}, false); !errors.As(err, &fe) {
		t.Fatalf("directory: want *FileError, got %v", err)
	}
}

func TestOpen_UnknownEncoding(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "m.csv", []byte("1,A,Comedy\n"))
	var ce *domain.ConfigError
	if _, err := OpenCatalog(path, Options{Encoding: "klingon-8"}, false); !errors.As(err, &ce) {
		t.Fatalf("want *ConfigError, got %v", err)
	}
}

func TestCatalog_ReadAll(t *testing.T) {
	t.Parallel()

	content := "1,Toy Story (1995),Adventure|Animation\n" +
		"\n" +
		"2,\"American President, The (1995)\",Comedy\r\n" +
		"3,\"Two\nLines\",Drama\n" +
		"4,Last,Horror"
	path := writeFile(t, "movies.csv", []byte(content))

	src, err := OpenCatalog(path, Options{}, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	n, err := src.Len()
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 4 {
		t.Fatalf("Len=%d want 4", n)
	}

	got, err := ReadAll(src)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []domain.CatalogRecord{
		{ID: 1, Title: "Toy Story (1995)", Genres: "Adventure|Animation"},
		{ID: 2, Title: "American President, The (1995)", Genres: "Comedy"},
		{ID: 3, Title: "Two\nLines", Genres: "Drama"},
		{ID: 4, Title: "Last", Genres: "Horror"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestIterator_LineNumbers(t *testing.T) {
	t.Parallel()

	content := "userId,movieId,rating,timestamp\n" +
		"1,10,4.0,964982703\n" +
		"\n" +
		"2,11,3.5,964982703\n"
	path := writeFile(t, "ratings.csv", []byte(content))

	src, err := OpenRatings(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	it, err := src.Iterate()
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	defer it.Close()

	var lines []int
	for it.Next() {
		lines = append(lines, it.Line())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterate err: %v", err)
	}
	if diff := cmp.Diff([]int{2, 4}, lines); diff != "" {
		t.Fatalf("line numbers (-want +got):\n%s", diff)
	}
}

// The catalog reader does not skip a header; a textual id in the first line
// therefore fails with a ParseError on line 1.
func TestCatalog_HeaderNotSkippedByDefault(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "movies.csv", []byte("movieId,title,genres\n1,A,Comedy\n"))

	src, err := OpenCatalog(path, Options{}, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = ReadAll(src)
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want *ParseError, got %v", err)
	}
	if pe.Line != 1 || pe.Raw != "movieId,title,genres" {
		t.Fatalf("ParseError line=%d raw=%q", pe.Line, pe.Raw)
	}

	src, err = OpenCatalog(path, Options{}, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := ReadAll(src)
	if err != nil {
		t.Fatalf("with header skip: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("unexpected records %+v", got)
	}
}

func TestRatings_Malformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		row     string
		wantSub string
	}{
		{"non numeric rating", "1,10,great,0", "invalid rating"},
		{"non numeric id", "1,ten,4.0,0", "invalid entity id"},
		{"too few fields", "1,10,4.0", "expected 4 fields"},
		{"too many fields", "1,10,4.0,0,extra", "expected 4 fields"},
		{"nan rating", "1,10,NaN,0", "not finite"},
		{"unterminated quote", "1,10,\"4.0,0", "unterminated"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			content := "userId,movieId,rating,timestamp\n1,10,4.0,0\n" + tc.row + "\n"
			path := writeFile(t, "ratings.csv", []byte(content))
			src, err := OpenRatings(path, Options{})
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			_, err = ReadAll(src)
			var pe *domain.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("want *ParseError, got %v", err)
			}
			if pe.Line != 3 || pe.Raw != tc.row {
				t.Fatalf("ParseError line=%d raw=%q", pe.Line, pe.Raw)
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestRatings_HeaderOnlyAndEmpty(t *testing.T) {
	t.Parallel()

	for name, content := range map[string]string{
		"header only": "userId,movieId,rating,timestamp\n",
		"empty":       "",
	} {
		path := writeFile(t, "ratings.csv", []byte(content))
		src, err := OpenRatings(path, Options{})
		if err != nil {
			t.Fatalf("%s: open: %v", name, err)
		}
		n, err := src.Len()
		if err != nil || n != 0 {
			t.Fatalf("%s: Len=%d err=%v", name, n, err)
		}
		got, err := ReadAll(src)
		if err != nil || len(got) != 0 {
			t.Fatalf("%s: got %v err=%v", name, got, err)
		}
	}
}

func TestSource_BOMAndEncoding(t *testing.T) {
	t.Parallel()

	bom := append([]byte{0xEF, 0xBB, 0xBF}, []byte("1,Amélie (2001),Comedy\n")...)
	path := writeFile(t, "bom.csv", bom)
	src, err := OpenCatalog(path, Options{}, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := ReadAll(src)
	if err != nil {
		t.Fatalf("bom read: %v", err)
	}
	if got[0].ID != 1 || got[0].Title != "Amélie (2001)" {
		t.Fatalf("bom record %+v", got[0])
	}

	// 0xE9 is "é" in windows-1252.
	latin := []byte("2;Am\xe9lie (2001);Comedy\n")
	path = writeFile(t, "latin.csv", latin)
	src, err = OpenCatalog(path, Options{Comma: ';', Encoding: "windows-1252"}, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err = ReadAll(src)
	if err != nil {
		t.Fatalf("latin read: %v", err)
	}
	if got[0].ID != 2 || got[0].Title != "Amélie (2001)" {
		t.Fatalf("latin record %+v", got[0])
	}
}

func TestCatalog_TextAfterClosingQuote(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "movies.csv", []byte("1,\"Foo\" Bar,Drama\n2,B,Comedy\n3,\"C\",Drama\n"))

	src, err := OpenCatalog(path, Options{}, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if n, err := src.Len(); err != nil || n != 3 {
		t.Fatalf("Len=%d err=%v want 3", n, err)
	}
	got, err := ReadAll(src)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []domain.CatalogRecord{
		{ID: 1, Title: "Foo Bar", Genres: "Drama"},
		{ID: 2, Title: "B", Genres: "Comedy"},
		{ID: 3, Title: "C", Genres: "Drama"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

// An unterminated quote followed by many valid rows fails with a short
// error that names the line the record starts on.
func TestRatings_UnterminatedQuoteErrorIsBounded(t *testing.T) {
	t.Parallel()
	var b strings.Builder
	b.WriteString("userId,movieId,rating,timestamp\n1,\"1,4.0,1\n")
	for i := 0; i < 5000; i++ {
		b.WriteString("1,2,4.0,1\n")
	}
	path := writeFile(t, "ratings.csv", []byte(b.String()))
	src, err := OpenRatings(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, err = ReadAll(src)
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want *ParseError, got %v", err)
	}
	if pe.Line != 2 {
		t.Fatalf("line=%d want 2", pe.Line)
	}
	if pe.Raw != `1,"1,4.0,1...` {
		t.Fatalf("raw=%q", pe.Raw)
	}
	if len(err.Error()) > 2*domain.MaxRawLen {
		t.Fatalf("error message is %d bytes", len(err.Error()))
	}
	if _, err := src.Len(); !errors.As(err, &pe) {
		t.Fatalf("Len: want *ParseError, got %v", err)
	}
}
