package perf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/reviewflow/internal/scanner"
)

func newTestScanner(t *testing.T, files map[string]string) *scanner.Scanner {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	sc, err := scanner.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

const cFixture = `#include <stdlib.h>

static int helper(int x) {
    return x * 2;
}

int process(int *data, int n) {
    int total = 0;
    for (int i = 0; i < n; i++) {
        while (total < 100) {
            total += helper(data[i]);
        }
    }
    return total;
}

int walk(int n) {
    if (n <= 0) {
        return 0;
    }
    return walk(n - 1) + 1;
}
`

func unitByName(t *testing.T, units []CodeUnit, name string) CodeUnit {
	t.Helper()
	for _, u := range units {
		if u.Name == name {
			return u
		}
	}
	t.Fatalf("no unit named %q in %+v", name, units)
	return CodeUnit{}
}

func TestExtract_C(t *testing.T) {
	sc := newTestScanner(t, map[string]string{"main.c": cFixture})
	units, err := (&Extractor{Scanner: sc}).Extract("c")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(units) != 3 {
		t.Fatalf("got %d units, want 3: %+v", len(units), units)
	}

	helper := unitByName(t, units, "helper")
	if helper.StartLine != 3 || helper.EndLine != 5 || helper.Loops != 0 || helper.Recursive {
		t.Errorf("helper = %+v", helper)
	}
	if len(helper.Params) != 1 || helper.Params[0] != "int x" {
		t.Errorf("helper params = %v", helper.Params)
	}

	process := unitByName(t, units, "process")
	if process.StartLine != 7 || process.Loops != 2 || process.Calls != 1 || process.Recursive {
		t.Errorf("process = %+v", process)
	}
	if len(process.Params) != 2 || process.Params[0] != "int *data" {
		t.Errorf("process params = %v", process.Params)
	}

	walk := unitByName(t, units, "walk")
	if walk.StartLine != 17 || !walk.Recursive {
		t.Errorf("walk = %+v", walk)
	}

	// Control statements never match as functions.
	for _, u := range units {
		if u.Name == "if" || u.Name == "while" || u.Name == "for" {
			t.Errorf("control keyword extracted as a function: %+v", u)
		}
	}
}

func TestExtract_Go(t *testing.T) {
	src := `package demo

func Sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

func (s *server) handle(line string) {
	for i := 0; i < 3; i++ {
		s.write(line)
	}
}
`
	sc := newTestScanner(t, map[string]string{"demo.go": src})
	units, err := (&Extractor{Scanner: sc}).Extract("go")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2: %+v", len(units), units)
	}

	sum := unitByName(t, units, "Sum")
	if sum.Loops != 1 || sum.Calls != 0 {
		t.Errorf("Sum = %+v", sum)
	}

	handle := unitByName(t, units, "handle")
	if handle.Loops != 1 || handle.Calls != 1 {
		t.Errorf("handle = %+v", handle)
	}
}

func TestExtract_Python(t *testing.T) {
	src := `def outer(n):
    total = 0
    for i in range(n):
        total += i
    return total

def empty():
    pass
`
	sc := newTestScanner(t, map[string]string{"demo.py": src})
	units, err := (&Extractor{Scanner: sc}).Extract("python")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2: %+v", len(units), units)
	}

	outer := unitByName(t, units, "outer")
	// range is an iteration keyword, not a callee.
	if outer.Loops != 1 || outer.Calls != 0 || outer.StartLine != 1 {
		t.Errorf("outer = %+v", outer)
	}
	empty := unitByName(t, units, "empty")
	if strings.TrimSpace(empty.Snippet) != "pass" {
		t.Errorf("empty snippet = %q", empty.Snippet)
	}
}

func TestExtract_LanguageFilter(t *testing.T) {
	sc := newTestScanner(t, map[string]string{
		"a.c":  "int one(void) { return 1; }\n",
		"b.py": "def two():\n    return 2\n",
	})
	units, err := (&Extractor{Scanner: sc}).Extract("python")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, u := range units {
		if u.Language != "python" {
			t.Errorf("filter leaked %+v", u)
		}
	}
	if len(units) != 1 || units[0].Name != "two" {
		t.Errorf("units = %+v", units)
	}
}

func TestExtract_MaxFiles(t *testing.T) {
	sc := newTestScanner(t, map[string]string{
		"a.c": "int one(void) { return 1; }\n",
		"b.c": "int two(void) { return 2; }\n",
	})
	units, err := (&Extractor{Scanner: sc, MaxFiles: 1}).Extract("c")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// Inventory is path-sorted, so the cap keeps a.c only.
	if len(units) != 1 || units[0].File != "a.c" {
		t.Errorf("units = %+v", units)
	}
}

func TestExtract_NoUnitsIsTyped(t *testing.T) {
	sc := newTestScanner(t, map[string]string{"decls.c": "int x;\nextern int y;\n"})
	_, err := (&Extractor{Scanner: sc}).Extract("c")

	var xerr *ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("error type %T, want *ExtractionError", err)
	}
	if !strings.Contains(xerr.Error(), `"c"`) {
		t.Errorf("error = %v", xerr)
	}
}

func TestExtract_SnippetCapAndVoidParams(t *testing.T) {
	body := strings.Repeat("    x = x + 1;\n", 200)
	sc := newTestScanner(t, map[string]string{"big.c": "int big(void) {\n" + body + "}\n"})

	units, err := (&Extractor{Scanner: sc}).Extract("c")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	big := unitByName(t, units, "big")
	if len(big.Snippet) != 1500 {
		t.Errorf("snippet length = %d, want capped at 1500", len(big.Snippet))
	}
	if big.Params != nil {
		t.Errorf("void params = %v, want nil", big.Params)
	}
}
