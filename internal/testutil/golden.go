package testutil

import (
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var update = flag.Bool("update", false, "update golden files")

var (
	uuidPattern      = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})?`)
)

// Golden compares rendered text against files under a testdata directory.
// Run tests with -update to rewrite them.
type Golden struct {
	t       *testing.T
	baseDir string
}

// NewGolden creates a golden file helper rooted at baseDir.
func NewGolden(t *testing.T, baseDir string) *Golden {
	return &Golden{t: t, baseDir: baseDir}
}

// AssertString compares actual against name.golden after normalizing both.
func (g *Golden) AssertString(name, actual string) {
	g.t.Helper()
	path := filepath.Join(g.baseDir, name+".golden")
	actual = Normalize(actual)

	if *update {
		if err := os.MkdirAll(g.baseDir, 0o755); err != nil {
			g.t.Fatalf("creating golden directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(actual+"\n"), 0o644); err != nil {
			g.t.Fatalf("writing golden file: %v", err)
		}
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		g.t.Fatalf("reading golden file %s: %v", path, err)
	}
	if want := Normalize(string(expected)); actual != want {
		g.t.Errorf("output mismatch for %s:\n--- expected ---\n%s\n--- actual ---\n%s", name, want, actual)
	}
}

// Normalize unifies line endings and strips trailing whitespace.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// ScrubUUIDs replaces conversation and message ids.
func ScrubUUIDs(s string) string {
	return uuidPattern.ReplaceAllString(s, "[UUID]")
}

// ScrubTimestamps replaces wall-clock timestamps.
func ScrubTimestamps(s string) string {
	return timestampPattern.ReplaceAllString(s, "[TIMESTAMP]")
}

// Scrub removes every nondeterministic value from rendered output.
func Scrub(s string) string {
	return Normalize(ScrubTimestamps(ScrubUUIDs(s)))
}
