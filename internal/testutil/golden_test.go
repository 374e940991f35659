package testutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iliagerman/mordecai-sub000/internal/testutil"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "CRLF to LF", input: "line1\r\nline2\r\n", want: "line1\nline2"},
		{name: "trailing whitespace", input: "line1   \nline2\t\n", want: "line1\nline2"},
		{name: "empty string", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, testutil.Normalize(tt.input), tt.want)
		})
	}
}

func TestScrub(t *testing.T) {
	in := "Conversation 550e8400-e29b-41d4-a716-446655440000 created 2026-01-15 10:30:45 \r\nended 2026-01-15T11:00:00Z"
	got := testutil.Scrub(in)
	testutil.AssertEqual(t, got, "Conversation [UUID] created [TIMESTAMP]\nended [TIMESTAMP]")
}

func TestScrub_LeavesRoundCountersAlone(t *testing.T) {
	in := "--- Round 2/5 ---"
	testutil.AssertEqual(t, testutil.Scrub(in), in)
}

func TestGolden_AssertString(t *testing.T) {
	dir := t.TempDir()
	testutil.TempFile(t, dir, "sample.golden", "hello\nworld\n")

	g := testutil.NewGolden(t, dir)
	g.AssertString("sample", "hello\r\nworld  \n")
}

func TestTempDir(t *testing.T) {
	dir := testutil.TempDir(t)
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("temp dir missing: %v", err)
	}
}

func TestTempFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.TempFile(t, dir, "a.txt", "content")
	testutil.AssertEqual(t, path, filepath.Join(dir, "a.txt"))
	data, err := os.ReadFile(path)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, string(data), "content")
}
