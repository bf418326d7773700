package ioutils

import (
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/bandcamp-verificator/internal/model"
)

func TestSanitizeCodes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		max  int
		want []string
	}{
		{"blank line dropped", "ABC123\n\nXYZ789\n", 256, []string{"ABC123", "XYZ789"}},
		{"crlf and cr", "A1\r\nB2\rC3", 256, []string{"A1", "B2", "C3"}},
		{"surrounding space", "   A1  \n\t B2\t", 256, []string{"A1", "B2"}},
		{"whitespace only", " \n\t\n", 256, nil},
		{"truncate then trim", "ABC DEF", 4, []string{"ABC"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeCodes(tt.raw, tt.max))
		})
	}
}

func TestSanitizeCodes_TruncatesLongCode(t *testing.T) {
	codes := SanitizeCodes(strings.Repeat("x", 300), 256)
	require.Len(t, codes, 1)
	if got := len(codes[0]); got != 256 {
		t.Errorf("got length %d, want 256", got)
	}
}

func TestSanitizeCodes_Idempotent(t *testing.T) {
	inputs := []string{
		"ABC123\n\nXYZ789\n",
		"  a  \r\n b \r c ",
		strings.Repeat("y", 10) + " " + strings.Repeat("z", 10),
		"ü-ß-ø\n\n  ",
	}

	for _, raw := range inputs {
		once := SanitizeCodes(raw, 12)
		twice := SanitizeCodes(strings.Join(once, "\n"), 12)
		assert.Equal(t, once, twice, "input %q", raw)
	}
}

func TestSanitizeCookieValue(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"  abc  ", 10, "abc"},
		{"a;b,c\r\nd", 10, "abcd"},
		{"abcdef", 3, "abc"},
		{"x\x00y\x7f", 10, "xy"},
		{"abé", 3, "ab"},
		{"éé", 3, "é"},
	}

	for _, tt := range tests {
		got := SanitizeCookieValue(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("SanitizeCookieValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("SanitizeCookieValue(%q) = %q is not valid UTF-8", tt.in, got)
		}
	}
}

func TestReadCodesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codes.txt")
	require.NoError(t, os.WriteFile(path, []byte("ONE\r\n\r\nTWO\n"), 0644))

	codes, err := ReadCodesFile(path, 256)
	require.NoError(t, err)
	assert.Equal(t, []string{"ONE", "TWO"}, codes)

	_, err = ReadCodesFile(filepath.Join(dir, "missing.txt"), 256)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func sampleResults() []model.VerificationResult {
	return []model.VerificationResult{
		{Code: "GOOD", HTTPStatus: 200, Success: true, ElapsedMS: 1234.5, DelaySec: 1, Body: map[string]any{}},
		{Code: "USED", HTTPStatus: 200, ElapsedMS: 800, DelaySec: 2,
			Body:  map[string]any{"errors": []any{map[string]any{"reason": "already redeemed"}}},
			Error: "already redeemed"},
		{Code: "DOWN", HTTPStatus: 502, Body: "<html>bad gateway</html>", Error: "HTTP 502"},
		{Code: "LOST", Error: "Request timeout after 25s"},
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	require.NoError(t, WriteCSV(path, sampleResults()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"1", "GOOD", "200", "1", "1234.5", "{}", "true"}, rows[1])
	assert.Equal(t, `{"errors":[{"reason":"already redeemed"}]}`, rows[2][5])
	assert.Equal(t, "<html>bad gateway</html>", rows[3][5])
	assert.Equal(t, []string{"4", "LOST", "0", "0", "0", "", "false"}, rows[4])
}

func TestWriteCSV_EmptyWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, WriteCSV(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(csvHeader, ",")+"\n", string(data))
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	results := sampleResults()
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, WriteJSON(path, results))

	rf, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, len(results), rf.Total)
	require.Len(t, rf.Results, len(results))
	for i := range results {
		assert.Equal(t, results[i].Code, rf.Results[i].Code)
		assert.Equal(t, results[i].Success, rf.Results[i].Success)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"total\": 4,")
	assert.Contains(t, string(data), "<html>bad gateway</html>")
}

func TestWriteJSON_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, WriteJSON(path, nil))

	rf, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, 0, rf.Total)
	assert.NotNil(t, rf.Results)
}

func TestWriteResults_UnknownFormat(t *testing.T) {
	err := WriteResults(filepath.Join(t.TempDir(), "r.xml"), "xml", nil)
	assert.Error(t, err)
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		ms   float64
		want string
	}{
		{523, "523ms"},
		{999.9, "999ms"},
		{1000, "1.00s"},
		{1234, "1.23s"},
	}
	for _, tt := range tests {
		if got := FormatElapsed(tt.ms); got != tt.want {
			t.Errorf("FormatElapsed(%v) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}
