package ioutils

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/handiism/bandcamp-verificator/internal/model"
)

// Output formats accepted by WriteResults.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

var csvHeader = []string{"no", "code", "http_status", "delay_sec", "elapsed_ms", "response", "success"}

// ResultFile is the JSON document written by WriteJSON.
type ResultFile struct {
	Total   int                        `json:"total"`
	Results []model.VerificationResult `json:"results"`
}

// WriteResults writes results to path in the given format ("csv" or "json").
func WriteResults(path, format string, results []model.VerificationResult) error {
	switch strings.ToLower(format) {
	case FormatCSV:
		return WriteCSV(path, results)
	case FormatJSON:
		return WriteJSON(path, results)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteCSV writes one row per result in attempt order.
//
// Columns: no,code,http_status,delay_sec,elapsed_ms,response,success.
// Structured bodies are flattened to compact JSON. An empty list
// produces a header-only file.
func WriteCSV(path string, results []model.VerificationResult) error {
	if err := EnsureParentDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for i, r := range results {
		row := []string{
			strconv.Itoa(i + 1),
			r.Code,
			strconv.Itoa(r.HTTPStatus),
			strconv.Itoa(r.DelaySec),
			strconv.FormatFloat(r.ElapsedMS, 'f', -1, 64),
			FlattenBody(r.Body),
			strconv.FormatBool(r.Success),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return file.Close()
}

// WriteJSON writes {"total": n, "results": [...]} indented with two spaces.
func WriteJSON(path string, results []model.VerificationResult) error {
	if err := EnsureParentDir(path); err != nil {
		return err
	}
	if results == nil {
		results = []model.VerificationResult{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ResultFile{Total: len(results), Results: results}); err != nil {
		return err
	}

	return os.WriteFile(path, buf.Bytes(), 0644)
}

// ReadJSON parses a file written by WriteJSON.
func ReadJSON(path string) (*ResultFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rf ResultFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse results %s: %w", path, err)
	}
	return &rf, nil
}

// FlattenBody renders a response body as text: strings verbatim,
// nil as "", anything else as compact JSON.
func FlattenBody(body any) string {
	switch b := body.(type) {
	case nil:
		return ""
	case string:
		return b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Sprint(b)
		}
		return string(data)
	}
}
