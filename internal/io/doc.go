// Package ioutils provides file system and sanitization utilities.
//
// This package contains functions for:
//   - Parsing raw text into a bounded list of codes
//   - Cleaning cookie values before they reach a Cookie header
//   - Writing verification results as CSV or JSON
//
// # Codes
//
//	codes := ioutils.SanitizeCodes("ABC123\r\n\r\nXYZ789\n", 256)
//	// ["ABC123", "XYZ789"]
//
//	codes, err := ioutils.ReadCodesFile("codes.txt", 256)
//
// # Results
//
//	err := ioutils.WriteResults("out/results.csv", ioutils.FormatCSV, results)
//	err = ioutils.WriteResults("out/results.json", ioutils.FormatJSON, results)
//
//	rf, err := ioutils.ReadJSON("out/results.json")
//	fmt.Println(rf.Total)
package ioutils
