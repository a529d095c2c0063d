package core

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	BinarySampleSize   = 8192 // Bytes to sample for text/binary detection
	BinaryThresholdPct = 10   // Max % non-printable chars for text values
)

// DetectTextType determines if a value is likely text or binary.
// Returns true if the value appears to be text.
//
// Detection heuristic (in order):
//  1. Null bytes present → binary
//  2. Invalid UTF-8 → binary
//  3. >10% non-printable control chars → binary
func DetectTextType(data []byte) bool {
	if len(data) == 0 {
		return true
	}

	if bytes.IndexByte(data, 0) != -1 {
		return false
	}

	sampleSize := BinarySampleSize
	if len(data) < sampleSize {
		sampleSize = len(data)
	}
	sample := data[:sampleSize]

	if !utf8.Valid(sample) {
		return false
	}

	nonPrintable := 0
	for _, b := range sample {
		// Allow common whitespace: space, tab, newline, carriage return
		if b < 32 && b != 9 && b != 10 && b != 13 {
			nonPrintable++
		}
		if b == 127 { // DEL character
			nonPrintable++
		}
	}

	threshold := len(sample) * BinaryThresholdPct / 100
	return nonPrintable <= threshold
}

// SameContent checks if two values are identical (based on SHA-256 hash)
func SameContent(a, b []byte) bool {
	ha := sha256.Sum256(a)
	hb := sha256.Sum256(b)
	return bytes.Equal(ha[:], hb[:])
}

// GenerateUnifiedDiff generates a unified diff using go-diff library.
// Returns the diff output, or empty string if values are identical.
func GenerateUnifiedDiff(name string, vaultData, localData []byte) (string, error) {
	if SameContent(vaultData, localData) {
		return "", nil
	}

	if !DetectTextType(vaultData) || !DetectTextType(localData) {
		return fmt.Sprintf("Binary value %s has changed\n", name), nil
	}

	dmp := diffmatchpatch.New()

	// Line-mode diff for better output
	vaultStr, localStr := string(vaultData), string(localData)
	a, b, lineArray := dmp.DiffLinesToChars(vaultStr, localStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	patches := dmp.PatchMake(vaultStr, diffs)
	if len(patches) == 0 {
		return "", nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("--- vault/%s\n", name))
	result.WriteString(fmt.Sprintf("+++ local/%s\n", name))
	result.WriteString(dmp.PatchToText(patches))

	return result.String(), nil
}
