package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// loadTicks reads a price history file
func loadTicks(path string) ([]decimal.Decimal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ticks file: %w", err)
	}
	defer f.Close()
	return readTicks(f)
}

// readTicks parses prices separated by commas, whitespace or newlines.
// Everything after a '#' on a line is a comment.
func readTicks(r io.Reader) ([]decimal.Decimal, error) {
	var ticks []decimal.Decimal
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		values, err := parseDecimalList(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ticks = append(ticks, values...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ticks: %w", err)
	}
	return ticks, nil
}

func parseDecimalList(s string) ([]decimal.Decimal, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})
	out := make([]decimal.Decimal, 0, len(fields))
	for _, f := range fields {
		v, err := decimal.NewFromString(f)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", f)
		}
		out = append(out, v)
	}
	return out, nil
}
