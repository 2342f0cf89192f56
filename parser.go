// parser.go: line parser for watched input files
//
// File format: UTF-8 text, one value per line. Blank lines and lines
// starting with '#' are skipped; the first line that parses wins.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
)

// CommentPrefix marks a line that is never parsed
const CommentPrefix = "#"

// maxLineLength bounds a single input line
const maxLineLength = 1 << 20

// Scalar is the set of value types a Reader can produce
type Scalar interface {
	int | int64 | float32 | float64 | string
}

// ParseLine parses one input line as T.
//
// Numbers are read from the first whitespace separated token, so "7 # speed"
// yields 7. Strings take the whole trimmed line. Non-finite floats are rejected.
func ParseLine[T Scalar](line string) (T, bool) {
	var value T

	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, CommentPrefix) {
		return value, false
	}
	token := strings.Fields(line)[0]

	switch p := any(&value).(type) {
	case *int:
		n, err := strconv.Atoi(token)
		if err != nil {
			return value, false
		}
		*p = n
	case *int64:
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return value, false
		}
		*p = n
	case *float32:
		f, err := strconv.ParseFloat(token, 32)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return value, false
		}
		*p = float32(f)
	case *float64:
		f, err := strconv.ParseFloat(token, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return value, false
		}
		*p = f
	case *string:
		*p = line
	}
	return value, true
}

// ParseFirst scans r top to bottom and returns the first line that parses
// as T. Lines after the match are not read.
func ParseFirst[T Scalar](r io.Reader) (T, bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if value, ok := ParseLine[T](line); ok {
			return value, true
		}
	}

	var zero T
	return zero, false
}
