// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/fuzzeval/services/fuzzeval/dataset"
)

// ErrUnknownFormat indicates an output format name that is not supported.
var ErrUnknownFormat = errors.New("unknown output format")

// Format names an output format.
type Format string

const (
	// FormatAuto picks text on a terminal and LaTeX otherwise.
	FormatAuto  Format = "auto"
	FormatLaTeX Format = "latex"
	FormatJSON  Format = "json"
	FormatText  Format = "text"
)

// ParseFormat validates a format name. An empty name is FormatAuto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatLaTeX, FormatJSON, FormatText:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Resolve turns FormatAuto into a concrete format for w.
func Resolve(f Format, w io.Writer) Format {
	if f != FormatAuto {
		return f
	}
	if fd, ok := w.(interface{ Fd() uintptr }); ok {
		if isatty.IsTerminal(fd.Fd()) || isatty.IsCygwinTerminal(fd.Fd()) {
			return FormatText
		}
	}
	return FormatLaTeX
}

// Writer writes a Document in one format.
type Writer interface {
	Write(w io.Writer, doc *Document) error
}

// Option configures a Writer.
type Option func(*options)

type options struct {
	na    string
	naSet bool
}

// WithMissing sets the text printed for unset cells. Each format has its
// own default.
func WithMissing(s string) Option {
	return func(o *options) {
		o.na = s
		o.naSet = true
	}
}

// New returns the Writer for f. FormatAuto must be resolved first.
func New(f Format, opts ...Option) (Writer, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	switch f {
	case FormatLaTeX:
		return &LaTeXWriter{Missing: o.missing(`\xmark`)}, nil
	case FormatJSON:
		return &JSONWriter{Indent: "  "}, nil
	case FormatText:
		return &TextWriter{Missing: o.missing("-")}, nil
	case FormatAuto:
		return nil, fmt.Errorf("%w: %q must be resolved against an output", ErrUnknownFormat, f)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func (o options) missing(def string) string {
	if o.naSet {
		return o.na
	}
	return def
}

func formatValue(v dataset.Value, prec int, missing string) string {
	x, ok := v.Get()
	if !ok {
		return missing
	}
	return strconv.FormatFloat(x, 'f', prec, 64)
}

func formatItem(it Item, missing string) string {
	if !it.Value.Set && it.Text != "" {
		return it.Text
	}
	return formatValue(it.Value, it.Precision, missing)
}
