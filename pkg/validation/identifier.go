// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for identifiers
// that end up in file names, object prefixes and report labels.
//
// Target and fuzzer identifiers are matched as prefixes of input file names
// and Cloud Storage object names, so they must never contain path
// separators or whitespace.
package validation

import (
	"fmt"
	"regexp"
)

// identifierPattern matches benchmark target and fuzzer identifiers.
// Allows: letters, digits, dots, underscores, hyphens and plus signs
// (aflplusplus_lto, libxml2_xml, php-fuzz-parser, afl++).
// Max length: 128 characters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+\-]{0,127}$`)

// ValidateIdentifier validates a target or fuzzer identifier.
//
// Valid identifiers:
//   - 1-128 characters
//   - Start with a letter or digit
//   - Letters, digits, '.', '_', '-' and '+'
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateIdentifier(target); err != nil {
//	    return fmt.Errorf("invalid target: %w", err)
//	}
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier: %q (must be 1-128 letters, digits, '.', '_', '-' or '+')", id)
	}

	return nil
}

// ValidateIdentifiers validates multiple identifiers.
// Returns an error listing all invalid identifiers if any fail validation.
func ValidateIdentifiers(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %q", invalid)
	}
	return nil
}
