// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package kvstore

import "strings"

// sanitize mirrors the naming convention's "sanitize" step: non
// alphanumeric/underscore runs collapse to a single underscore.
func sanitize(name string) string {
	var b strings.Builder
	lastWasUnderscore := false
	for _, r := range name {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		if isAlnum {
			b.WriteRune(r)
			lastWasUnderscore = r == '_'
			continue
		}
		if !lastWasUnderscore {
			b.WriteByte('_')
			lastWasUnderscore = true
		}
	}
	return b.String()
}

// BatchDataset returns the batch dataset name for a feature set.
func BatchDataset(name string) string {
	return strings.ToUpper(sanitize(name)) + "_BATCH"
}

// StreamingDataset returns the streaming dataset name for a feature set.
func StreamingDataset(name string) string {
	return strings.ToUpper(sanitize(name)) + "_STREAMING"
}
