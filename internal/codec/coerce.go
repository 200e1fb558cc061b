// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/linkedin/goavro/v2"
)

// coerceToSchema casts every field of keys to the type its Avro schema
// declares: numeric widening, string parsing of numerics, and null for a
// field the caller never supplied. The result holds exactly the schema's
// fields: keys the schema does not declare are dropped. A missing field
// whose type is not nullable still fails encoding, and the encoder then
// reports the original error alongside the retry's.
func coerceToSchema(schema *goavro.Codec, keys map[string]any) (map[string]any, error) {
	fieldTypes, err := schemaFieldTypes(schema)
	if err != nil {
		return nil, err
	}

	coerced := make(map[string]any, len(fieldTypes))
	for name, kind := range fieldTypes {
		value, present := keys[name]
		if !present {
			coerced[name] = nil
			continue
		}
		cast, err := castTo(kind, value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		coerced[name] = cast
	}
	return coerced, nil
}

// schemaFieldTypes extracts a field-name -> avro-type-name map from a
// compiled codec's schema, via its re-exported canonical schema string.
func schemaFieldTypes(schema *goavro.Codec) (map[string]string, error) {
	// goavro does not expose a structured schema walker, so the schema's
	// field/type pairs are parsed out of its canonical JSON form.
	var doc struct {
		Fields []struct {
			Name string `json:"name"`
			Type any    `json:"type"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(schema.Schema()), &doc); err != nil {
		return nil, fmt.Errorf("parsing schema for coercion: %w", err)
	}

	out := make(map[string]string, len(doc.Fields))
	for _, f := range doc.Fields {
		out[f.Name] = primaryType(f.Type)
	}
	return out, nil
}

// primaryType reduces an Avro type (which may be a union like
// ["null","long"]) to the first non-null branch.
func primaryType(t any) string {
	switch v := t.(type) {
	case string:
		return v
	case []any:
		for _, branch := range v {
			if s, ok := branch.(string); ok && s != "null" {
				return s
			}
		}
	}
	return "string"
}

func castTo(kind string, value any) (any, error) {
	switch kind {
	case "long", "int":
		switch v := value.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			return n, err
		}
	case "float", "double":
		switch v := value.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			return f, err
		}
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			return b, err
		}
	case "string":
		return fmt.Sprintf("%v", value), nil
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to avro type %q", value, value, kind)
}
