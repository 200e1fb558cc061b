// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package fstore

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/onfeat/fetchcore/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaKind selects which embedded schema a document is checked against.
type SchemaKind int

const (
	GroupByKind SchemaKind = iota + 1
	JoinKind
	ConfigKind
)

//go:embed schemas/*
var schemaFiles embed.FS

func loadSchema(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Path)
}

func init() {
	jsonschema.Loaders["embedFS"] = loadSchema
}

// Validate checks a raw JSON document against the embedded schema for k.
func Validate(k SchemaKind, r io.Reader) error {
	var s *jsonschema.Schema
	var err error

	switch k {
	case GroupByKind:
		s, err = jsonschema.Compile("embedFS://schemas/groupby.schema.json")
	case JoinKind:
		s, err = jsonschema.Compile("embedFS://schemas/join.schema.json")
	case ConfigKind:
		s, err = jsonschema.Compile("embedFS://schemas/config.schema.json")
	default:
		return fmt.Errorf("unknown schema kind")
	}
	if err != nil {
		return err
	}

	var v any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		log.Errorf("fstore.Validate() - failed to decode: %v", err)
		return err
	}

	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%#v", err)
	}
	return nil
}
