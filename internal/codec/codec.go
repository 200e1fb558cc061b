// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec provides the closed variant of codecs a ServingInfo binds
// to: key, streaming value, mutation value, IR and output. Each is
// deterministic, stateless and dispatched through the Registry rather than
// through inheritance.
package codec

import (
	"fmt"

	"github.com/onfeat/fetchcore/pkg/fstore"
)

// KeyCodec encodes a request's key map into the dataset's binary key form.
type KeyCodec interface {
	Encode(keys map[string]any) ([]byte, error)
}

// RowCodec decodes one stored value (bytes plus its storage timestamp)
// into a typed StreamingRow.
type RowCodec interface {
	Decode(value fstore.TimedValue) (fstore.StreamingRow, error)
}

// IRCodec decodes a batch blob into the two-field (collapsed, tailHops)
// record described in §4.2.
type IRCodec interface {
	Decode(bytes []byte) (fstore.BatchIR, error)
}

// MapCodec decodes a blob directly into a {name: value} map, used both
// for the no-agg raw-selection path and the snapshot output path. It is
// also the unified value codec the logging sampler encodes a merged join
// response through.
type MapCodec interface {
	DecodeMap(bytes []byte) (map[string]any, error)
	EncodeMap(values map[string]any) ([]byte, error)
}

// Set is the bundle of codecs a single ServingInfo resolves to.
type Set struct {
	Key           KeyCodec
	StreamingRow  RowCodec
	MutationRow   RowCodec // only populated for DataModelEntities sources
	IR            IRCodec
	Output        MapCodec
	OutputColumns []string
}

// Registry builds codec Sets from the schema strings carried on a
// ServingInfo, caching compiled Avro codecs by schema string since
// goavro.NewCodec is not free to construct.
type Registry struct {
	avro *avroCompiler
}

func NewRegistry() *Registry {
	return &Registry{avro: newAvroCompiler()}
}

// Build compiles the codec Set for a ServingInfo. A codec whose schema
// string is empty is not compiled and is left nil in the Set.
func (r *Registry) Build(si fstore.ServingInfo) (Set, error) {
	var err error
	var keyCodec KeyCodec
	if si.KeySchema != "" {
		keyCodec, err = r.avro.keyCodec(si.KeySchema)
		if err != nil {
			return Set{}, fmt.Errorf("codec: key schema for %q: %w", si.Name, err)
		}
	}

	var streamingCodec RowCodec
	if si.StreamingSchema != "" {
		streamingCodec, err = r.avro.rowCodec(si.StreamingSchema, false)
		if err != nil {
			return Set{}, fmt.Errorf("codec: streaming schema for %q: %w", si.Name, err)
		}
	}

	var mutationCodec RowCodec
	if si.Config.DataModel == fstore.DataModelEntities && si.MutationSchema != "" {
		mutationCodec, err = r.avro.rowCodec(si.MutationSchema, true)
		if err != nil {
			return Set{}, fmt.Errorf("codec: mutation schema for %q: %w", si.Name, err)
		}
	}

	var irCodec IRCodec
	if si.IRSchema != "" {
		irCodec, err = r.avro.irCodec(si.IRSchema)
		if err != nil {
			return Set{}, fmt.Errorf("codec: ir schema for %q: %w", si.Name, err)
		}
	}

	var outputCodec MapCodec
	if si.OutputSchema != "" {
		outputCodec, err = r.avro.mapCodec(si.OutputSchema)
		if err != nil {
			return Set{}, fmt.Errorf("codec: output schema for %q: %w", si.Name, err)
		}
	}

	return Set{
		Key:           keyCodec,
		StreamingRow:  streamingCodec,
		MutationRow:   mutationCodec,
		IR:            irCodec,
		Output:        outputCodec,
		OutputColumns: si.OutputColumns,
	}, nil
}
