// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package codec

import (
	"fmt"
	"sync"

	"github.com/linkedin/goavro/v2"

	"github.com/onfeat/fetchcore/pkg/fstore"
)

// avroCompiler caches compiled goavro codecs by schema string: building a
// goavro.Codec parses and validates the full Avro schema, which is too
// costly to redo per request.
type avroCompiler struct {
	mu     sync.Mutex
	codecs map[string]*goavro.Codec
}

func newAvroCompiler() *avroCompiler {
	return &avroCompiler{codecs: map[string]*goavro.Codec{}}
}

func (c *avroCompiler) compile(schema string) (*goavro.Codec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if codec, ok := c.codecs[schema]; ok {
		return codec, nil
	}
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, err
	}
	c.codecs[schema] = codec
	return codec, nil
}

type avroKeyCodec struct {
	codec *goavro.Codec
}

func (c *avroCompiler) keyCodec(schema string) (KeyCodec, error) {
	codec, err := c.compile(schema)
	if err != nil {
		return nil, err
	}
	return &avroKeyCodec{codec: codec}, nil
}

func (c *avroKeyCodec) Encode(keys map[string]any) ([]byte, error) {
	bytes, err := c.codec.BinaryFromNative(nil, keys)
	if err != nil {
		// Type-coercion fallback per §4.2: cast each field to its
		// declared schema type and retry exactly once.
		coerced, coerceErr := coerceToSchema(c.codec, keys)
		if coerceErr != nil {
			return nil, fmt.Errorf("encode keys: %w (coercion also failed: %v)", err, coerceErr)
		}
		retried, retryErr := c.codec.BinaryFromNative(nil, coerced)
		if retryErr != nil {
			return nil, fmt.Errorf("encode keys: %w (after coercion: %v)", err, retryErr)
		}
		return retried, nil
	}
	return bytes, nil
}

type avroRowCodec struct {
	codec      *goavro.Codec
	isMutation bool
}

func (c *avroCompiler) rowCodec(schema string, isMutation bool) (RowCodec, error) {
	codec, err := c.compile(schema)
	if err != nil {
		return nil, err
	}
	return &avroRowCodec{codec: codec, isMutation: isMutation}, nil
}

func (c *avroRowCodec) Decode(value fstore.TimedValue) (fstore.StreamingRow, error) {
	native, _, err := c.codec.NativeFromBinary(value.Bytes)
	if err != nil {
		return fstore.StreamingRow{}, fmt.Errorf("decode row: %w", err)
	}
	fields, ok := native.(map[string]any)
	if !ok {
		return fstore.StreamingRow{}, fmt.Errorf("decode row: unexpected avro native type %T", native)
	}

	row := fstore.StreamingRow{
		Values:     fields,
		Millis:     value.Millis,
		IsMutation: c.isMutation,
	}
	if c.isMutation {
		if before, ok := fields["is_before"].(bool); ok {
			row.IsBefore = before
		}
		if ts, ok := fields["mutation_ts"].(int64); ok {
			row.Millis = ts
		}
	}
	return row, nil
}

type avroIRCodec struct {
	codec *goavro.Codec
}

func (c *avroCompiler) irCodec(schema string) (IRCodec, error) {
	codec, err := c.compile(schema)
	if err != nil {
		return nil, err
	}
	return &avroIRCodec{codec: codec}, nil
}

func (c *avroIRCodec) Decode(bytes []byte) (fstore.BatchIR, error) {
	native, _, err := c.codec.NativeFromBinary(bytes)
	if err != nil {
		return fstore.BatchIR{}, fmt.Errorf("decode ir: %w", err)
	}
	fields, ok := native.(map[string]any)
	if !ok {
		return fstore.BatchIR{}, fmt.Errorf("decode ir: unexpected avro native type %T", native)
	}

	collapsedRaw, _ := fields["collapsed"].([]any)
	tailHopsRaw, _ := fields["tailHops"].([]any)

	tailHops := make([][][]any, len(tailHopsRaw))
	for i, perAgg := range tailHopsRaw {
		hops, _ := perAgg.([]any)
		tailHops[i] = make([][]any, len(hops))
		for j, hop := range hops {
			bucket, _ := hop.([]any)
			tailHops[i][j] = bucket
		}
	}

	return fstore.BatchIR{Collapsed: collapsedRaw, TailHops: tailHops}, nil
}

type avroMapCodec struct {
	codec *goavro.Codec
}

func (c *avroCompiler) mapCodec(schema string) (MapCodec, error) {
	codec, err := c.compile(schema)
	if err != nil {
		return nil, err
	}
	return &avroMapCodec{codec: codec}, nil
}

func (c *avroMapCodec) DecodeMap(bytes []byte) (map[string]any, error) {
	native, _, err := c.codec.NativeFromBinary(bytes)
	if err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	fields, ok := native.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode map: unexpected avro native type %T", native)
	}
	return fields, nil
}

func (c *avroMapCodec) EncodeMap(values map[string]any) ([]byte, error) {
	bytes, err := c.codec.BinaryFromNative(nil, values)
	if err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}
	return bytes, nil
}
