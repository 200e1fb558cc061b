// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package logsampler

import (
	"encoding/binary"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/onfeat/fetchcore/pkg/fstore"
)

// NatsSink publishes sampled, encoded responses to a single NATS subject,
// one message per LoggableResponse. Modeled on the teacher's singleton
// NATS client wrapper, minus the subscription bookkeeping this write-only
// sink has no use for.
type NatsSink struct {
	conn    *nats.Conn
	subject string
}

func NewNatsSink(conn *nats.Conn, subject string) *NatsSink {
	return &NatsSink{conn: conn, subject: subject}
}

// Emit serializes a LoggableResponse as at-millis followed by the
// length-prefixed join name, key bytes and value bytes (every integer an
// 8-byte big-endian uint64) and publishes it.
// The wire format only needs to round-trip within this codebase, so a
// compact custom framing is used rather than another schema registration.
func (s *NatsSink) Emit(lr fstore.LoggableResponse) error {
	buf := make([]byte, 0, 32+len(lr.JoinName)+len(lr.KeyBytes)+len(lr.ValueBytes))
	buf = appendUint64(buf, uint64(lr.AtMillis))
	buf = appendLenPrefixed(buf, []byte(lr.JoinName))
	buf = appendLenPrefixed(buf, lr.KeyBytes)
	buf = appendLenPrefixed(buf, lr.ValueBytes)

	if err := s.conn.Publish(s.subject, buf); err != nil {
		return fmt.Errorf("logsampler: nats publish to %q failed: %w", s.subject, err)
	}
	return nil
}

func appendUint64(buf []byte, v uint64) []byte {
	tmp := make([]byte, 8)
	binary.BigEndian.PutUint64(tmp, v)
	return append(buf, tmp...)
}

func appendLenPrefixed(buf []byte, data []byte) []byte {
	buf = appendUint64(buf, uint64(len(data)))
	return append(buf, data...)
}
