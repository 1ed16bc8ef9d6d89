package service

import (
	"bytes"
	"io"

	"github.com/goccy/go-json"

	"github.com/stats-tracker/internal/domain"
)

// DecodePayload parses a stats payload, rejecting unknown fields, wrong
// types and trailing data with domain.ErrInvalidPayload
func DecodePayload(r io.Reader) (domain.StatsPayload, error) {
	var payload domain.StatsPayload

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return domain.StatsPayload{}, domain.ErrInvalidPayload
	}
	if dec.More() {
		return domain.StatsPayload{}, domain.ErrInvalidPayload
	}
	return payload, nil
}

// DecodePayloadBytes is DecodePayload for an in-memory message
func DecodePayloadBytes(data []byte) (domain.StatsPayload, error) {
	return DecodePayload(bytes.NewReader(data))
}
