package storage

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vjranagit/sensorquery/pkg/search"
)

// encoderLevels maps COMPRESSION_LEVEL (1-4) to zstd presets
var encoderLevels = map[int]zstd.EncoderLevel{
	1: zstd.SpeedFastest,
	2: zstd.SpeedDefault,
	3: zstd.SpeedBetterCompression,
	4: zstd.SpeedBestCompression,
}

// DocumentCodec turns measurement documents into zstd-compressed JSON and
// back. Encoder and decoder are shared; EncodeAll and DecodeAll are safe for
// concurrent use.
type DocumentCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewDocumentCodec creates a codec compressing at the given level. Unknown
// levels fall back to the zstd default.
func NewDocumentCodec(level int) (*DocumentCodec, error) {
	encLevel, ok := encoderLevels[level]
	if !ok {
		encLevel = zstd.SpeedDefault
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encLevel),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &DocumentCodec{encoder: encoder, decoder: decoder}, nil
}

// Encode marshals doc and compresses the result
func (c *DocumentCodec) Encode(doc search.Document) ([]byte, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return c.encoder.EncodeAll(payload, make([]byte, 0, len(payload))), nil
}

// Decode reverses Encode
func (c *DocumentCodec) Decode(data []byte) (search.Document, error) {
	var doc search.Document

	payload, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return doc, fmt.Errorf("failed to decompress document: %w", err)
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return doc, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return doc, nil
}

// Close releases the encoder and decoder
func (c *DocumentCodec) Close() {
	c.encoder.Close()
	c.decoder.Close()
}
