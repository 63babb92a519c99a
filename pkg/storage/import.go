package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/vjranagit/sensorquery/pkg/search"
	"go.uber.org/zap"
)

// importBatch bounds the documents written per transaction
const importBatch = 500

// Import reads newline-delimited JSON documents from r and stores them in
// batches. It returns the number of documents stored before any error.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	dec := json.NewDecoder(r)
	batch := make([]search.Document, 0, importBatch)
	stored := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.Put(ctx, batch...); err != nil {
			return err
		}
		stored += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		var doc search.Document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stored, fmt.Errorf("failed to decode document %d: %w", stored+len(batch)+1, err)
		}

		batch = append(batch, doc)
		if len(batch) == importBatch {
			if err := flush(); err != nil {
				return stored, err
			}
		}
	}

	if err := flush(); err != nil {
		return stored, err
	}

	s.logger.Info("import finished",
		zap.Int("documents", stored),
		zap.Int("partitions", s.index.PartitionCount()))
	return stored, nil
}
