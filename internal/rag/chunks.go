package rag

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// Chunk is one row of a document's chunks.parquet file.
type Chunk struct {
	DocumentID string    `parquet:"document_id"`
	ChunkIndex int32     `parquet:"chunk_index"`
	Content    string    `parquet:"content"`
	Embedding  []float32 `parquet:"embedding,list"`
}

func EncodeChunks(chunks []Chunk) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunks are required")
	}
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Chunk](buf)
	if _, err := writer.Write(chunks); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeChunks(data []byte) ([]Chunk, error) {
	reader := parquet.NewGenericReader[Chunk](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	chunks := make([]Chunk, reader.NumRows())
	n, err := reader.Read(chunks)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	return chunks[:n], nil
}
