package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/dbanalyst/dbanalyst/internal/storage"
)

// Index answers nearest-chunk searches over chunk parquet files kept in the
// object store. Each search copies the files into a scratch directory and
// ranks rows with DuckDB's list_cosine_similarity.
type Index struct {
	Store storage.ObjectStore
}

func NewIndex(store storage.ObjectStore) *Index {
	return &Index{Store: store}
}

func (i *Index) Search(ctx context.Context, chunkKeys []string, query []float32, k int) ([]string, error) {
	if len(chunkKeys) == 0 || k <= 0 {
		return []string{}, nil
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}
	if i.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}

	workDir, err := os.MkdirTemp("", "dbanalyst-rag-")
	if err != nil {
		return nil, fmt.Errorf("create search temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := make([]string, 0, len(chunkKeys))
	for index, key := range chunkKeys {
		reader, err := i.Store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get object %q: %w", key, err)
		}
		localPath := filepath.Join(workDir, fmt.Sprintf("chunks_%d.parquet", index))
		if err := writeFile(localPath, reader); err != nil {
			_ = reader.Close()
			return nil, fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		if err := reader.Close(); err != nil {
			return nil, fmt.Errorf("close object %q: %w", key, err)
		}
		localPaths = append(localPaths, localPath)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW chunks AS SELECT * FROM read_parquet(%s)`, quoteStringArray(localPaths))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return nil, fmt.Errorf("create chunks view: %w", err)
	}

	// Chunks embedded with a different dimension are skipped rather than
	// failing the cosine call.
	searchSQL := fmt.Sprintf(`SELECT content
FROM chunks
WHERE len(embedding) = %d
ORDER BY list_cosine_similarity(embedding, %s) DESC NULLS LAST, document_id, chunk_index
LIMIT %d`, len(query), vectorLiteral(query), k)

	rows, err := db.QueryContext(ctx, searchSQL)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	contents := make([]string, 0, k)
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		contents = append(contents, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return contents, nil
}

func vectorLiteral(values []float32) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, strconv.FormatFloat(float64(value), 'g', -1, 32))
	}
	return "[" + strings.Join(parts, ",") + "]::FLOAT[]"
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(file, reader); err != nil {
		return err
	}
	return nil
}
