package sqlparse

import (
	"sync"
	"testing"
)

func TestClassifyStatementKinds(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		sql  string
		want []Kind
	}{
		{"SELECT 1", []Kind{KindSelect}},
		{"SELECT id, name FROM items WHERE price > 10 ORDER BY price DESC LIMIT 3", []Kind{KindSelect}},
		{"WITH t AS (SELECT 1 AS x) SELECT x FROM t", []Kind{KindSelect}},
		{"SELECT 1 UNION SELECT 2", []Kind{KindUnion}},
		{"SHOW TABLES", []Kind{KindShow}},
		{"EXPLAIN SELECT 1", []Kind{KindExplain}},
		{"DESCRIBE items", []Kind{KindExplain}},
		{"EXPLAIN ANALYZE DELETE FROM t", []Kind{KindDelete}},
		{"INSERT INTO t (a) VALUES (1)", []Kind{KindInsert}},
		{"UPDATE t SET a = 1", []Kind{KindUpdate}},
		{"DELETE FROM t", []Kind{KindDelete}},
		{"DROP TABLE users", []Kind{KindDDL}},
		{"CREATE TABLE t (id INT)", []Kind{KindDDL}},
		{"TRUNCATE TABLE t", []Kind{KindDDL}},
		{"SELECT * FROM t; DROP TABLE x", []Kind{KindSelect, KindDDL}},
	}
	for _, tt := range tests {
		got, err := c.Classify(tt.sql)
		if err != nil {
			t.Fatalf("Classify(%q) error = %v", tt.sql, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("Classify(%q) = %v, want %v", tt.sql, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("Classify(%q) = %v, want %v", tt.sql, got, tt.want)
			}
		}
	}
}

func TestClassifyRejectsUnparseableSQL(t *testing.T) {
	c := NewClassifier()
	if _, err := c.Classify("SELEC oops FROM"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := c.Classify("   "); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestKindReadOnly(t *testing.T) {
	for _, kind := range []Kind{KindSelect, KindUnion, KindShow, KindExplain} {
		if !kind.ReadOnly() {
			t.Fatalf("%s should be read-only", kind)
		}
	}
	for _, kind := range []Kind{KindInsert, KindUpdate, KindDelete, KindDDL, KindDCL, KindOther} {
		if kind.ReadOnly() {
			t.Fatalf("%s should not be read-only", kind)
		}
	}
}

func TestClassifyIsSafeForConcurrentUse(t *testing.T) {
	c := NewClassifier()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := c.Classify("SELECT COUNT(*) FROM items"); err != nil {
					t.Errorf("Classify() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
