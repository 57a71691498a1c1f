package sqlparse

import (
	"fmt"
	"sync"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	_ "github.com/pingcap/tidb/parser/test_driver"
)

type Kind string

const (
	KindSelect  Kind = "select"
	KindUnion   Kind = "union"
	KindShow    Kind = "show"
	KindExplain Kind = "explain"
	KindInsert  Kind = "insert"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindDDL     Kind = "ddl"
	KindDCL     Kind = "dcl"
	KindOther   Kind = "other"
)

// ReadOnly reports whether statements of this kind cannot change data or
// privileges.
func (k Kind) ReadOnly() bool {
	switch k {
	case KindSelect, KindUnion, KindShow, KindExplain:
		return true
	default:
		return false
	}
}

// Classifier parses SQL with the TiDB (MySQL dialect) parser. The underlying
// parser keeps state between calls, so access is serialized.
type Classifier struct {
	mu sync.Mutex
	p  *parser.Parser
}

func NewClassifier() *Classifier {
	return &Classifier{p: parser.New()}
}

// Classify returns one Kind per statement in sql. Statements the parser
// cannot handle (vendor syntax included) produce an error.
func (c *Classifier) Classify(sql string) ([]Kind, error) {
	c.mu.Lock()
	stmts, _, err := c.p.Parse(sql, "", "")
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("parse sql: %w", err)
	}
	if len(stmts) == 0 {
		return nil, fmt.Errorf("no statements found")
	}

	kinds := make([]Kind, 0, len(stmts))
	for _, stmt := range stmts {
		kinds = append(kinds, kindOf(stmt))
	}
	return kinds, nil
}

func kindOf(stmt ast.StmtNode) Kind {
	switch typed := stmt.(type) {
	case *ast.SelectStmt:
		return KindSelect
	case *ast.SetOprStmt:
		return KindUnion
	case *ast.ShowStmt:
		return KindShow
	case *ast.ExplainStmt:
		return explainKind(typed)
	case *ast.InsertStmt:
		return KindInsert
	case *ast.UpdateStmt:
		return KindUpdate
	case *ast.DeleteStmt:
		return KindDelete
	case *ast.GrantStmt, *ast.RevokeStmt:
		return KindDCL
	case ast.DDLNode:
		return KindDDL
	default:
		return KindOther
	}
}

// explainKind takes the kind of the explained statement when that statement
// can write, since EXPLAIN ANALYZE executes it. DESCRIBE parses as an
// explained SHOW.
func explainKind(stmt *ast.ExplainStmt) Kind {
	if stmt.Stmt == nil {
		return KindExplain
	}
	if inner := kindOf(stmt.Stmt); !inner.ReadOnly() {
		return inner
	}
	return KindExplain
}
