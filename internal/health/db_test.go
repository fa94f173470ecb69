package health

import (
	"database/sql"
	"testing"
)

func TestDBChecker_Creation(t *testing.T) {
	db := &sql.DB{}

	checker := NewDBChecker(db)
	if checker == nil {
		t.Fatal("expected checker to be non-nil")
	}

	if checker.db != db {
		t.Error("expected checker db to match provided db")
	}
}
