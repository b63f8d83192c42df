package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestApplyExecutesAllMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("docstore_merge").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("docstore_notify_change").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := Apply(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(".*").WillReturnError(errors.New("boom"))

	err = Apply(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "0001_documents.up.sql") {
		t.Fatalf("expected error naming the failed file, got %v", err)
	}
}

func TestSchemaOrdersFiles(t *testing.T) {
	schema, err := Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	first := strings.Index(schema, "0001_documents")
	last := strings.Index(schema, "0003_change_notify")
	if first < 0 || last < 0 || first > last {
		t.Fatalf("unexpected schema order")
	}
	if strings.Contains(schema, "DROP TABLE") {
		t.Fatalf("schema must not include down migrations")
	}
}
