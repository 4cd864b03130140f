package migrations

import (
	"strings"
	"testing"
)

func TestFilesPerDialect(t *testing.T) {
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		names, err := Files(dialect)
		if err != nil {
			t.Fatalf("Files(%s) error: %v", dialect, err)
		}
		if len(names) == 0 || names[0] != "0001_init.sql" {
			t.Fatalf("Files(%s) = %v", dialect, names)
		}
	}
}

func TestUpSectionStripsDown(t *testing.T) {
	up := UpSection("-- +migrate Up\ncreate table a(x int);\n-- +migrate Down\ndrop table a;\n")
	if strings.Contains(up, "drop table") {
		t.Fatalf("down section leaked into up: %q", up)
	}
	if !strings.Contains(up, "create table a") {
		t.Fatalf("up section missing: %q", up)
	}
}

func TestSchemasDeclareSameTables(t *testing.T) {
	tables := []string{"donation_requests", "processed_transactions", "ledger_cursors", "referral_payouts"}
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		up, err := read(dialect, "0001_init.sql")
		if err != nil {
			t.Fatalf("read %s: %v", dialect, err)
		}
		lower := strings.ToLower(up)
		for _, table := range tables {
			if !strings.Contains(lower, "create table if not exists "+table) {
				t.Fatalf("%s schema missing table %s", dialect, table)
			}
		}
	}
}
