package postgres

import (
	"reflect"
	"testing"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", Database: "orion", User: "keeper", Password: "pw"})
	want := "postgres://keeper:pw@db:5432/orion?sslmode=disable"
	if got != want {
		t.Fatalf("DSN = %s, want %s", got, want)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Fatalf("explicit DSN not preferred: %s", got)
	}
}

func TestListQuery(t *testing.T) {
	since := time.Unix(1_700_000_000, 0)
	q, args := listQuery("SELECT * FROM claims WHERE user_addr = $1", "created_at", "created_at DESC",
		domain.ListOpts{Limit: 10, Offset: 20, Since: &since}, []any{"0xabc"})

	wantQ := "SELECT * FROM claims WHERE user_addr = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4"
	if q != wantQ {
		t.Fatalf("query = %q\nwant    %q", q, wantQ)
	}
	if want := []any{"0xabc", since, 10, 20}; !reflect.DeepEqual(args, want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
}
