package migrations

import (
	"strings"
	"testing"
)

func TestAllReturnsEmbeddedDispatchSchema(t *testing.T) {
	scripts, err := All()
	if err != nil {
		t.Fatal(err)
	}
	if len(scripts) == 0 || scripts[0].Name != "001_dispatch.sql" {
		t.Fatalf("expected 001_dispatch.sql first, got %+v", scripts)
	}
	for _, table := range []string{"profiles", "orders", "order_items", "rider_location_history"} {
		if !strings.Contains(scripts[0].SQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("expected table %s in schema", table)
		}
	}
}
