package migrations

import "testing"

func TestLoadEmbedded(t *testing.T) {
	all, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(all) == 0 {
		t.Fatal("Load() returned no migrations")
	}

	for _, m := range all {
		if m.UpSQL == "" {
			t.Errorf("migration %s has empty UpSQL", m.Version)
		}
		if m.DownSQL == "" {
			t.Errorf("migration %s has empty DownSQL", m.Version)
		}
	}

	for i := 1; i < len(all); i++ {
		if all[i-1].Version >= all[i].Version {
			t.Errorf("migrations not sorted: %s >= %s", all[i-1].Version, all[i].Version)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	script := "CREATE TABLE a (id INT);\n-- comment\nDROP TABLE b;\n"
	stmts := splitStatements(script)
	if len(stmts) != 2 {
		t.Fatalf("splitStatements() returned %d statements, want 2", len(stmts))
	}
}
