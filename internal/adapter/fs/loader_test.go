package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rolerag/internal/domain"
	"rolerag/internal/logging"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func collect(t *testing.T, l *Loader, root string) (map[string][]domain.Document, *LoadReport) {
	t.Helper()
	got := make(map[string][]domain.Document)
	report, err := l.Walk(context.Background(), root, func(b DepartmentBatch) error {
		got[b.Department] = append(got[b.Department], b.Documents...)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return got, report
}

func defaultLoader() *Loader {
	return NewLoader([]string{"**/*.md", "**/*.txt", "**/*.csv"}, []string{"**/.*"}, logging.Discard())
}

func TestLoaderWalk_DepartmentsAndFormats(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "finance/q3.md", "Q3 revenue rose 10%.")
	writeFile(t, root, "finance/ledger.csv", "account,amount\nrent,1200\npayroll,56000\n")
	writeFile(t, root, "general/handbook.txt", "Office hours are 9-5.")
	writeFile(t, root, "general/logo.png", "not text")
	writeFile(t, root, "README.md", "top-level files are not in a department")

	got, report := collect(t, defaultLoader(), root)

	if len(got) != 2 {
		t.Fatalf("expected 2 departments, got %d: %v", len(got), got)
	}
	if len(got["finance"]) != 3 {
		t.Fatalf("expected 1 markdown + 2 csv documents, got %d", len(got["finance"]))
	}

	var rows []string
	for _, doc := range got["finance"] {
		if doc.Department != "finance" {
			t.Errorf("expected department finance, got %s", doc.Department)
		}
		if strings.HasSuffix(doc.SourcePath, ".csv") {
			rows = append(rows, doc.Text)
		}
	}
	if len(rows) != 2 || rows[0] != "account: rent\namount: 1200" {
		t.Errorf("unexpected csv rows: %q", rows)
	}

	if got["general"][0].Text != "Office hours are 9-5." {
		t.Errorf("unexpected general text: %q", got["general"][0].Text)
	}
	if report.Documents != 4 || report.Departments != 2 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestLoaderWalk_ParseFailureIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "hr/broken.csv", "name,age\n\"unterminated,30\n")
	writeFile(t, root, "hr/binary.md", string([]byte{0xff, 0xfe, 0xfd}))
	writeFile(t, root, "hr/policy.md", "Leave policy: 20 days.")

	got, report := collect(t, defaultLoader(), root)

	if len(got["hr"]) != 1 || got["hr"][0].Text != "Leave policy: 20 days." {
		t.Fatalf("expected only the valid document, got %+v", got["hr"])
	}
	if len(report.Errors) != 2 {
		t.Fatalf("expected 2 load errors, got %d", len(report.Errors))
	}
	var loadErr *domain.LoadError
	if !errors.As(report.Errors[0], &loadErr) || loadErr.Path == "" {
		t.Errorf("expected LoadError with path, got %v", report.Errors[0])
	}
}

func TestLoaderWalk_EmptyDepartmentSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "marketing/notes.docx", "unsupported")
	writeFile(t, root, "engineering/arch.md", "Services talk over gRPC.")

	called := 0
	report, err := defaultLoader().Walk(context.Background(), root, func(b DepartmentBatch) error {
		called++
		if b.Department != "engineering" {
			t.Errorf("unexpected batch for %s", b.Department)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if called != 1 {
		t.Errorf("expected 1 batch, got %d", called)
	}
	if len(report.EmptyDepartments) != 1 || report.EmptyDepartments[0] != "marketing" {
		t.Errorf("expected marketing reported empty, got %v", report.EmptyDepartments)
	}
}

func TestLoaderWalk_StableDocumentIDs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "finance/q3.md", "Q3 revenue rose 10%.")

	first, _ := collect(t, defaultLoader(), root)
	second, _ := collect(t, defaultLoader(), root)

	if first["finance"][0].ID != second["finance"][0].ID {
		t.Error("document IDs should be stable across walks")
	}
}

func TestLoaderWalk_MissingRoot(t *testing.T) {
	_, err := defaultLoader().Walk(context.Background(), filepath.Join(t.TempDir(), "nope"), func(DepartmentBatch) error { return nil })
	if err == nil {
		t.Error("expected error for missing root")
	}
}

func TestLoaderWalk_HiddenFilesExcluded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "finance/.draft.md", "secret draft")
	writeFile(t, root, "finance/.cache/old.md", "stale")
	writeFile(t, root, "finance/final.md", "final numbers")

	got, _ := collect(t, defaultLoader(), root)
	if len(got["finance"]) != 1 || got["finance"][0].SourcePath != "finance/final.md" {
		t.Errorf("expected only final.md, got %+v", got["finance"])
	}
}
