package fs

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"rolerag/internal/domain"
)

var errUnsupported = errors.New("unsupported file type")

// Loader reads a corpus laid out as root/<department>/<file>.
type Loader struct {
	includes []string
	excludes []string
	logger   *slog.Logger
}

func NewLoader(includes, excludes []string, logger *slog.Logger) *Loader {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Loader{
		includes: includes,
		excludes: excludes,
		logger:   logger,
	}
}

// DepartmentBatch holds every document parsed from one department directory.
type DepartmentBatch struct {
	Department string
	Documents  []domain.Document
}

// LoadReport summarizes a corpus walk.
type LoadReport struct {
	Departments      int
	Files            int
	Documents        int
	Skipped          int
	EmptyDepartments []string
	Errors           []*domain.LoadError
}

// Walk parses the corpus one department at a time and hands each non-empty
// batch to fn. Unparseable files are logged and skipped; only an unreadable
// root or an error from fn stops the walk.
func (l *Loader) Walk(ctx context.Context, root string, fn func(DepartmentBatch) error) (*LoadReport, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus root: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	report := &LoadReport{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		department := entry.Name()
		docs := l.loadDepartment(root, department, report)
		if len(docs) == 0 {
			l.logger.Warn("no documents for department, skipping", "department", department)
			report.EmptyDepartments = append(report.EmptyDepartments, department)
			continue
		}

		report.Departments++
		report.Documents += len(docs)
		if err := fn(DepartmentBatch{Department: department, Documents: docs}); err != nil {
			return report, err
		}
	}

	return report, nil
}

func (l *Loader) loadDepartment(root, department string, report *LoadReport) []domain.Document {
	deptDir := filepath.Join(root, department)
	var docs []domain.Document

	err := filepath.WalkDir(deptDir, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			l.recordError(report, path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, relErr := filepath.Rel(deptDir, path)
		if relErr != nil {
			return relErr
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path != deptDir && (strings.HasPrefix(d.Name(), ".") || l.shouldExclude(relPath+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		if !l.shouldInclude(relPath) || l.shouldExclude(relPath) {
			return nil
		}

		report.Files++
		sourcePath := department + "/" + relPath
		texts, parseErr := parseFile(path)
		switch {
		case errors.Is(parseErr, errUnsupported):
			report.Skipped++
			return nil
		case parseErr != nil:
			l.recordError(report, sourcePath, parseErr)
			return nil
		}

		for i, text := range texts {
			key := sourcePath
			if len(texts) > 1 {
				key = sourcePath + "#" + strconv.Itoa(i+1)
			}
			docs = append(docs, domain.Document{
				ID:         generateDocID(key),
				SourcePath: sourcePath,
				Department: department,
				Text:       text,
			})
		}
		return nil
	})
	if err != nil {
		l.recordError(report, deptDir, err)
	}

	return docs
}

func (l *Loader) recordError(report *LoadReport, path string, err error) {
	loadErr := &domain.LoadError{Path: path, Err: err}
	report.Errors = append(report.Errors, loadErr)
	l.logger.Warn("failed to load file, skipping", "path", path, "error", err)
}

func (l *Loader) shouldInclude(path string) bool {
	for _, pattern := range l.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (l *Loader) shouldExclude(path string) bool {
	for _, pattern := range l.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// parseFile returns the raw-text records of a file.
func parseFile(path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
		text, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []string{text}, nil
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return parseCSV(f)
	default:
		return nil, errUnsupported
	}
}

// parseCSV renders each data row as "header: value" lines.
func parseCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed csv: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	rows := make([]string, 0, len(records)-1)
	for _, record := range records[1:] {
		var b strings.Builder
		for i, value := range record {
			if !utf8.ValidString(value) {
				return nil, fmt.Errorf("csv row is not valid UTF-8")
			}
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(strings.TrimSpace(header[i]))
			b.WriteString(": ")
			b.WriteString(value)
		}
		rows = append(rows, b.String())
	}
	return rows, nil
}

// ReadFile reads a UTF-8 text file, normalizing line endings.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8")
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

func generateDocID(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:8])
}
