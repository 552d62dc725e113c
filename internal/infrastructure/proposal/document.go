package proposal

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"FRBScanner/internal/catalog"
	"FRBScanner/internal/domain"
)

var (
	ErrMissingFrontMatter   = errors.New("proposal: missing front matter")
	ErrMalformedFrontMatter = errors.New("proposal: malformed front matter")
)

// Metadata is the YAML front matter of a proposal document.
type Metadata struct {
	RunID    string   `yaml:"run_id"`
	Created  string   `yaml:"created"`
	Count    int      `yaml:"count"`
	Records  []string `yaml:"records"`
	Excluded []string `yaml:"excluded,omitempty"`
	CSV      string   `yaml:"csv"`
}

// Files is the rendered content of one proposal.
type Files struct {
	Stem     string
	Markdown []byte
	CSV      []byte
}

// MarkdownName is the file name of the summary document.
func (f Files) MarkdownName() string { return f.Stem + ".md" }

// CSVName is the file name of the new catalog rows.
func (f Files) CSVName() string { return f.Stem + ".csv" }

// Stem names a proposal after its date and the set of proposed names, so a
// retried run proposing the same records maps to the same branch and files.
func Stem(change domain.ProposedChange) string {
	names := append([]string(nil), change.Names()...)
	sort.Strings(names)
	sum := sha256.Sum256([]byte(strings.Join(names, "\n")))
	created := change.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return fmt.Sprintf("%s-%s", created.UTC().Format("2006-01-02"), hex.EncodeToString(sum[:])[:8])
}

// BranchName is the review branch carrying these files.
func (f Files) BranchName() string { return "frb-update/" + f.Stem }

// Title is the pull request title.
func Title(change domain.ProposedChange) string {
	n := len(change.Entries)
	if n == 1 {
		return "Add " + change.Entries[0].Record.Name + " to the FRB catalog"
	}
	return fmt.Sprintf("Add %d localized FRBs to the catalog", n)
}

// Render builds the Markdown summary with front matter and the CSV of new rows.
func Render(change domain.ProposedChange) (Files, error) {
	files := Files{Stem: Stem(change)}

	var csvBuf bytes.Buffer
	if err := catalog.WriteCSV(&csvBuf, change.Records()); err != nil {
		return Files{}, fmt.Errorf("render csv: %w", err)
	}
	files.CSV = csvBuf.Bytes()

	meta := Metadata{
		RunID:    change.RunID,
		Created:  change.CreatedAt.UTC().Format(time.RFC3339),
		Count:    len(change.Entries),
		Records:  change.Names(),
		Excluded: change.Excluded,
		CSV:      files.CSVName(),
	}
	md, err := WriteFrontMatter(meta, []byte(change.Summary))
	if err != nil {
		return Files{}, err
	}
	files.Markdown = md
	return files, nil
}

// WriteFrontMatter renders metadata + body with YAML fences.
func WriteFrontMatter(meta Metadata, body []byte) ([]byte, error) {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("proposal: encode front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// ParseFrontMatter splits a proposal document into metadata and body.
func ParseFrontMatter(content []byte) (Metadata, []byte, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	parts := bytes.SplitN(normalized[4:], []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	var meta Metadata
	if err := yaml.Unmarshal(parts[0], &meta); err != nil {
		return Metadata{}, nil, fmt.Errorf("proposal: parse front matter: %w", err)
	}
	return meta, bytes.TrimLeft(parts[1], "\n"), nil
}

// RowsPath resolves the CSV to apply. A proposal document is followed to the
// CSV named in its front matter, relative to the document; any other path is
// returned unchanged.
func RowsPath(path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".md") {
		return path, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read proposal %s: %w", path, err)
	}
	meta, _, err := ParseFrontMatter(content)
	if err != nil {
		return "", fmt.Errorf("read proposal %s: %w", path, err)
	}
	if meta.CSV == "" {
		return "", fmt.Errorf("read proposal %s: %w", path, ErrMalformedFrontMatter)
	}
	if filepath.IsAbs(meta.CSV) {
		return meta.CSV, nil
	}
	return filepath.Join(filepath.Dir(path), meta.CSV), nil
}
