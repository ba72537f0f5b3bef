package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Nic-JM/whatsapp-web-scraper/internal/logging"
	"github.com/Nic-JM/whatsapp-web-scraper/internal/types"
)

// JSONExporter writes every completed contact as one entry of a JSON array.
// Each entry is the contact's list of records in positional form. Failed
// contacts are left out; the archive keeps them.
type JSONExporter struct {
	path   string
	indent int

	mu       sync.Mutex
	contacts [][]types.MessageRecord
}

// NewJSONExporter returns an exporter writing to path. indent is the number
// of spaces per level; zero writes compact JSON.
func NewJSONExporter(path string, indent int) *JSONExporter {
	return &JSONExporter{path: path, indent: indent}
}

// Path returns the output file.
func (e *JSONExporter) Path() string {
	return e.path
}

// Begin implements Sink.
func (e *JSONExporter) Begin(context.Context, Run) error {
	e.mu.Lock()
	e.contacts = nil
	e.mu.Unlock()
	return nil
}

// Put implements Sink.
func (e *JSONExporter) Put(_ context.Context, res types.ContactResult) error {
	if res.Failed() {
		return nil
	}
	records := res.Records
	if records == nil {
		records = []types.MessageRecord{}
	}
	e.mu.Lock()
	e.contacts = append(e.contacts, records)
	e.mu.Unlock()
	return nil
}

// Finish implements Sink. The file is replaced atomically.
func (e *JSONExporter) Finish(_ context.Context, run Run) error {
	e.mu.Lock()
	contacts := e.contacts
	if contacts == nil {
		contacts = [][]types.MessageRecord{}
	}
	data, err := e.encode(contacts)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if err := writeFileAtomic(e.path, data); err != nil {
		return err
	}
	logging.Store("exported %d contacts of run %s to %s", len(contacts), run.ID, e.path)
	return nil
}

func (e *JSONExporter) encode(v interface{}) ([]byte, error) {
	if e.indent <= 0 {
		return json.Marshal(v)
	}
	return json.MarshalIndent(v, "", strings.Repeat(" ", e.indent))
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
