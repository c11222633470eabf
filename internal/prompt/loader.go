package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

const defaultSource = "embedded:catalog.yaml"

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

type catalogFile struct {
	Categories []Category `yaml:"categories"`
	Templates  []Template `yaml:"templates"`
}

// Load parses and validates a catalog from YAML bytes.
func Load(source string, data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("parse catalog %s: empty catalog", source)
	}

	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", source, err)
	}

	for i := range file.Templates {
		if strings.TrimSpace(file.Templates[i].Body) == "" {
			return nil, fmt.Errorf("catalog %s: template %q missing template body", source, file.Templates[i].ID)
		}
	}

	catalog, err := NewCatalog(source, file.Categories, file.Templates)
	if err != nil {
		return nil, fmt.Errorf("validate catalog %s: %w", source, err)
	}
	return catalog, nil
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- catalog path is operator-provided
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Load(path, data)
}

// Default returns the embedded catalog. It is parsed once per process.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load(defaultSource, defaultCatalogYAML)
	})
	return defaultCatalog, defaultErr
}

// Open returns the catalog at path, or the embedded catalog when path is empty.
func Open(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	return LoadFile(path)
}
