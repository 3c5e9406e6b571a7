package manifest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/xeipuuv/gojsonschema"

	wberrors "github.com/systmms/wbctl/internal/errors"
)

// DefaultName is the name of the built-in manifest.
const DefaultName = "Wikidata"

//go:embed schema.json
var schemaJSON []byte

//go:embed wikidata.json
var wikidataJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error

	// supported is the range of manifest versions this client understands.
	supported = mustConstraint("^1")
)

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Parse decodes and validates a manifest document. Validation failures wrap
// errors.ErrInvalidManifest.
func Parse(data []byte) (*Manifest, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", wberrors.ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParseList decodes a persisted JSON array of manifests. Entries that fail
// validation are skipped and reported in the returned slice of errors.
func ParseList(data []byte) ([]*Manifest, []error, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" || trimmed == "[]" {
		return nil, nil, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raws); err != nil {
		return nil, nil, fmt.Errorf("%w: persisted manifest list: %v", wberrors.ErrInvalidManifest, err)
	}

	var (
		out  []*Manifest
		errs []error
	)
	for i, raw := range raws {
		m, err := Parse(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		out = append(out, m)
	}
	return out, errs, nil
}

// Validate checks the fields every registry entry must carry and the version.
func (m *Manifest) Validate() error {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("mediawiki.name", m.MediaWiki.Name)
	check("mediawiki.root", m.MediaWiki.Root)
	check("mediawiki.main_page", m.MediaWiki.MainPage)
	check("mediawiki.api", m.MediaWiki.API)
	check("wikibase.site_iri", m.EntityPrefix())
	check("reconciliation.endpoint", m.Reconciliation.Endpoint)
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", wberrors.ErrInvalidManifest, strings.Join(missing, ", "))
	}

	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return fmt.Errorf("%w: version %q: %v", wberrors.ErrInvalidManifest, m.Version, err)
	}
	if !supported.Check(v) {
		return fmt.Errorf("%w: unsupported version %s", wberrors.ErrInvalidManifest, m.Version)
	}
	return nil
}

func validateSchema(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", wberrors.ErrInvalidManifest, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%w:\n  - %s", wberrors.ErrInvalidManifest, strings.Join(msgs, "\n  - "))
	}
	return nil
}

// Default returns a fresh copy of the built-in Wikidata manifest.
func Default() *Manifest {
	var m Manifest
	if err := json.Unmarshal(wikidataJSON, &m); err != nil {
		panic(fmt.Sprintf("built-in manifest: %v", err))
	}
	return &m
}
