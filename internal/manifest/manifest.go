// Package manifest models a wikibase manifest: the document describing one
// wikibase instance's MediaWiki endpoints, entity IRIs and reconciliation
// service.
package manifest

import (
	"encoding/json"
	"fmt"
	"time"
)

// Manifest describes one wikibase instance. Keys of the document that are not
// modelled here survive a Parse/Marshal round trip unchanged.
type Manifest struct {
	Version        string
	MediaWiki      MediaWiki
	Wikibase       Wikibase
	Reconciliation Reconciliation

	// Provenance is set only for manifests obtained from a URL.
	Provenance *Provenance

	extra map[string]json.RawMessage
}

// MediaWiki holds the endpoints of the MediaWiki installation.
type MediaWiki struct {
	Name     string `json:"name"`
	Root     string `json:"root"`
	MainPage string `json:"main_page"`
	API      string `json:"api"`
}

// Wikibase holds the wikibase-specific settings.
type Wikibase struct {
	SiteIRI    string
	MaxLag     int
	Properties map[string]string

	extra map[string]json.RawMessage
}

// Reconciliation locates the reconciliation service.
type Reconciliation struct {
	Endpoint string `json:"endpoint"`
}

// Provenance records where and when a manifest was fetched. It is stored
// under the "custom" key with a millisecond timestamp.
type Provenance struct {
	SourceURL     string
	LastFetchedAt time.Time
}

// Name is the unique registry key of the manifest.
func (m *Manifest) Name() string {
	return m.MediaWiki.Name
}

// EntityPrefix returns the IRI prefix of entities. An explicit
// properties.entity_prefix wins over site_iri.
func (m *Manifest) EntityPrefix() string {
	if p := m.Wikibase.Properties["entity_prefix"]; p != "" {
		return p
	}
	return m.Wikibase.SiteIRI
}

// Fetched reports whether the manifest came from a URL.
func (m *Manifest) Fetched() bool {
	return m.Provenance != nil && m.Provenance.SourceURL != "" && !m.Provenance.LastFetchedAt.IsZero()
}

// StaleAt reports whether a fetched manifest is older than maxAge at now.
// Manifests without provenance are never stale.
func (m *Manifest) StaleAt(now time.Time, maxAge time.Duration) bool {
	if !m.Fetched() {
		return false
	}
	return now.Sub(m.Provenance.LastFetchedAt) > maxAge
}

// Stamp returns a copy of m carrying fresh provenance. The timestamp is kept
// at the millisecond precision it is persisted with.
func (m *Manifest) Stamp(sourceURL string, at time.Time) *Manifest {
	c := m.Clone()
	c.Provenance = &Provenance{SourceURL: sourceURL, LastFetchedAt: at.UTC().Truncate(time.Millisecond)}
	return c
}

// Clone returns a deep copy.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := *m
	c.extra = cloneRaw(m.extra)
	c.Wikibase.extra = cloneRaw(m.Wikibase.extra)
	if m.Wikibase.Properties != nil {
		c.Wikibase.Properties = make(map[string]string, len(m.Wikibase.Properties))
		for k, v := range m.Wikibase.Properties {
			c.Wikibase.Properties[k] = v
		}
	}
	if m.Provenance != nil {
		p := *m.Provenance
		c.Provenance = &p
	}
	return &c
}

// MarshalJSON writes the manifest wire format.
func (m Manifest) MarshalJSON() ([]byte, error) {
	doc := cloneRaw(m.extra)
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}
	if err := setRaw(doc, "version", m.Version); err != nil {
		return nil, err
	}
	if err := setRaw(doc, "mediawiki", m.MediaWiki); err != nil {
		return nil, err
	}
	if err := setRaw(doc, "wikibase", m.Wikibase); err != nil {
		return nil, err
	}
	if err := setRaw(doc, "reconciliation", m.Reconciliation); err != nil {
		return nil, err
	}
	delete(doc, "custom")
	if m.Provenance != nil {
		if err := setRaw(doc, "custom", m.Provenance); err != nil {
			return nil, err
		}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads the manifest wire format without validating it.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*m = Manifest{}
	if err := takeRaw(doc, "version", &m.Version); err != nil {
		return err
	}
	if err := takeRaw(doc, "mediawiki", &m.MediaWiki); err != nil {
		return err
	}
	if err := takeRaw(doc, "wikibase", &m.Wikibase); err != nil {
		return err
	}
	if err := takeRaw(doc, "reconciliation", &m.Reconciliation); err != nil {
		return err
	}
	if raw, ok := doc["custom"]; ok {
		delete(doc, "custom")
		var p Provenance
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("custom: %w", err)
		}
		if p.SourceURL != "" || !p.LastFetchedAt.IsZero() {
			m.Provenance = &p
		}
	}
	if len(doc) > 0 {
		m.extra = doc
	}
	return nil
}

// MarshalJSON keeps unmodelled keys such as constraints.
func (w Wikibase) MarshalJSON() ([]byte, error) {
	doc := cloneRaw(w.extra)
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}
	if w.SiteIRI != "" {
		if err := setRaw(doc, "site_iri", w.SiteIRI); err != nil {
			return nil, err
		}
	}
	if w.MaxLag != 0 {
		if err := setRaw(doc, "maxlag", w.MaxLag); err != nil {
			return nil, err
		}
	}

	_, hasRawProps := doc["properties"]
	if len(w.Properties) > 0 || hasRawProps {
		props := make(map[string]json.RawMessage)
		if raw, ok := doc["properties"]; ok {
			if err := json.Unmarshal(raw, &props); err != nil {
				return nil, fmt.Errorf("properties: %w", err)
			}
		}
		for k, v := range w.Properties {
			if err := setRaw(props, k, v); err != nil {
				return nil, err
			}
		}
		if err := setRaw(doc, "properties", props); err != nil {
			return nil, err
		}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON splits the modelled keys from the rest.
func (w *Wikibase) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*w = Wikibase{}
	if err := takeRaw(doc, "site_iri", &w.SiteIRI); err != nil {
		return err
	}
	if err := takeRaw(doc, "maxlag", &w.MaxLag); err != nil {
		return err
	}
	if raw, ok := doc["properties"]; ok {
		// Properties may hold non-string values; only strings are modelled.
		var props map[string]interface{}
		if err := json.Unmarshal(raw, &props); err != nil {
			return fmt.Errorf("properties: %w", err)
		}
		strs := make(map[string]string, len(props))
		complete := true
		for k, v := range props {
			s, ok := v.(string)
			if !ok {
				complete = false
				continue
			}
			strs[k] = s
		}
		w.Properties = strs
		if complete {
			delete(doc, "properties")
		}
	}
	if len(doc) > 0 {
		w.extra = doc
	}
	return nil
}

type provenanceWire struct {
	URL         string `json:"url,omitempty"`
	LastUpdated int64  `json:"last_updated,omitempty"`
}

// MarshalJSON writes {url, last_updated} with a millisecond epoch.
func (p Provenance) MarshalJSON() ([]byte, error) {
	w := provenanceWire{URL: p.SourceURL}
	if !p.LastFetchedAt.IsZero() {
		w.LastUpdated = p.LastFetchedAt.UnixMilli()
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads {url, last_updated}.
func (p *Provenance) UnmarshalJSON(data []byte) error {
	var w struct {
		URL         string  `json:"url"`
		LastUpdated float64 `json:"last_updated"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.SourceURL = w.URL
	p.LastFetchedAt = time.Time{}
	if w.LastUpdated > 0 {
		p.LastFetchedAt = time.UnixMilli(int64(w.LastUpdated)).UTC()
	}
	return nil
}

func takeRaw(doc map[string]json.RawMessage, key string, out interface{}) error {
	raw, ok := doc[key]
	if !ok {
		return nil
	}
	delete(doc, key)
	if string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func setRaw(doc map[string]json.RawMessage, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	doc[key] = raw
	return nil
}

func cloneRaw(src map[string]json.RawMessage) map[string]json.RawMessage {
	if src == nil {
		return nil
	}
	dst := make(map[string]json.RawMessage, len(src))
	for k, v := range src {
		dst[k] = append(json.RawMessage(nil), v...)
	}
	return dst
}
