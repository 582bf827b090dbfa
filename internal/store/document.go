package store

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"expanderd/internal/expansion"
)

// DocumentVersion is written to new data files.
const DocumentVersion = "1.0.0"

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "expanderd://schema/data.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(schemaURL)
})

// Document is the data.json file format. Export and Import use it for both
// backends.
type Document struct {
	Version  string             `json:"version"`
	Settings expansion.Settings `json:"settings"`
	Groups   []expansion.Group  `json:"groups"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		Version:  DocumentVersion,
		Settings: expansion.Settings{WhitelistApps: []expansion.AppWhitelistEntry{}},
		Groups:   []expansion.Group{},
	}
}

// DecodeDocument parses and validates a data document. Missing IDs are
// generated and missing sections are filled with defaults.
func DecodeDocument(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	doc.normalize()
	return doc, nil
}

// Encode writes the document as indented JSON without HTML escaping.
func (d *Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(d)
}

func (d *Document) normalize() {
	if d.Version == "" {
		d.Version = DocumentVersion
	}
	if d.Groups == nil {
		d.Groups = []expansion.Group{}
	}
	if d.Settings.WhitelistApps == nil {
		d.Settings.WhitelistApps = []expansion.AppWhitelistEntry{}
	}
	for gi := range d.Groups {
		g := &d.Groups[gi]
		if g.ID == "" {
			g.ID = newID()
		}
		if g.Expansions == nil {
			g.Expansions = []expansion.Expansion{}
		}
		for ei := range g.Expansions {
			e := &g.Expansions[ei]
			if e.ID == "" {
				e.ID = newID()
			}
			e.GroupID, e.GroupName = "", ""
		}
	}
}

// Expansions flattens every group, filling in the group fields.
func (d *Document) Expansions() []expansion.Expansion {
	var out []expansion.Expansion
	for _, g := range d.Groups {
		for _, e := range g.Expansions {
			e.GroupID = g.ID
			e.GroupName = g.Name
			out = append(out, e)
		}
	}
	return out
}

// DuplicatePrefix returns the first prefix used by more than one expansion.
func (d *Document) DuplicatePrefix() (string, bool) {
	seen := make(map[string]bool)
	for _, g := range d.Groups {
		for _, e := range g.Expansions {
			if seen[e.Prefix] {
				return e.Prefix, true
			}
			seen[e.Prefix] = true
		}
	}
	return "", false
}

func (d *Document) prefixUnique(prefix, excludeID string) bool {
	for _, g := range d.Groups {
		for _, e := range g.Expansions {
			if e.Prefix == prefix && e.ID != excludeID {
				return false
			}
		}
	}
	return true
}

func (d *Document) groupIndex(id string) int {
	return slices.IndexFunc(d.Groups, func(g expansion.Group) bool { return g.ID == id })
}

func (d *Document) hasGroupName(name, excludeID string) bool {
	return slices.ContainsFunc(d.Groups, func(g expansion.Group) bool {
		return g.Name == name && g.ID != excludeID
	})
}

func (d *Document) findExpansion(id string) (gi, ei int) {
	for gi := range d.Groups {
		for ei := range d.Groups[gi].Expansions {
			if d.Groups[gi].Expansions[ei].ID == id {
				return gi, ei
			}
		}
	}
	return -1, -1
}

func (d *Document) addGroup(name string) (string, error) {
	name, err := validateGroupName(name)
	if err != nil {
		return "", err
	}
	if d.hasGroupName(name, "") {
		return "", fmt.Errorf("%w: %q", ErrDuplicateGroup, name)
	}
	id := newID()
	d.Groups = append(d.Groups, expansion.Group{ID: id, Name: name, Expansions: []expansion.Expansion{}})
	return id, nil
}

func (d *Document) renameGroup(id, name string) error {
	name, err := validateGroupName(name)
	if err != nil {
		return err
	}
	gi := d.groupIndex(id)
	if gi < 0 {
		return fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	if d.hasGroupName(name, id) {
		return fmt.Errorf("%w: %q", ErrDuplicateGroup, name)
	}
	d.Groups[gi].Name = name
	return nil
}

func (d *Document) deleteGroup(id string) error {
	gi := d.groupIndex(id)
	if gi < 0 {
		return fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	d.Groups = slices.Delete(d.Groups, gi, gi+1)
	return nil
}

func (d *Document) addExpansion(groupID string, in ExpansionInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	gi := d.groupIndex(groupID)
	if gi < 0 {
		return "", fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	if !d.prefixUnique(in.Prefix, "") {
		return "", fmt.Errorf("%w: %q", ErrDuplicatePrefix, in.Prefix)
	}
	e := expansion.Expansion{ID: newID()}
	in.apply(&e)
	d.Groups[gi].Expansions = append(d.Groups[gi].Expansions, e)
	return e.ID, nil
}

func (d *Document) updateExpansion(id string, in ExpansionInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	gi, ei := d.findExpansion(id)
	if gi < 0 {
		return fmt.Errorf("expansion %s: %w", id, ErrNotFound)
	}
	if !d.prefixUnique(in.Prefix, id) {
		return fmt.Errorf("%w: %q", ErrDuplicatePrefix, in.Prefix)
	}
	in.apply(&d.Groups[gi].Expansions[ei])
	return nil
}

func (d *Document) deleteExpansion(id string) error {
	gi, ei := d.findExpansion(id)
	if gi < 0 {
		return fmt.Errorf("expansion %s: %w", id, ErrNotFound)
	}
	g := &d.Groups[gi]
	g.Expansions = slices.Delete(g.Expansions, ei, ei+1)
	return nil
}

// merge appends the groups of other whose names are not present yet, with
// fresh IDs. Settings are left untouched.
func (d *Document) merge(other *Document) {
	for _, g := range other.Groups {
		if d.hasGroupName(g.Name, "") {
			continue
		}
		ng := expansion.Group{ID: newID(), Name: g.Name, Expansions: make([]expansion.Expansion, 0, len(g.Expansions))}
		for _, e := range g.Expansions {
			e.ID = newID()
			ng.Expansions = append(ng.Expansions, e)
		}
		d.Groups = append(d.Groups, ng)
	}
}

// importInto returns the document that results from importing src into d.
func (d *Document) importInto(src *Document, merge bool) (*Document, error) {
	var out *Document
	if merge {
		out = d.clone()
		out.merge(src)
	} else {
		out = src
	}
	if p, dup := out.DuplicatePrefix(); dup {
		return nil, fmt.Errorf("%w: %q", ErrDuplicatePrefix, p)
	}
	return out, nil
}

func (d *Document) clone() *Document {
	out := &Document{
		Version: d.Version,
		Settings: expansion.Settings{
			WhitelistEnabled: d.Settings.WhitelistEnabled,
			WhitelistApps:    slices.Clone(d.Settings.WhitelistApps),
		},
		Groups: make([]expansion.Group, len(d.Groups)),
	}
	for i, g := range d.Groups {
		g.Expansions = slices.Clone(g.Expansions)
		out.Groups[i] = g
	}
	out.normalize()
	return out
}

func newID() string {
	return uuid.NewString()
}
