package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/screenerlab/swl/pkg/swl/types"
)

// YAMLSource loads watchlists from a YAML file or a directory of them.
//
// A document is a map with a watchlist key and optional columns. The
// watchlist holds leaf rows (sym, name, free-form fields) and named groups
// that nest further watchlists; group names join with "/".
type YAMLSource struct{}

// Load expects spec to be a string filepath.
func (s YAMLSource) Load(ctx context.Context, spec any) ([]types.Watchlist, error) { //nolint:revive // ctx reserved for future use
	path, ok := spec.(string)
	if !ok {
		return nil, errors.New("yaml source expects filepath string spec")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return s.loadDir(path)
	}

	lists, err := loadYAMLFile(path)
	if err != nil {
		return nil, err
	}
	// An unnamed top-level list takes the file's name.
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for i := range lists {
		if strings.TrimSpace(lists[i].Name) == "" {
			lists[i].Name = base
		}
	}
	return lists, nil
}

// loadDir parses every .yaml/.yml under dir in sorted order, prefixing
// list names with the file's relative path so same-named lists from
// different files stay distinct.
func (YAMLSource) loadDir(dir string) ([]types.Watchlist, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var all []types.Watchlist
	for _, full := range files {
		lists, err := loadYAMLFile(full)
		if err != nil {
			return nil, errors.Wrap(err, full)
		}
		rel, err := filepath.Rel(dir, full)
		if err != nil {
			rel = filepath.Base(full)
		}
		prefix := filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
		for i := range lists {
			if strings.TrimSpace(lists[i].Name) == "" {
				lists[i].Name = prefix
			} else {
				lists[i].Name = prefix + "/" + lists[i].Name
			}
		}
		all = append(all, lists...)
	}
	return all, nil
}

func loadYAMLFile(path string) ([]types.Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseYAML(data)
}

// parseYAML decodes one document into watchlists, flattening nested groups
// into path-joined names.
func parseYAML(data []byte) ([]types.Watchlist, error) {
	var doc struct {
		Columns   []string  `yaml:"columns"`
		Watchlist yaml.Node `yaml:"watchlist"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "invalid yaml: expected map with 'watchlist'")
	}
	if doc.Watchlist.IsZero() || doc.Watchlist.Tag == "!!null" {
		return nil, errors.New("invalid yaml: missing 'watchlist'")
	}

	p := &yamlParser{columns: doc.Columns}
	if err := p.walk(&doc.Watchlist, nil); err != nil {
		return nil, err
	}
	return p.lists, nil
}

type yamlParser struct {
	columns []string
	lists   []types.Watchlist
}

// walk descends one watchlist node. A sequence emits its leaf rows as a
// list named after the group path, then recurses into nested groups; a
// lone mapping is either a group or a single-row list.
func (p *yamlParser) walk(n *yaml.Node, path []string) error {
	n = resolved(n)
	switch n.Kind {
	case yaml.SequenceNode:
		var rows []types.Row
		var groups []*yaml.Node
		for _, entry := range n.Content {
			entry = resolved(entry)
			if entry.Kind != yaml.MappingNode || len(entry.Content) == 0 {
				continue
			}
			if mappingValue(entry, "watchlist") != nil {
				groups = append(groups, entry)
				continue
			}
			row, err := decodeRow(entry)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		if len(rows) > 0 {
			p.emit(path, rows)
		}
		for _, g := range groups {
			if err := p.walkGroup(g, path); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		if mappingValue(n, "watchlist") != nil {
			return p.walkGroup(n, path)
		}
		if len(n.Content) == 0 {
			return nil
		}
		row, err := decodeRow(n)
		if err != nil {
			return err
		}
		p.emit(path, []types.Row{row})
	}
	return nil
}

// walkGroup descends into a group mapping, extending the name path when
// the group is named.
func (p *yamlParser) walkGroup(n *yaml.Node, path []string) error {
	if name := scalarValue(n, "name"); name != "" {
		path = append(append([]string(nil), path...), name)
	}
	return p.walk(mappingValue(n, "watchlist"), path)
}

func (p *yamlParser) emit(path []string, rows []types.Row) {
	p.lists = append(p.lists, types.Watchlist{
		Name:    strings.Join(path, "/"),
		Columns: append([]string(nil), p.columns...),
		Rows:    rows,
	})
}

// decodeRow turns a leaf mapping into a row, keeping unknown keys as raw
// fields for column rendering.
func decodeRow(n *yaml.Node) (types.Row, error) {
	var fields map[string]any
	if err := n.Decode(&fields); err != nil {
		return types.Row{}, errors.Wrap(err, "invalid watchlist row")
	}
	row := types.Row{Status: types.StatusNotAttempted, Fields: map[string]any{}}
	for k, v := range fields {
		switch {
		case v == nil:
		case k == "sym":
			row.Sym = types.UpperSym(fmt.Sprint(v))
			row.Fields["sym"] = row.Sym
		case k == "name":
			row.Name = fmt.Sprint(v)
			row.Fields["name"] = row.Name
		default:
			row.Fields[k] = v
		}
	}
	return row, nil
}

// mappingValue returns the value node for a key of a mapping, or nil.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalarValue(m *yaml.Node, key string) string {
	if v := mappingValue(m, key); v != nil {
		return v.Value
	}
	return ""
}

// resolved follows alias nodes so anchored rows parse like inline ones.
func resolved(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}
