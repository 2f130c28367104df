// Package org loads the declared reporting hierarchy and enriches it with
// live session state.
package org

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/agent-dashboard/pkg/models"
)

// Configuration errors reported by Validate.
var (
	ErrMissingID     = errors.New("org node without id")
	ErrDuplicateID   = errors.New("duplicate org node id")
	ErrNoRoot        = errors.New("org hierarchy has no root")
	ErrMultipleRoots = errors.New("org hierarchy has more than one root")
	ErrUnknownParent = errors.New("org node parent does not exist")
	ErrCycle         = errors.New("org hierarchy contains a cycle")
)

// document is the object form of the hierarchy file.
type document struct {
	Nodes []models.OrgNode `json:"nodes" yaml:"nodes"`
}

// LoadHierarchy reads and validates the hierarchy document at path. A
// missing file yields an empty hierarchy, not an error. Files ending in
// .yaml or .yml are YAML; anything else is JSON, comments allowed.
func LoadHierarchy(path string) ([]models.OrgNode, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- configured hierarchy document
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	nodes, err := parseHierarchy(path, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := Validate(nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func parseHierarchy(path string, data []byte) ([]models.OrgNode, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc document
		if err := yaml.Unmarshal(data, &doc); err == nil {
			return doc.Nodes, nil
		}
		var nodes []models.OrgNode
		if err := yaml.Unmarshal(data, &nodes); err != nil {
			return nil, err
		}
		return nodes, nil

	default:
		clean := jsonc.ToJSON(data)
		var doc document
		if err := json.Unmarshal(clean, &doc); err == nil {
			return doc.Nodes, nil
		}
		var nodes []models.OrgNode
		if err := json.Unmarshal(clean, &nodes); err != nil {
			return nil, err
		}
		return nodes, nil
	}
}

// Validate checks that nodes form a single tree: unique non-empty ids, one
// root, resolvable parents and no cycles. An empty list is valid.
func Validate(nodes []models.OrgNode) error {
	if len(nodes) == 0 {
		return nil
	}

	parents := make(map[string]string, len(nodes))
	roots := 0
	for _, n := range nodes {
		if n.ID == "" {
			return ErrMissingID
		}
		if _, dup := parents[n.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
		}
		parents[n.ID] = n.ParentID
		if n.IsRoot() {
			roots++
		}
	}

	switch {
	case roots == 0:
		return ErrNoRoot
	case roots > 1:
		return ErrMultipleRoots
	}

	for _, n := range nodes {
		if !n.IsRoot() {
			if _, ok := parents[n.ParentID]; !ok {
				return fmt.Errorf("%w: %s -> %s", ErrUnknownParent, n.ID, n.ParentID)
			}
		}
	}

	// With one root and resolvable parents, a node that cannot reach the
	// root within len(nodes) hops sits on a cycle.
	for _, n := range nodes {
		id := n.ID
		for hops := 0; parents[id] != ""; hops++ {
			if hops >= len(nodes) {
				return fmt.Errorf("%w: through %s", ErrCycle, n.ID)
			}
			id = parents[id]
		}
	}
	return nil
}
