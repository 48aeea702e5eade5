package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"atproto-mcp/internal/domain"

	"gopkg.in/yaml.v3"
)

// PostSpec is one post of a bundle.
type PostSpec struct {
	Text  string `json:"text" yaml:"text" validate:"required" jsonschema_description:"Post text content"`
	Image string `json:"image,omitempty" yaml:"image,omitempty" jsonschema_description:"Path to image file"`
}

// Bundle is a file holding several batch operations. A category is present
// when its key appears in the file with a list value, even an empty one.
// Unknown keys are ignored.
type Bundle struct {
	Posts   []PostSpec `json:"posts" yaml:"posts"`
	Follows []string   `json:"follows" yaml:"follows"`
	Likes   []string   `json:"likes" yaml:"likes"`
}

// Category names in execution order.
const (
	CategoryPosts   = "posts"
	CategoryFollows = "follows"
	CategoryLikes   = "likes"
)

// Categories lists the categories present in b in execution order.
func (b *Bundle) Categories() []string {
	var out []string
	if b.Posts != nil {
		out = append(out, CategoryPosts)
	}
	if b.Follows != nil {
		out = append(out, CategoryFollows)
	}
	if b.Likes != nil {
		out = append(out, CategoryLikes)
	}
	return out
}

// LoadBundle reads and parses a bundle file. YAML is used for .yaml and
// .yml files, JSON otherwise. Any read or parse problem fails the whole load.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOFailure("read bundle "+path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	b, err := ParseBundle(data, ext == ".yaml" || ext == ".yml")
	if err != nil {
		return nil, domain.IOFailure("parse bundle "+path, err)
	}
	return b, nil
}

// ParseBundle decodes bundle content.
func ParseBundle(data []byte, isYAML bool) (*Bundle, error) {
	var b Bundle
	if isYAML {
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
			return nil, fmt.Errorf("expected a YAML mapping")
		}
		if err := doc.Content[0].Decode(&b); err != nil {
			return nil, err
		}
		return &b, nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}
	if err := json.Unmarshal(trimmed, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
