// Package msgcat holds the console text. Defaults are embedded; a directory
// of YAML files may override any of them.
package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

const defaultFile = "messages.en.yaml"

// required lists every key the game prints, with sample data shaped like
// what the caller passes. New renders each one so a broken override fails
// at startup instead of mid-game.
var required = map[string]map[string]any{
	"game.welcome":     {"Elo": 1500, "MoveTimeMS": 1000},
	"game.farewell":    nil,
	"game.opening":     {"Code": "C20", "Title": "King's Pawn Game"},
	"color.prompt":     nil,
	"color.retry":      nil,
	"move.prompt":      nil,
	"move.invalid":     nil,
	"engine.thinking":  nil,
	"engine.move":      {"Move": "e7e5"},
	"engine.eval_cp":   {"Pawns": "+0.20", "Depth": 15},
	"engine.eval_mate": {"Moves": 3, "Side": "white", "Depth": 15},
	"state.check":      nil,
	"state.checkmate":  nil,
	"state.stalemate":  nil,
	"state.draw":       nil,
	"error.config":     {"Err": errors.New("UCI_Elo=99999 out of range")},
	"error.engine":     {"Err": errors.New("engine exited")},
}

// Catalog maps dotted keys to compiled templates. It is read-only after New.
type Catalog struct {
	tpl map[string]*template.Template
}

// New loads the embedded messages, layers the YAML files in overrideDir on
// top in name order and checks that every message the game uses renders.
func New(overrideDir string) (*Catalog, error) {
	raw, err := defaultFiles.ReadFile(defaultFile)
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	texts, err := flatten(raw)
	if err != nil {
		return nil, fmt.Errorf("parse embedded messages: %w", err)
	}
	if dir := strings.TrimSpace(overrideDir); dir != "" {
		if err := overlay(texts, dir); err != nil {
			return nil, err
		}
	}

	c := &Catalog{tpl: make(map[string]*template.Template, len(texts))}
	for key, text := range texts {
		t, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", key, err)
		}
		c.tpl[key] = t
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) check() error {
	var errs []error
	for key, sample := range required {
		if _, err := c.Render(key, sample); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// overlay applies *.yaml and *.yml files from dir. A key set by two files
// is ambiguous and rejected.
func overlay(texts map[string]string, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read messages dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	slices.Sort(names)

	owner := make(map[string]string)
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		layer, err := flatten(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for key, text := range layer {
			if prev, ok := owner[key]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", key, prev, name)
			}
			owner[key] = name
			texts[key] = text
		}
	}
	return nil
}

// flatten turns nested YAML maps into dotted keys.
func flatten(raw []byte) (map[string]string, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	var walk func(prefix string, node any) error
	walk = func(prefix string, node any) error {
		switch v := node.(type) {
		case map[string]any:
			for k, child := range v {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				if err := walk(key, child); err != nil {
					return err
				}
			}
		case string:
			if prefix == "" {
				return errors.New("string value without key")
			}
			out[prefix] = v
		case nil:
		default:
			return fmt.Errorf("unsupported value at %s: %T", prefix, v)
		}
		return nil
	}
	if err := walk("", tree); err != nil {
		return nil, err
	}
	return out, nil
}

// Render executes the message for key with data.
func (c *Catalog) Render(key string, data any) (string, error) {
	t, ok := c.tpl[strings.TrimSpace(key)]
	if !ok {
		return "", fmt.Errorf("message %s: not found", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("message %s: %w", key, err)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("message %s: renders empty", key)
	}
	return b.String(), nil
}

// Text renders key and falls back to the key itself, so console output never goes blank.
func (c *Catalog) Text(key string, data any) string {
	if c == nil {
		return key
	}
	s, err := c.Render(key, data)
	if err != nil {
		return key
	}
	return s
}
