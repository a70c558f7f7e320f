package notes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
)

// LoadFile reads notes from a JSON, YAML or TOML file, chosen by extension.
// The file holds either a list of notes or an object with a "notes" list;
// TOML only allows the latter ([[notes]] tables). Notes
// without an ID get their 1-based position as ID. A file where two notes end
// up with the same ID is rejected.
func LoadFile(path string) ([]Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading notes file %s: %w", path, err)
	}
	ns, err := parseNotes(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("parsing notes file %s: %w", path, err)
	}
	seen := make(map[string]int, len(ns))
	for i := range ns {
		if ns[i].ID == "" {
			ns[i].ID = strconv.Itoa(i + 1)
		}
		if first, ok := seen[ns[i].ID]; ok {
			return nil, fmt.Errorf("%w: notes file %s: notes %d and %d share id %q",
				apperrors.ErrInvalidInput, path, first+1, i+1, ns[i].ID)
		}
		seen[ns[i].ID] = i
		if ns[i].Tags == nil {
			ns[i].Tags = []Tag{}
		}
	}
	return ns, nil
}

type notesFile struct {
	Notes []Note `json:"notes" yaml:"notes" toml:"notes"`
}

func parseNotes(data []byte, ext string) ([]Note, error) {
	if ext == ".toml" {
		var wrapped notesFile
		if err := toml.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Notes, nil
	}
	unmarshal := json.Unmarshal
	if ext == ".yaml" || ext == ".yml" {
		unmarshal = yaml.Unmarshal
	}
	var list []Note
	if err := unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped notesFile
	if err := unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Notes, nil
}
