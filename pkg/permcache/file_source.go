package permcache

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// FileSource loads the permission graph from a YAML document. Intended for
// development setups and fixtures where running Postgres is overkill. The
// file is re-read on every Load, so Forget picks up edits.
//
// Document shape:
//
//	roles:
//	  - name: editor
//	    guard: web
//	    team_id: acme        # optional
//	permissions:
//	  - name: posts.edit
//	    guard: web
//	    roles: [editor]
type FileSource struct {
	path string
}

// NewFileSource creates a source reading from the given YAML file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type fileDocument struct {
	Roles []struct {
		ID     string  `yaml:"id"`
		Name   string  `yaml:"name"`
		Guard  string  `yaml:"guard"`
		TeamID *string `yaml:"team_id"`
	} `yaml:"roles"`
	Permissions []struct {
		ID    string   `yaml:"id"`
		Name  string   `yaml:"name"`
		Guard string   `yaml:"guard"`
		Roles []string `yaml:"roles"`
	} `yaml:"permissions"`
}

// Load parses the file into the permission graph. Role references are
// resolved by name within the permission's guard; a reference to an
// undeclared role is ErrRoleNotFound.
func (s *FileSource) Load(ctx context.Context) ([]Permission, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrSourceUnavailable, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Join(ErrSourceUnavailable, err)
	}

	roles := make(map[string]*Role, len(doc.Roles))
	for _, raw := range doc.Roles {
		id, err := parseOrNewID(raw.ID)
		if err != nil {
			return nil, fmt.Errorf("permcache: role %q: %w", raw.Name, err)
		}
		roles[roleKey(raw.Name, raw.Guard)] = &Role{
			ID:     id,
			Name:   raw.Name,
			Guard:  raw.Guard,
			TeamID: raw.TeamID,
		}
	}

	permissions := make([]Permission, 0, len(doc.Permissions))
	for _, raw := range doc.Permissions {
		id, err := parseOrNewID(raw.ID)
		if err != nil {
			return nil, fmt.Errorf("permcache: permission %q: %w", raw.Name, err)
		}

		p := Permission{ID: id, Name: raw.Name, Guard: raw.Guard}
		for _, roleName := range raw.Roles {
			role, ok := roles[roleKey(roleName, raw.Guard)]
			if !ok {
				return nil, fmt.Errorf("%w: %s/%s referenced by %s",
					ErrRoleNotFound, roleName, raw.Guard, raw.Name)
			}
			p.Roles = append(p.Roles, role)
		}
		permissions = append(permissions, p)
	}

	return permissions, nil
}

func roleKey(name, guard string) string {
	return name + "\x00" + guard
}

func parseOrNewID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(raw)
}
