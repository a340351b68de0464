package permcache

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Known wire field names for permission and role records. Anything else
// travels through the Extra bag untouched.
const (
	fieldID     = "id"
	fieldName   = "name"
	fieldGuard  = "guard"
	fieldTeamID = "team_id"

	// rolesField is the relation key on a permission record; rolesAlias is its
	// reserved single-character code in the cache entry.
	rolesField = "roles"
	rolesAlias = "r"
)

// defaultExcludedFields are record fields irrelevant to authorization
// decisions and never serialized into the cache entry.
var defaultExcludedFields = []string{"created_at", "updated_at", "deleted_at"}

// Permission is a named permission scoped to a guard, with the roles it is
// attached to. Instances hydrated by the Registrar are shared and must be
// treated as immutable.
type Permission struct {
	ID    uuid.UUID
	Name  string
	Guard string
	Roles []*Role

	// Extra carries unrecognized record fields across the cache boundary.
	Extra map[string]any
}

// Role is a named role scoped to a guard, optionally bound to a team. A nil
// TeamID means the role is global.
type Role struct {
	ID     uuid.UUID
	Name   string
	Guard  string
	TeamID *string

	// Extra carries unrecognized record fields across the cache boundary.
	Extra map[string]any
}

// HasRole reports whether the permission is attached to a role with the given
// name.
func (p *Permission) HasRole(name string) bool {
	for _, role := range p.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// attribute resolves a filterable attribute by name: the known fields first,
// then the Extra bag.
func (p *Permission) attribute(name string) (any, bool) {
	switch name {
	case fieldID:
		return p.ID, true
	case fieldName:
		return p.Name, true
	case fieldGuard:
		return p.Guard, true
	}
	v, ok := p.Extra[name]
	return v, ok
}

// cacheEntry is the serialized unit stored in the backing cache store. Alias
// maps single-character codes back to canonical field names and must be
// non-empty; an entry without it is treated as a stale format.
type cacheEntry struct {
	Alias       map[string]string `json:"alias"`
	Permissions []map[string]any  `json:"permissions"`
	Roles       []map[string]any  `json:"roles"`
}

// permissionRecord flattens a permission into a wire record, also returning
// the field names in canonical order for alias assignment. The roles relation
// is not part of the record.
func permissionRecord(p *Permission) ([]string, map[string]any) {
	fields := []string{fieldID, fieldName, fieldGuard}
	record := map[string]any{
		fieldID:    p.ID.String(),
		fieldName:  p.Name,
		fieldGuard: p.Guard,
	}
	appendExtra(&fields, record, p.Extra)
	return fields, record
}

// roleRecord flattens a role into a wire record. The team field is present
// only when the role is team-bound, keeping global roles compact.
func roleRecord(r *Role) ([]string, map[string]any) {
	fields := []string{fieldID, fieldName, fieldGuard}
	record := map[string]any{
		fieldID:    r.ID.String(),
		fieldName:  r.Name,
		fieldGuard: r.Guard,
	}
	if r.TeamID != nil {
		fields = append(fields, fieldTeamID)
		record[fieldTeamID] = *r.TeamID
	}
	appendExtra(&fields, record, r.Extra)
	return fields, record
}

func appendExtra(fields *[]string, record map[string]any, extra map[string]any) {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		*fields = append(*fields, k)
		record[k] = extra[k]
	}
}

// permissionFromRecord rebuilds a Permission from a decoded wire record.
// Unknown fields land in Extra.
func permissionFromRecord(record map[string]any) (*Permission, error) {
	id, err := recordID(record)
	if err != nil {
		return nil, err
	}

	p := &Permission{
		ID:    id,
		Name:  stringField(record, fieldName),
		Guard: stringField(record, fieldGuard),
	}
	p.Extra = extraFields(record, fieldID, fieldName, fieldGuard)
	return p, nil
}

// roleFromRecord rebuilds a Role from a decoded wire record.
func roleFromRecord(record map[string]any) (*Role, error) {
	id, err := recordID(record)
	if err != nil {
		return nil, err
	}

	r := &Role{
		ID:    id,
		Name:  stringField(record, fieldName),
		Guard: stringField(record, fieldGuard),
	}
	if v, ok := record[fieldTeamID]; ok && v != nil {
		team := fmt.Sprint(v)
		r.TeamID = &team
	}
	r.Extra = extraFields(record, fieldID, fieldName, fieldGuard, fieldTeamID)
	return r, nil
}

func recordID(record map[string]any) (uuid.UUID, error) {
	raw, ok := record[fieldID]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: record without id", errStaleFormat)
	}
	id, err := uuid.Parse(fmt.Sprint(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", errStaleFormat, err)
	}
	return id, nil
}

func stringField(record map[string]any, field string) string {
	if v, ok := record[field]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func extraFields(record map[string]any, known ...string) map[string]any {
	extra := make(map[string]any)
	for k, v := range record {
		skip := false
		for _, field := range known {
			if k == field {
				skip = true
				break
			}
		}
		if !skip {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

// clonePermission deep-copies a permission and its roles for sources that
// must not leak internal state.
func clonePermission(p Permission) Permission {
	out := p
	out.Extra = cloneMap(p.Extra)
	out.Roles = make([]*Role, len(p.Roles))
	for i, role := range p.Roles {
		r := *role
		r.Extra = cloneMap(role.Extra)
		if role.TeamID != nil {
			team := *role.TeamID
			r.TeamID = &team
		}
		out.Roles[i] = &r
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
