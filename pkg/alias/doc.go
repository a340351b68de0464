// Package alias provides a reversible field-name codec used to shrink
// serialized cache payloads. Long field names are renamed to single-character
// codes on the way into the cache and restored on the way out.
//
// Codes are drawn from two disjoint alphabets, one per record kind, so
// permission-field codes can never collide with role-field codes even though
// both live in one table. Fields in the exclusion set are never assigned a
// code and are dropped from encoded records.
//
//	codec := alias.New("created_at", "updated_at")
//	codec.Assign(alias.KindPermission, []string{"id", "name", "guard"})
//
//	compact := codec.Encode(map[string]any{"id": 1, "name": "posts.edit", "created_at": now})
//	// map[a:1 b:posts.edit]
//
//	restored := alias.FromTable(codec.Table()).Decode(compact)
//	// map[id:1 name:posts.edit]
//
// The table is rebuilt every time the cache is repopulated; codes are only
// stable within a single load cycle.
package alias
