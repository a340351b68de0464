// Package wildcard implements wildcard permission strings and the implication
// predicate between them.
//
// A permission string is an ordered sequence of parts separated by dots, where
// each part is a set of comma-separated subparts. The token "*" is a sentinel
// subpart meaning the whole position is satisfied:
//
//   - "posts.edit" — a single concrete permission
//   - "posts.edit,delete" — one permission covering two actions
//   - "posts.*" — any action on posts
//
// Implication is directional: the granted pattern implies the requested one
// when every requested position is covered. A granted pattern shorter than the
// request covers the remaining positions by omission:
//
//	granted, _ := wildcard.New("posts.*")
//	requested, _ := wildcard.New("posts.edit")
//	granted.Implies(requested) // true
//
//	granted, _ = wildcard.New("posts")
//	granted.Implies(requested) // true, shorter pattern absorbs the rest
//
// The wildcard token only matches by literal presence in a subpart set. It is
// not a prefix or suffix glob: "posts.ed*" is a concrete subpart named "ed*",
// not a pattern.
package wildcard
