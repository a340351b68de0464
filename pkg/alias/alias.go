package alias

// Kind selects the alphabet a record's fields draw their codes from.
type Kind int

const (
	// KindPermission assigns codes from the first alphabet.
	KindPermission Kind = iota
	// KindRole assigns codes from the second, non-overlapping alphabet.
	KindRole
)

// alphabets holds the ordered single-character codes per kind. The ranges are
// disjoint and both skip "r", which is reserved for the roles-relation key.
var alphabets = map[Kind]string{
	KindPermission: "abcdefgh",
	KindRole:       "jklmnop",
}

// Codec assigns and applies single-character aliases for record field names.
// A Codec built with New encodes (field name to code); a Codec built with
// FromTable decodes (code to field name). Codec is not safe for concurrent
// mutation; build it once per cache load.
type Codec struct {
	table    map[string]string
	assigned map[Kind]int
	excluded map[string]struct{}
}

// New creates an encoding Codec. Fields listed in excluded are never assigned
// a code and are dropped by Encode.
func New(excluded ...string) *Codec {
	ex := make(map[string]struct{}, len(excluded))
	for _, field := range excluded {
		ex[field] = struct{}{}
	}
	return &Codec{
		table:    make(map[string]string),
		assigned: make(map[Kind]int),
		excluded: ex,
	}
}

// FromTable creates a decoding Codec from a code-to-name table, as stored in
// a cache entry.
func FromTable(table map[string]string) *Codec {
	t := make(map[string]string, len(table))
	for code, name := range table {
		t[code] = name
	}
	return &Codec{table: t, assigned: make(map[Kind]int)}
}

// Assign gives the next unused code from the kind's alphabet to each field
// that has no alias yet and is not excluded, in the order given. Fields beyond
// the alphabet keep their own name. Afterwards any excluded field that leaked
// into the table is pruned.
func (c *Codec) Assign(kind Kind, fields []string) {
	alphabet := alphabets[kind]

	for _, field := range fields {
		if _, ok := c.excluded[field]; ok {
			continue
		}
		if _, ok := c.table[field]; ok {
			continue
		}

		if i := c.assigned[kind]; i < len(alphabet) {
			c.table[field] = string(alphabet[i])
			c.assigned[kind] = i + 1
		} else {
			c.table[field] = field
		}
	}

	for field := range c.excluded {
		delete(c.table, field)
	}
}

// Reserve pins an explicit alias, bypassing the alphabets. Used for the
// roles-relation key, which must keep a fixed code across loads.
func (c *Codec) Reserve(field, code string) {
	c.table[field] = code
}

// Encode projects the record to its non-excluded fields and renames each via
// the alias table. Fields without an alias keep their original name.
func (c *Codec) Encode(record map[string]any) map[string]any {
	encoded := make(map[string]any, len(record))
	for field, value := range record {
		if _, ok := c.excluded[field]; ok {
			continue
		}
		encoded[c.rename(field)] = value
	}
	return encoded
}

// Decode renames each field of the record via the table. Unknown codes pass
// through unchanged. Only meaningful on a Codec built with FromTable.
func (c *Codec) Decode(record map[string]any) map[string]any {
	decoded := make(map[string]any, len(record))
	for code, value := range record {
		decoded[c.rename(code)] = value
	}
	return decoded
}

// Table returns the inverted table (code to field name) for embedding in a
// cache entry.
func (c *Codec) Table() map[string]string {
	flipped := make(map[string]string, len(c.table))
	for field, code := range c.table {
		flipped[code] = field
	}
	return flipped
}

func (c *Codec) rename(field string) string {
	if renamed, ok := c.table[field]; ok {
		return renamed
	}
	return field
}
