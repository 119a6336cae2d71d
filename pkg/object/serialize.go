package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob serializes a Blob to raw bytes (identity).
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob deserializes raw bytes into a Blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// TreeObj
// ---------------------------------------------------------------------------

// MarshalTree serializes a TreeObj in the binary tree layout. Entries are
// sorted by Name bytes-wise. Each entry is
//
//	<mode> SP <name> NUL <20 raw id bytes>
func MarshalTree(tr *TreeObj) ([]byte, error) {
	sorted := make([]TreeEntry, len(tr.Entries))
	copy(sorted, tr.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	for i, e := range sorted {
		if err := ValidateEntryName(e.Name); err != nil {
			return nil, fmt.Errorf("marshal tree: %w", err)
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("marshal tree: duplicate entry %q", e.Name)
		}
		raw, err := e.Hash.Raw()
		if err != nil {
			return nil, fmt.Errorf("marshal tree entry %q: %w", e.Name, err)
		}
		mode := e.Mode
		if mode == "" {
			mode = TreeModeFile
		}
		buf.WriteString(mode)
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

// UnmarshalTree parses the binary tree layout.
func UnmarshalTree(data []byte) (*TreeObj, error) {
	tr := &TreeObj{}
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp <= 0 {
			return nil, corruptf("unmarshal tree: missing mode")
		}
		mode := string(data[:sp])
		if _, err := strconv.ParseUint(mode, 8, 32); err != nil {
			return nil, corruptf("unmarshal tree: bad mode %q", mode)
		}
		data = data[sp+1:]

		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return nil, corruptf("unmarshal tree: unterminated name")
		}
		name := string(data[:nul])
		if err := ValidateEntryName(name); err != nil {
			return nil, corruptf("unmarshal tree: %v", err)
		}
		data = data[nul+1:]

		if len(data) < HashSize {
			return nil, corruptf("unmarshal tree: short id for %q", name)
		}
		h, _ := HashFromRaw(data[:HashSize])
		data = data[HashSize:]

		tr.Entries = append(tr.Entries, TreeEntry{Mode: mode, Name: name, Hash: h})
	}
	return tr, nil
}

// ValidateEntryName reports whether name may appear in a tree.
func ValidateEntryName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty entry name")
	case name == "." || name == "..":
		return fmt.Errorf("invalid entry name %q", name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("entry name %q contains '/' or NUL", name)
	case strings.EqualFold(name, ".git"):
		return fmt.Errorf("entry name %q is reserved", name)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Ident
// ---------------------------------------------------------------------------

// String formats the identity as "Name <email> epoch tz".
func (id Ident) String() string {
	tz := id.Timezone
	if tz == "" {
		tz = "+0000"
	}
	return fmt.Sprintf("%s <%s> %d %s", id.Name, id.Email, id.When, tz)
}

// ParseIdent parses "Name <email> epoch tz". The name is everything before
// the first '<' and the email runs to the last '>', so names with spaces
// survive.
func ParseIdent(s string) (Ident, error) {
	lt := strings.IndexByte(s, '<')
	gt := strings.LastIndexByte(s, '>')
	if lt < 0 || gt < lt {
		return Ident{}, fmt.Errorf("parse ident %q: missing <email>", s)
	}
	id := Ident{
		Name:  strings.TrimSpace(s[:lt]),
		Email: s[lt+1 : gt],
	}
	fields := strings.Fields(s[gt+1:])
	if len(fields) == 0 {
		return id, nil
	}
	when, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Ident{}, fmt.Errorf("parse ident %q: bad timestamp: %w", s, err)
	}
	id.When = when
	if len(fields) > 1 {
		id.Timezone = fields[1]
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// CommitObj
// ---------------------------------------------------------------------------

// MarshalCommit serializes a CommitObj:
//
//	tree H
//	parent H     (zero or more)
//	author A
//	committer C
//
//	message
//
// Extra headers are written verbatim at the position their Before field
// records, or after committer.
func MarshalCommit(c *CommitObj) []byte {
	std := make([]ExtraHeader, 0, len(c.Parents)+3)
	std = append(std, ExtraHeader{Key: "tree", Value: string(c.TreeHash)})
	for _, p := range c.Parents {
		std = append(std, ExtraHeader{Key: "parent", Value: string(p)})
	}
	std = append(std,
		ExtraHeader{Key: "author", Value: c.Author.String()},
		ExtraHeader{Key: "committer", Value: c.Committer.String()},
	)

	var buf bytes.Buffer
	for i, h := range std {
		for _, x := range c.Extra {
			if x.Before == i+1 {
				writeHeader(&buf, x.Key, x.Value)
			}
		}
		writeHeader(&buf, h.Key, h.Value)
	}
	for _, x := range c.Extra {
		if x.Before <= 0 || x.Before > len(std) {
			writeHeader(&buf, x.Key, x.Value)
		}
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// writeHeader writes a header whose value may span lines; continuation
// lines are prefixed with a single space.
func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteByte(' ')
	buf.WriteString(strings.ReplaceAll(value, "\n", "\n "))
	buf.WriteByte('\n')
}

// UnmarshalCommit parses a CommitObj. Unknown headers are kept in Extra.
func UnmarshalCommit(data []byte) (*CommitObj, error) {
	headers, message, err := splitHeaders(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}
	c := &CommitObj{Message: message}
	var sawTree bool
	std := 0
	for _, hdr := range headers {
		switch hdr.Key {
		case "tree", "parent", "author", "committer":
			std++
		default:
			hdr.Before = std + 1
		}
		switch hdr.Key {
		case "tree":
			h, err := ParseHash(hdr.Value)
			if err != nil {
				return nil, corruptf("unmarshal commit: tree: %v", err)
			}
			c.TreeHash = h
			sawTree = true
		case "parent":
			h, err := ParseHash(hdr.Value)
			if err != nil {
				return nil, corruptf("unmarshal commit: parent: %v", err)
			}
			c.Parents = append(c.Parents, h)
		case "author":
			id, err := ParseIdent(hdr.Value)
			if err != nil {
				return nil, corruptf("unmarshal commit: author: %v", err)
			}
			c.Author = id
		case "committer":
			id, err := ParseIdent(hdr.Value)
			if err != nil {
				return nil, corruptf("unmarshal commit: committer: %v", err)
			}
			c.Committer = id
		default:
			c.Extra = append(c.Extra, hdr)
		}
	}
	if !sawTree {
		return nil, corruptf("unmarshal commit: missing tree header")
	}
	for i := range c.Extra {
		if c.Extra[i].Before > std {
			c.Extra[i].Before = 0
		}
	}
	return c, nil
}

// splitHeaders splits a header block from its message at the first blank
// line. Lines starting with a space continue the previous header.
func splitHeaders(data []byte) ([]ExtraHeader, string, error) {
	var headerBlock, message string
	if idx := bytes.Index(data, []byte("\n\n")); idx >= 0 {
		headerBlock = string(data[:idx])
		message = string(data[idx+2:])
	} else {
		headerBlock = strings.TrimSuffix(string(data), "\n")
	}

	var headers []ExtraHeader
	if headerBlock == "" {
		return headers, message, nil
	}
	for _, line := range strings.Split(headerBlock, "\n") {
		if strings.HasPrefix(line, " ") {
			if len(headers) == 0 {
				return nil, "", corruptf("continuation line before any header")
			}
			last := &headers[len(headers)-1]
			last.Value += "\n" + line[1:]
			continue
		}
		key, val, ok := strings.Cut(line, " ")
		if !ok || key == "" {
			return nil, "", corruptf("malformed header line %q", line)
		}
		headers = append(headers, ExtraHeader{Key: key, Value: val})
	}
	return headers, message, nil
}

// ---------------------------------------------------------------------------
// TagObj
// ---------------------------------------------------------------------------

// MarshalTag serializes an annotated tag. Only used to build fixtures and
// to re-encode tags received from a peer.
func MarshalTag(t *TagObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.TargetHash)
	fmt.Fprintf(&buf, "type %s\n", t.TargetType)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	if t.Tagger != "" {
		fmt.Fprintf(&buf, "tagger %s\n", t.Tagger)
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// UnmarshalTag parses an annotated tag object.
func UnmarshalTag(data []byte) (*TagObj, error) {
	headers, message, err := splitHeaders(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal tag: %w", err)
	}
	t := &TagObj{Message: message}
	for _, hdr := range headers {
		switch hdr.Key {
		case "object":
			h, err := ParseHash(hdr.Value)
			if err != nil {
				return nil, corruptf("unmarshal tag: object: %v", err)
			}
			t.TargetHash = h
		case "type":
			t.TargetType = ObjectType(hdr.Value)
		case "tag":
			t.Name = hdr.Value
		case "tagger":
			t.Tagger = hdr.Value
		}
	}
	if t.TargetHash == "" {
		return nil, corruptf("unmarshal tag: missing object header")
	}
	return t, nil
}
