package object

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// ObjectReader is the read side of an object database.
type ObjectReader interface {
	Has(h Hash) bool
	Read(h Hash) (ObjectType, []byte, error)
}

// ObjectWriter stores objects and returns their ids.
type ObjectWriter interface {
	Write(objType ObjectType, data []byte) (Hash, error)
}

// Store is a content-addressed object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123... Each file holds the zlib
// stream of "type len\0content".
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory. The objects/
// subdirectory is created lazily on first write.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the directory that contains objects/.
func (s *Store) Root() string { return s.root }

// objectPath returns the filesystem path for a given hash.
func (s *Store) objectPath(h Hash) (string, error) {
	if parsed, err := ParseHash(string(h)); err != nil || parsed != h {
		return "", fmt.Errorf("object path: invalid id %q", string(h))
	}
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:])), nil
}

// Has reports whether the store contains an object with the given hash.
func (s *Store) Has(h Hash) bool {
	p, err := s.objectPath(h)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Write stores an object and returns its content hash. Writing an id that
// already exists is a no-op. Writes are atomic: data is written to a temp
// file and then renamed into place.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	if !objType.Valid() {
		return "", fmt.Errorf("object write: unsupported type %q", objType)
	}
	h := HashObject(objType, data)
	if s.Has(h) {
		return h, nil
	}

	raw := append(envelopeHeader(objType, len(data)), data...)
	compressed, err := Compress(raw)
	if err != nil {
		return "", fmt.Errorf("object write %s: %w", h, err)
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}

	dest := filepath.Join(dir, string(h[2:]))
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}
	return h, nil
}

// Read retrieves an object by hash, returning its type and raw content.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	p, err := s.objectPath(h)
	if err != nil {
		return "", nil, fmt.Errorf("object read: %w: %w", ErrNotFound, err)
	}
	compressed, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("object read %s: %w", h, ErrNotFound)
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	raw, err := Decompress(compressed)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w", h, asCorrupt(err))
	}
	objType, content, err := parseEnvelope(raw)
	if err != nil {
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}
	return objType, content, nil
}

// parseEnvelope splits "type len\0content" and checks the declared length.
func parseEnvelope(raw []byte) (ObjectType, []byte, error) {
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return "", nil, corruptf("invalid format (no NUL)")
	}
	header := raw[:nul]
	content := raw[nul+1:]

	sp := bytes.IndexByte(header, ' ')
	if sp < 0 {
		return "", nil, corruptf("invalid header %q", header)
	}
	objType := ObjectType(header[:sp])
	if !objType.Valid() {
		return "", nil, corruptf("unknown type %q", objType)
	}
	length, err := strconv.Atoi(string(header[sp+1:]))
	if err != nil || length < 0 {
		return "", nil, corruptf("invalid length %q", header[sp+1:])
	}
	if len(content) != length {
		return "", nil, corruptf("length mismatch (header=%d, actual=%d)", length, len(content))
	}
	return objType, content, nil
}

// ---------------------------------------------------------------------------
// Typed convenience methods
// ---------------------------------------------------------------------------

// readTyped reads h and checks that it has the wanted type.
func readTyped(r ObjectReader, h Hash, want ObjectType) ([]byte, error) {
	objType, data, err := r.Read(h)
	if err != nil {
		return nil, err
	}
	if objType != want {
		return nil, fmt.Errorf("object %s: type mismatch: got %q, want %q", h, objType, want)
	}
	return data, nil
}

// WriteBlob serializes and stores a Blob.
func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

// ReadBlob reads and deserializes a Blob.
func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := readTyped(s, h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return UnmarshalBlob(data)
}

// WriteTree serializes and stores a TreeObj.
func (s *Store) WriteTree(tr *TreeObj) (Hash, error) {
	data, err := MarshalTree(tr)
	if err != nil {
		return "", err
	}
	return s.Write(TypeTree, data)
}

// ReadTree reads and deserializes a TreeObj.
func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	return ReadTree(s, h)
}

// ReadTree reads a tree from any ObjectReader.
func ReadTree(r ObjectReader, h Hash) (*TreeObj, error) {
	data, err := readTyped(r, h, TypeTree)
	if err != nil {
		return nil, err
	}
	tr, err := UnmarshalTree(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", h, err)
	}
	return tr, nil
}

// WriteCommit serializes and stores a CommitObj.
func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	return s.Write(TypeCommit, MarshalCommit(c))
}

// ReadCommit reads and deserializes a CommitObj.
func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	return ReadCommit(s, h)
}

// ReadCommit reads a commit from any ObjectReader.
func ReadCommit(r ObjectReader, h Hash) (*CommitObj, error) {
	data, err := readTyped(r, h, TypeCommit)
	if err != nil {
		return nil, err
	}
	c, err := UnmarshalCommit(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", h, err)
	}
	return c, nil
}

// ReadTag reads and deserializes an annotated tag.
func (s *Store) ReadTag(h Hash) (*TagObj, error) {
	data, err := readTyped(s, h, TypeTag)
	if err != nil {
		return nil, err
	}
	return UnmarshalTag(data)
}
