package object

// Hash is a 40-character lowercase hex-encoded SHA-1 digest.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
	TypeTag    ObjectType = "tag"
)

// Valid reports whether t is one of the four storable kinds.
func (t ObjectType) Valid() bool {
	switch t {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
		return true
	}
	return false
}

const (
	// Tree mode constants, matching Git's canonical mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object.
type TreeEntry struct {
	Mode string
	Name string
	Hash Hash
}

// IsDir reports whether the entry references a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Mode == TreeModeDir
}

// TreeObj holds a list of tree entries sorted by Name.
type TreeObj struct {
	Entries []TreeEntry
}

// Ident is the author or committer of a commit: "Name <email> epoch tz".
type Ident struct {
	Name     string
	Email    string
	When     int64  // seconds since the Unix epoch
	Timezone string // e.g. "+0000", "-0700"
}

// ExtraHeader is a commit header line the codec does not interpret. It is
// preserved verbatim when the commit is rewritten.
type ExtraHeader struct {
	Key   string
	Value string

	// Before, when non-zero, places the header ahead of the Before-th
	// standard header (1-based, in the order tree, parents, author,
	// committer). Zero writes it after committer.
	Before int
}

// CommitObj represents a commit pointing to a tree with metadata.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    Ident
	Committer Ident
	Extra     []ExtraHeader
	Message   string
}

// TagObj is an annotated tag. Tags are read and transferred but never
// created by this package.
type TagObj struct {
	TargetHash Hash
	TargetType ObjectType
	Name       string
	Tagger     string
	Message    string
}
