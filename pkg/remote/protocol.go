package remote

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/pktline"
	"github.com/odvcencio/gitcore/pkg/repo"
)

const (
	// UploadPackService is the command a client sends to fetch.
	UploadPackService = "git-upload-pack"
	// ReceivePackService is the command a client sends to push.
	ReceivePackService = "git-receive-pack"

	// ProtocolVersion is the only protocol version spoken.
	ProtocolVersion = "1"

	// DefaultPort is the TCP port assumed when an endpoint omits one.
	DefaultPort = 9418

	capsTerminator = "capabilities^{}"
)

// Capability names.
const (
	CapMultiAck     = "multi_ack"
	CapSideBand64k  = "side-band-64k"
	CapOfsDelta     = "ofs-delta"
	CapIncludeTag   = "include-tag"
	CapReportStatus = "report-status"
	CapDeleteRefs   = "delete-refs"
	CapAgent        = "agent"
	CapSymref       = "symref"
)

// Agent identifies this implementation in capability lists.
const Agent = "gitcore/1"

// RemoteError is a failure reported by the peer in an "ERR" packet or on
// side-band channel 3.
type RemoteError = pktline.RemoteError

// Capabilities is a set of protocol capability tokens. Tokens may carry a
// value ("agent=x"); lookups are by the part before '='.
type Capabilities struct {
	set map[string]string
}

// NewCapabilities builds a set from tokens.
func NewCapabilities(tokens ...string) Capabilities {
	caps := Capabilities{set: make(map[string]string, len(tokens))}
	for _, tok := range tokens {
		caps.Add(tok)
	}
	return caps
}

// ParseCapabilities parses a space-separated capability list.
func ParseCapabilities(raw string) Capabilities {
	return NewCapabilities(strings.Fields(raw)...)
}

// Add inserts a token.
func (c *Capabilities) Add(token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	if c.set == nil {
		c.set = make(map[string]string)
	}
	name, value, _ := strings.Cut(token, "=")
	c.set[name] = value
}

// Has returns true if the capability is present.
func (c Capabilities) Has(name string) bool {
	_, ok := c.set[name]
	return ok
}

// Value returns the value of a "name=value" capability.
func (c Capabilities) Value(name string) (string, bool) {
	v, ok := c.set[name]
	return v, ok
}

// Intersect returns capabilities present in both sets, with the values of c.
func (c Capabilities) Intersect(other Capabilities) Capabilities {
	result := Capabilities{set: make(map[string]string)}
	for k, v := range c.set {
		if _, ok := other.set[k]; ok {
			result.set[k] = v
		}
	}
	return result
}

// String returns the sorted space-separated token list.
func (c Capabilities) String() string {
	names := make([]string, 0, len(c.set))
	for k, v := range c.set {
		if v != "" {
			k += "=" + v
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

// UploadPackCapabilities are advertised by the fetch side.
func UploadPackCapabilities() Capabilities {
	return NewCapabilities(CapMultiAck, CapSideBand64k, CapOfsDelta, CapIncludeTag, CapAgent+"="+Agent)
}

// ReceivePackCapabilities are advertised by the push side. multi_ack is
// kept for wire compatibility with existing peers.
func ReceivePackCapabilities() Capabilities {
	return NewCapabilities(CapMultiAck, CapSideBand64k, CapOfsDelta, CapReportStatus, CapDeleteRefs, CapAgent+"="+Agent)
}

// Request is the first pkt-line of a connection.
type Request struct {
	Service string
	Repo    string
	Host    string
}

// Encode returns the request line
// "<service> /<repo>\0host=<host>\0\0version=1\0".
func (r Request) Encode() string {
	return fmt.Sprintf("%s /%s\x00host=%s\x00\x00version=%s\x00",
		r.Service, strings.TrimPrefix(r.Repo, "/"), r.Host, ProtocolVersion)
}

// ParseRequest decodes a request line.
func ParseRequest(line []byte) (Request, error) {
	cmd, rest, _ := strings.Cut(string(line), "\x00")
	service, path, ok := strings.Cut(cmd, " ")
	if !ok {
		return Request{}, pktline.Errorf("malformed request %q", cmd)
	}
	switch service {
	case UploadPackService, ReceivePackService:
	default:
		return Request{}, pktline.Errorf("unknown service %q", service)
	}
	req := Request{Service: service, Repo: strings.TrimPrefix(path, "/")}
	if req.Repo == "" {
		return Request{}, pktline.Errorf("request names no repository")
	}
	for _, field := range strings.Split(rest, "\x00") {
		switch {
		case strings.HasPrefix(field, "host="):
			req.Host = strings.TrimPrefix(field, "host=")
		case strings.HasPrefix(field, "version="):
			if v := strings.TrimPrefix(field, "version="); v != ProtocolVersion {
				return Request{}, pktline.Errorf("unsupported protocol version %q", v)
			}
		}
	}
	return req, nil
}

// Advertisement is the server's ref listing.
type Advertisement struct {
	Refs []repo.Ref
	Caps Capabilities
}

// Lookup returns the advertised id for a full ref name.
func (a *Advertisement) Lookup(name string) (object.Hash, bool) {
	for _, ref := range a.Refs {
		if ref.Name == name {
			return ref.Hash, true
		}
	}
	return "", false
}

// HeadBranch returns the branch the remote HEAD points at. It prefers the
// symref capability and falls back to the first branch whose id matches
// HEAD.
func (a *Advertisement) HeadBranch() string {
	if v, ok := a.Caps.Value(CapSymref); ok {
		if target, ok := strings.CutPrefix(v, "HEAD:refs/heads/"); ok {
			return target
		}
	}
	head, ok := a.Lookup("HEAD")
	if !ok {
		return ""
	}
	for _, ref := range a.Refs {
		if name, ok := strings.CutPrefix(ref.Name, "refs/heads/"); ok && ref.Hash == head {
			return name
		}
	}
	return ""
}

// WriteAdvertisement sends "version 1", one line per ref with the
// capabilities after a NUL on the first, and a flush. An empty repository
// advertises the zero id as "capabilities^{}".
func WriteAdvertisement(pw *pktline.Writer, adv *Advertisement) error {
	if err := pw.Writef("version %s\n", ProtocolVersion); err != nil {
		return err
	}
	caps := adv.Caps.String()
	if len(adv.Refs) == 0 {
		if err := pw.Writef("%s %s\x00%s\n", object.ZeroHash, capsTerminator, caps); err != nil {
			return err
		}
		return pw.Flush()
	}
	for i, ref := range adv.Refs {
		var err error
		if i == 0 {
			err = pw.Writef("%s %s\x00%s\n", ref.Hash, ref.Name, caps)
		} else {
			err = pw.Writef("%s %s\n", ref.Hash, ref.Name)
		}
		if err != nil {
			return err
		}
	}
	return pw.Flush()
}

// ReadAdvertisement reads a ref advertisement up to its flush.
func ReadAdvertisement(pr *pktline.Reader) (*Advertisement, error) {
	adv := &Advertisement{Caps: NewCapabilities()}
	first := true
	for {
		if !pr.Next() {
			return nil, fmt.Errorf("read advertisement: %w", pr.Err())
		}
		if pr.Type() == pktline.Flush {
			return adv, nil
		}
		line, err := pr.Text()
		if err != nil {
			return nil, err
		}
		if msg, ok := strings.CutPrefix(line, "ERR "); ok {
			return nil, &RemoteError{Message: msg}
		}
		if first && line == "version "+ProtocolVersion {
			continue
		}
		refPart := line
		if first {
			var capsPart string
			refPart, capsPart, _ = strings.Cut(line, "\x00")
			adv.Caps = ParseCapabilities(capsPart)
			first = false
		}
		hexID, name, ok := strings.Cut(refPart, " ")
		if !ok {
			return nil, pktline.Errorf("malformed ref line %q", refPart)
		}
		h, err := object.ParseHash(hexID)
		if err != nil {
			return nil, pktline.Errorf("malformed ref line %q: %v", refPart, err)
		}
		if name == capsTerminator && h.IsZero() {
			continue
		}
		adv.Refs = append(adv.Refs, repo.Ref{Name: name, Hash: h})
	}
}

// UploadRequest is the client half of the fetch negotiation.
type UploadRequest struct {
	Wants []object.Hash
	Haves []object.Hash
	Caps  Capabilities
}

// WriteUploadRequest sends the want lines (capabilities on the first), a
// flush, the have lines and "done". A request without wants is just a
// flush, ending the conversation.
func WriteUploadRequest(pw *pktline.Writer, req *UploadRequest) error {
	for i, h := range req.Wants {
		var err error
		if i == 0 && len(req.Caps.set) > 0 {
			err = pw.Writef("want %s %s\n", h, req.Caps)
		} else {
			err = pw.Writef("want %s\n", h)
		}
		if err != nil {
			return err
		}
	}
	if err := pw.Flush(); err != nil {
		return err
	}
	if len(req.Wants) == 0 {
		return nil
	}
	for _, h := range req.Haves {
		if err := pw.Writef("have %s\n", h); err != nil {
			return err
		}
	}
	return pw.WriteString("done\n")
}

// ReadUploadRequest reads an UploadRequest. It returns a request with no
// wants when the client ends the conversation after the advertisement.
func ReadUploadRequest(pr *pktline.Reader) (*UploadRequest, error) {
	req := &UploadRequest{Caps: NewCapabilities()}
	for {
		if !pr.Next() {
			err := pr.Err()
			if errors.Is(err, io.EOF) && len(req.Wants) == 0 {
				return req, nil
			}
			return nil, err
		}
		if pr.Type() == pktline.Flush {
			break
		}
		line, err := pr.Text()
		if err != nil {
			return nil, err
		}
		rest, ok := strings.CutPrefix(line, "want ")
		if !ok {
			return nil, pktline.Errorf("expected want, got %q", line)
		}
		hexID, caps, _ := strings.Cut(rest, " ")
		h, err := object.ParseHash(hexID)
		if err != nil {
			return nil, pktline.Errorf("bad want %q: %v", line, err)
		}
		if len(req.Wants) == 0 {
			req.Caps = ParseCapabilities(caps)
		}
		req.Wants = append(req.Wants, h)
	}
	if len(req.Wants) == 0 {
		return req, nil
	}

	for {
		if !pr.Next() {
			return nil, fmt.Errorf("read haves: %w", pr.Err())
		}
		if pr.Type() == pktline.Flush {
			continue
		}
		line, err := pr.Text()
		if err != nil {
			return nil, err
		}
		if line == "done" {
			return req, nil
		}
		rest, ok := strings.CutPrefix(line, "have ")
		if !ok {
			return nil, pktline.Errorf("expected have or done, got %q", line)
		}
		h, err := object.ParseHash(rest)
		if err != nil {
			return nil, pktline.Errorf("bad have %q: %v", line, err)
		}
		req.Haves = append(req.Haves, h)
	}
}

// Command is one ref change of a push.
type Command struct {
	Old  object.Hash
	New  object.Hash
	Name string
}

// IsDelete reports whether the command removes the ref.
func (c Command) IsDelete() bool { return c.New.IsZero() }

func (c Command) oldID() object.Hash {
	if c.Old.IsZero() {
		return object.ZeroHash
	}
	return c.Old
}

func (c Command) newID() object.Hash {
	if c.New.IsZero() {
		return object.ZeroHash
	}
	return c.New
}

// WriteCommands sends "<old> <new> <ref>" lines, the first carrying the
// capabilities after a NUL, then a flush.
func WriteCommands(pw *pktline.Writer, cmds []Command, caps Capabilities) error {
	for i, c := range cmds {
		var err error
		if i == 0 {
			err = pw.Writef("%s %s %s\x00%s\n", c.oldID(), c.newID(), c.Name, caps)
		} else {
			err = pw.Writef("%s %s %s\n", c.oldID(), c.newID(), c.Name)
		}
		if err != nil {
			return err
		}
	}
	return pw.Flush()
}

// ReadCommands reads push commands up to the flush.
func ReadCommands(pr *pktline.Reader) ([]Command, Capabilities, error) {
	var cmds []Command
	caps := NewCapabilities()
	for {
		if !pr.Next() {
			err := pr.Err()
			if errors.Is(err, io.EOF) && len(cmds) == 0 {
				return nil, caps, nil
			}
			return nil, caps, err
		}
		if pr.Type() == pktline.Flush {
			return cmds, caps, nil
		}
		line, err := pr.Text()
		if err != nil {
			return nil, caps, err
		}
		if len(cmds) == 0 {
			var capsPart string
			line, capsPart, _ = strings.Cut(line, "\x00")
			caps = ParseCapabilities(capsPart)
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 {
			return nil, caps, pktline.Errorf("malformed command %q", line)
		}
		oldID, err := object.ParseHash(fields[0])
		if err != nil {
			return nil, caps, pktline.Errorf("malformed command %q: %v", line, err)
		}
		newID, err := object.ParseHash(fields[1])
		if err != nil {
			return nil, caps, pktline.Errorf("malformed command %q: %v", line, err)
		}
		cmds = append(cmds, Command{Old: oldID, New: newID, Name: fields[2]})
	}
}

// RefStatus is the outcome of one command. An empty Reason means ok.
type RefStatus struct {
	Name   string
	Reason string
}

// Report is the report-status message of a push.
type Report struct {
	UnpackError string
	Refs        []RefStatus
}

// Err returns nil when everything succeeded, otherwise an error joining a
// *PushRejectedError per rejected ref.
func (r *Report) Err() error {
	var errs []error
	if r.UnpackError != "" {
		errs = append(errs, fmt.Errorf("unpack failed: %s", r.UnpackError))
	}
	for _, st := range r.Refs {
		if st.Reason != "" {
			errs = append(errs, &PushRejectedError{Ref: st.Name, Reason: st.Reason})
		}
	}
	return errors.Join(errs...)
}

// EncodeReport renders the report as a pkt-line stream ending with a flush.
func EncodeReport(r *Report) ([]byte, error) {
	var buf []byte
	var err error
	add := func(s string) {
		if err == nil {
			buf, err = pktline.Append(buf, []byte(s))
		}
	}
	if r.UnpackError == "" {
		add("unpack ok\n")
	} else {
		add("unpack " + oneLine(r.UnpackError) + "\n")
	}
	for _, st := range r.Refs {
		if st.Reason == "" {
			add("ok " + st.Name + "\n")
		} else {
			add("ng " + st.Name + " " + oneLine(st.Reason) + "\n")
		}
	}
	if err != nil {
		return nil, err
	}
	return pktline.AppendFlush(buf), nil
}

// ReadReport decodes a report-status stream.
func ReadReport(pr *pktline.Reader) (*Report, error) {
	line, err := pr.ReadText()
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	status, ok := strings.CutPrefix(line, "unpack ")
	if !ok {
		return nil, pktline.Errorf("expected unpack status, got %q", line)
	}
	rep := &Report{}
	if status != "ok" {
		rep.UnpackError = status
	}
	for {
		if !pr.Next() {
			return nil, fmt.Errorf("read report: %w", pr.Err())
		}
		if pr.Type() == pktline.Flush {
			return rep, nil
		}
		line, err := pr.Text()
		if err != nil {
			return nil, err
		}
		switch {
		case strings.HasPrefix(line, "ok "):
			rep.Refs = append(rep.Refs, RefStatus{Name: strings.TrimPrefix(line, "ok ")})
		case strings.HasPrefix(line, "ng "):
			name, reason, _ := strings.Cut(strings.TrimPrefix(line, "ng "), " ")
			if reason == "" {
				reason = "rejected"
			}
			rep.Refs = append(rep.Refs, RefStatus{Name: name, Reason: reason})
		default:
			return nil, pktline.Errorf("unexpected report line %q", line)
		}
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// rejectReasons are the errors a push rejection reason maps back to.
var rejectReasons = []error{
	repo.ErrStaleRef,
	repo.ErrBusyBranch,
	repo.ErrAtomicRejected,
	object.ErrNotFound,
}

// RejectReason renders err as the reason of an "ng" line. Known kinds are
// sent as their bare message so the client can map them back.
func RejectReason(err error) string {
	for _, known := range rejectReasons {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return oneLine(err.Error())
}

// PushRejectedError is a ref the server refused to update.
type PushRejectedError struct {
	Ref    string
	Reason string
}

func (e *PushRejectedError) Error() string {
	return fmt.Sprintf("push %s rejected: %s", e.Ref, e.Reason)
}

// Unwrap maps well-known reasons to their error kinds, so
// errors.Is(err, repo.ErrStaleRef) works across the wire.
func (e *PushRejectedError) Unwrap() error {
	for _, known := range rejectReasons {
		if e.Reason == known.Error() {
			return known
		}
	}
	return nil
}

// ReadPackData reads a pack stream into memory, failing once it exceeds
// limit bytes. A limit of zero or less means no limit.
func ReadPackData(r io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	if limit > 0 && int64(buf.Len()) > limit {
		return nil, fmt.Errorf("pack exceeds %d bytes", limit)
	}
	return buf.Bytes(), nil
}
