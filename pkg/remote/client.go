package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/odvcencio/gitcore/pkg/object"
	"github.com/odvcencio/gitcore/pkg/pktline"
)

// ClientOptions configures the transport client.
type ClientOptions struct {
	DialTimeout  time.Duration // per-attempt connect timeout (default 10s)
	MaxAttempts  int           // dial attempts (default 3)
	RetryBackoff time.Duration // delay before the first retry (default 200ms)
	MaxPackBytes int64         // largest pack accepted on fetch (default 2GiB)

	// Progress receives side-band progress messages. It may be nil.
	Progress func(msg string)
}

const defaultMaxPackBytes = 2 << 30

// Client talks to a single repository endpoint.
type Client struct {
	endpoint Endpoint
	dialer   net.Dialer
	opts     ClientOptions
}

// NewClient creates a client for remoteURL. Zero-valued option fields get
// defaults.
func NewClient(remoteURL string, opts ClientOptions) (*Client, error) {
	endpoint, err := ParseEndpoint(remoteURL)
	if err != nil {
		return nil, err
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	if opts.MaxPackBytes <= 0 {
		opts.MaxPackBytes = defaultMaxPackBytes
	}
	return &Client{
		endpoint: endpoint,
		dialer:   net.Dialer{Timeout: opts.DialTimeout},
		opts:     opts,
	}, nil
}

// Endpoint returns the parsed endpoint.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// session is one connection after the ref advertisement.
type session struct {
	conn net.Conn
	pr   *pktline.Reader
	pw   *pktline.Writer
	adv  *Advertisement
	stop func() bool
}

func (c *Client) connect(ctx context.Context, service string) (*session, error) {
	conn, err := dialWithRetry(ctx, &c.dialer, c.endpoint.Address(), c.opts.MaxAttempts, c.opts.RetryBackoff)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.endpoint, err)
	}
	s := &session{
		conn: conn,
		pr:   pktline.NewReader(conn),
		pw:   pktline.NewWriter(conn),
	}
	// Closing the connection unblocks any pending read or write.
	s.stop = context.AfterFunc(ctx, func() { conn.Close() })

	req := Request{Service: service, Repo: c.endpoint.Repo, Host: c.endpoint.Host}
	if err := s.pw.WriteString(req.Encode()); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: send request: %w", service, err)
	}
	adv, err := ReadAdvertisement(s.pr)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", service, contextErr(ctx, err))
	}
	s.adv = adv
	return s, nil
}

func (s *session) Close() error {
	s.stop()
	return s.conn.Close()
}

// contextErr prefers the context's error when the context ended, since the
// I/O error is then just a consequence of the closed connection.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(ctxErr, err)
	}
	return err
}

// ListRefs returns the remote's ref advertisement.
func (c *Client) ListRefs(ctx context.Context) (*Advertisement, error) {
	s, err := c.connect(ctx, UploadPackService)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if err := s.pw.Flush(); err != nil {
		return nil, fmt.Errorf("ls-remote: %w", err)
	}
	return s.adv, nil
}

// UploadSession is an open fetch conversation.
type UploadSession struct {
	s      *session
	client *Client
}

// OpenUpload connects to the fetch service and reads its advertisement.
func (c *Client) OpenUpload(ctx context.Context) (*UploadSession, error) {
	s, err := c.connect(ctx, UploadPackService)
	if err != nil {
		return nil, err
	}
	return &UploadSession{s: s, client: c}, nil
}

// Advertisement returns the refs the server advertised.
func (u *UploadSession) Advertisement() *Advertisement { return u.s.adv }

// Close ends the session.
func (u *UploadSession) Close() error { return u.s.Close() }

// FetchResult summarizes a fetched pack.
type FetchResult struct {
	Common  object.Hash // id acknowledged by the server, if any
	Objects int
	Deltas  int
	Bytes   int
}

// FetchPack sends wants and haves, receives the pack and unpacks it into
// store. With no wants it just ends the conversation. The pack is fully
// resolved before any object is written.
func (u *UploadSession) FetchPack(ctx context.Context, store interface {
	object.ObjectReader
	object.ObjectWriter
}, wants, haves []object.Hash) (*FetchResult, error) {
	s := u.s
	caps := u.s.adv.Caps.Intersect(NewCapabilities(CapMultiAck, CapSideBand64k, CapOfsDelta, CapIncludeTag))
	caps.Add(CapAgent + "=" + Agent)
	req := &UploadRequest{Wants: wants, Haves: haves, Caps: caps}
	if err := WriteUploadRequest(s.pw, req); err != nil {
		return nil, fmt.Errorf("fetch: send request: %w", contextErr(ctx, err))
	}
	if len(wants) == 0 {
		return &FetchResult{}, nil
	}

	line, err := s.pr.ReadText()
	if err != nil {
		return nil, fmt.Errorf("fetch: read acknowledgement: %w", contextErr(ctx, err))
	}
	result := &FetchResult{}
	switch {
	case line == "NAK":
	case strings.HasPrefix(line, "ACK "):
		ack, _, _ := strings.Cut(strings.TrimPrefix(line, "ACK "), " ")
		result.Common = object.Hash(ack)
	default:
		return nil, fmt.Errorf("fetch: %w", pktline.Errorf("expected ACK or NAK, got %q", line))
	}

	var packStream io.Reader = s.conn
	if caps.Has(CapSideBand64k) {
		packStream = pktline.NewSidebandReader(s.pr, u.client.opts.Progress)
	}
	data, err := ReadPackData(packStream, u.client.opts.MaxPackBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch: receive pack: %w", contextErr(ctx, err))
	}
	result.Bytes = len(data)

	summary, err := object.Unpack(store, data)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	result.Objects = summary.Objects
	result.Deltas = summary.Deltas
	return result, nil
}

// ReceiveSession is an open push conversation.
type ReceiveSession struct {
	s *session
}

// OpenReceive connects to the push service and reads its advertisement.
func (c *Client) OpenReceive(ctx context.Context) (*ReceiveSession, error) {
	s, err := c.connect(ctx, ReceivePackService)
	if err != nil {
		return nil, err
	}
	return &ReceiveSession{s: s}, nil
}

// Advertisement returns the refs the server advertised.
func (rs *ReceiveSession) Advertisement() *Advertisement { return rs.s.adv }

// Close ends the session.
func (rs *ReceiveSession) Close() error { return rs.s.Close() }

// Push sends cmds and, when any command creates or moves a ref, a pack of
// the objects the server lacks, read from store. The server's advertised
// ids are used as haves. The returned report is also checked: a rejected
// ref yields a *PushRejectedError in the error.
func (rs *ReceiveSession) Push(ctx context.Context, store object.ObjectReader, cmds []Command) (*Report, error) {
	s := rs.s
	if len(cmds) == 0 {
		if err := s.pw.Flush(); err != nil {
			return nil, fmt.Errorf("push: %w", err)
		}
		return &Report{}, nil
	}

	adv := s.adv
	for _, c := range cmds {
		if c.IsDelete() && !adv.Caps.Has(CapDeleteRefs) {
			return nil, fmt.Errorf("push: server does not support deleting %s", c.Name)
		}
	}
	caps := adv.Caps.Intersect(NewCapabilities(CapReportStatus, CapSideBand64k, CapOfsDelta, CapDeleteRefs))
	caps.Add(CapAgent + "=" + Agent)
	if err := WriteCommands(s.pw, cmds, caps); err != nil {
		return nil, fmt.Errorf("push: send commands: %w", contextErr(ctx, err))
	}

	var wants []object.Hash
	for _, c := range cmds {
		if !c.IsDelete() {
			wants = append(wants, c.New)
		}
	}
	if len(wants) > 0 {
		var haves []object.Hash
		for _, ref := range adv.Refs {
			if store.Has(ref.Hash) {
				haves = append(haves, ref.Hash)
			}
		}
		ids, err := object.MissingFrom(store, wants, haves)
		if err != nil {
			return nil, fmt.Errorf("push: %w", err)
		}
		var pack bytes.Buffer
		if _, err := object.WritePack(&pack, store, ids); err != nil {
			return nil, fmt.Errorf("push: %w", err)
		}
		sw := pktline.NewSidebandWriter(s.conn)
		if _, err := sw.Write(pack.Bytes()); err != nil {
			return nil, fmt.Errorf("push: send pack: %w", contextErr(ctx, err))
		}
		if err := sw.Flush(); err != nil {
			return nil, fmt.Errorf("push: send pack: %w", contextErr(ctx, err))
		}
	}

	if !caps.Has(CapReportStatus) {
		return &Report{}, nil
	}
	reportReader := s.pr
	if caps.Has(CapSideBand64k) {
		reportReader = pktline.NewReader(pktline.NewSidebandReader(s.pr, nil))
	}
	rep, err := ReadReport(reportReader)
	if err != nil {
		return nil, fmt.Errorf("push: %w", contextErr(ctx, err))
	}
	return rep, rep.Err()
}
