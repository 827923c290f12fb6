// Package codec implements the Content-Length framing layer LSP runs
// JSON-RPC over: a small header block (Content-Length, optional
// Content-Type) followed by exactly that many bytes of message body.
// It knows nothing about JSON-RPC itself — that's package wire.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/xerrors"
)

const (
	headerContentLength = "content-length"
	headerContentType   = "content-type"
)

// FrameErrorKind classifies a non-fatal framing problem.
type FrameErrorKind int

const (
	MissingContentLength FrameErrorKind = iota
	BadLength
	InvalidHeader
	Utf8
)

func (k FrameErrorKind) String() string {
	switch k {
	case MissingContentLength:
		return "missing-content-length"
	case BadLength:
		return "bad-length"
	case InvalidHeader:
		return "invalid-header"
	case Utf8:
		return "invalid-utf8"
	default:
		return "unknown"
	}
}

// FrameError reports a malformed frame. It is never fatal to the stream:
// the caller emits a ParseError response and keeps decoding.
type FrameError struct {
	Kind FrameErrorKind
	Err  error
}

func (e *FrameError) Error() string { return fmt.Sprintf("codec: %s: %v", e.Kind, e.Err) }
func (e *FrameError) Unwrap() error { return e.Err }

// Decoder reads Content-Length framed message bodies off a byte stream.
// It is resumable by construction: a *FrameError leaves the underlying
// reader positioned right after the offending bytes, so the next Decode
// call picks back up looking for the next header block. A malformed
// header line, a bad length or a rejected content type leaves bytes of
// unknown extent behind it, so those three cases additionally discard
// forward until a line that looks like a fresh Content-Length header
// turns up, stashing it in pendingHeader for the next Decode call rather
// than re-reading it.
type Decoder struct {
	r             *bufio.Reader
	pendingHeader *headerLine
}

type headerLine struct {
	name  string
	value string
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads one frame's body. A returned *FrameError is non-fatal;
// any other error means the stream itself is unusable.
func (d *Decoder) Decode() ([]byte, error) {
	headers, err := d.readHeaderBlock()
	if err != nil {
		return nil, err
	}

	lengthStr := headers[headerContentLength]
	length, err := strconv.Atoi(strings.TrimSpace(lengthStr))
	if err != nil || length < 0 {
		d.resyncToNextHeader()
		return nil, &FrameError{Kind: BadLength, Err: xerrors.Errorf("parse Content-Length %q: %w", lengthStr, err)}
	}

	if ctype, ok := headers[headerContentType]; ok && !validContentType(ctype) {
		d.resyncToNextHeader()
		return nil, &FrameError{Kind: InvalidHeader, Err: xerrors.Errorf("unsupported Content-Type %q", ctype)}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, xerrors.Errorf("codec: read body: %w", err)
	}

	if !utf8.Valid(body) {
		return nil, &FrameError{Kind: Utf8, Err: xerrors.New("frame body is not valid utf-8")}
	}

	return body, nil
}

// readHeaderBlock reads lines up to the blank line terminating a header
// block. A malformed line is reported as a *FrameError after discarding
// forward to the next Content-Length line; a block lacking Content-Length
// is reported as a *FrameError with the stream left just past its blank
// terminator. A header recovered by a prior resyncToNextHeader is seeded
// in first.
func (d *Decoder) readHeaderBlock() (map[string]string, error) {
	headers := make(map[string]string)
	if d.pendingHeader != nil {
		headers[d.pendingHeader.name] = d.pendingHeader.value
		d.pendingHeader = nil
	}
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			return nil, xerrors.Errorf("codec: read header line: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if _, ok := headers[headerContentLength]; !ok {
				return nil, &FrameError{Kind: MissingContentLength, Err: xerrors.New("header block had no Content-Length")}
			}
			return headers, nil
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			d.resyncToNextHeader()
			return nil, &FrameError{Kind: InvalidHeader, Err: xerrors.Errorf("malformed header line %q", line)}
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		headers[name] = value
	}
}

// resyncToNextHeader discards bytes until it has consumed a line that
// parses as a Content-Length header, stashing it as pendingHeader so the
// next readHeaderBlock call resumes from a known-good point instead of
// misreading the unread, unknown-length body of the rejected frame as
// headers. Best-effort: a read error here just leaves pendingHeader nil,
// and the next Decode call surfaces the underlying stream failure.
func (d *Decoder) resyncToNextHeader() {
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			return
		}
		trimmed := strings.TrimRight(line, "\r\n")
		idx := strings.IndexByte(trimmed, ':')
		if idx < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(trimmed[:idx]))
		if name != headerContentLength {
			continue
		}
		d.pendingHeader = &headerLine{name: name, value: strings.TrimSpace(trimmed[idx+1:])}
		return
	}
}

func validContentType(v string) bool {
	v = strings.ToLower(strings.ReplaceAll(v, " ", ""))
	switch v {
	case "application/vscode-jsonrpc;charset=utf-8", "application/vscode-jsonrpc;charset=utf8":
		return true
	default:
		return false
	}
}

// Encoder writes Content-Length framed message bodies to a byte stream.
// One frame is written per Encode call; the header and body are flushed
// together so concurrent Encode calls never interleave mid-frame.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) Encode(payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := fmt.Fprintf(e.w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return xerrors.Errorf("codec: write header: %w", err)
	}
	if _, err := e.w.Write(payload); err != nil {
		return xerrors.Errorf("codec: write body: %w", err)
	}
	return e.w.Flush()
}
