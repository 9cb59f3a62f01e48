// Package instdata defines the wire records exchanged between the probe
// runtime and the collector: the per-call dynamic sample (DynData) and the
// per-site static metadata (StaticData) that the rewriter embeds literally
// into every synthesized probe call.
package instdata

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxDatagramSize is the MTU the probe assumes for a single UDP datagram.
// Records that would marshal larger than this are dropped collector-side
// rather than reassembled; there is no fragmentation support.
const MaxDatagramSize = 1024

// DynData is the per-call sample captured at instrumentation time. It
// changes on every probe call, unlike StaticData which is fixed per site.
type DynData struct {
	SystemTimeNs uint64
	Counter      uint64
	Pid          uint32
	ThreadID     string
	MachineID    string
}

// StaticData describes a single instrumentation site. The rewriter embeds
// one of these as a literal composite expression at every synthesized
// probe.Instrument call.
type StaticData struct {
	AbsolutePath string
	Description  string
	AstDepth     uint64
	SourceFile   string
	LinesBegin   uint64
	LinesEnd     uint64
}

// NewStaticData constructs a StaticData value. It is exported under this
// exact name and signature because the rewriter emits literal calls to it.
func NewStaticData(absolutePath, description string, astDepth uint64, sourceFile string, linesBegin, linesEnd uint64) StaticData {
	return StaticData{
		AbsolutePath: absolutePath,
		Description:  description,
		AstDepth:     astDepth,
		SourceFile:   sourceFile,
		LinesBegin:   linesBegin,
		LinesEnd:     linesEnd,
	}
}

// Marshal encodes a (DynData, StaticData) pair into a length-prefixed,
// little-endian binary record suitable as a single UDP datagram payload.
// The first four bytes are the length of everything that follows.
func Marshal(dyn DynData, static StaticData) ([]byte, error) {
	var body bytes.Buffer

	if err := writeUint64(&body, dyn.SystemTimeNs); err != nil {
		return nil, err
	}
	if err := writeUint64(&body, dyn.Counter); err != nil {
		return nil, err
	}
	if err := writeUint32(&body, dyn.Pid); err != nil {
		return nil, err
	}
	if err := writeString(&body, dyn.ThreadID); err != nil {
		return nil, err
	}
	if err := writeString(&body, dyn.MachineID); err != nil {
		return nil, err
	}
	if err := writeString(&body, static.AbsolutePath); err != nil {
		return nil, err
	}
	if err := writeString(&body, static.Description); err != nil {
		return nil, err
	}
	if err := writeUint64(&body, static.AstDepth); err != nil {
		return nil, err
	}
	if err := writeString(&body, static.SourceFile); err != nil {
		return nil, err
	}
	if err := writeUint64(&body, static.LinesBegin); err != nil {
		return nil, err
	}
	if err := writeUint64(&body, static.LinesEnd); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, uint32(body.Len())); err != nil {
		return nil, fmt.Errorf("instdata: writing length prefix: %w", err)
	}
	out.Write(body.Bytes())

	if out.Len() > MaxDatagramSize {
		return nil, fmt.Errorf("instdata: record of %d bytes exceeds MTU %d", out.Len(), MaxDatagramSize)
	}

	return out.Bytes(), nil
}

// Unmarshal decodes a record produced by Marshal. It validates the length
// prefix against the remaining bytes and rejects truncated or padded input.
func Unmarshal(data []byte) (DynData, StaticData, error) {
	var dyn DynData
	var static StaticData

	r := bytes.NewReader(data)

	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return dyn, static, fmt.Errorf("instdata: reading length prefix: %w", err)
	}
	if int(length) != r.Len() {
		return dyn, static, fmt.Errorf("instdata: length prefix %d does not match remaining %d bytes", length, r.Len())
	}

	var err error
	if dyn.SystemTimeNs, err = readUint64(r); err != nil {
		return dyn, static, err
	}
	if dyn.Counter, err = readUint64(r); err != nil {
		return dyn, static, err
	}
	if dyn.Pid, err = readUint32(r); err != nil {
		return dyn, static, err
	}
	if dyn.ThreadID, err = readString(r); err != nil {
		return dyn, static, err
	}
	if dyn.MachineID, err = readString(r); err != nil {
		return dyn, static, err
	}
	if static.AbsolutePath, err = readString(r); err != nil {
		return dyn, static, err
	}
	if static.Description, err = readString(r); err != nil {
		return dyn, static, err
	}
	if static.AstDepth, err = readUint64(r); err != nil {
		return dyn, static, err
	}
	if static.SourceFile, err = readString(r); err != nil {
		return dyn, static, err
	}
	if static.LinesBegin, err = readUint64(r); err != nil {
		return dyn, static, err
	}
	if static.LinesEnd, err = readUint64(r); err != nil {
		return dyn, static, err
	}

	return dyn, static, nil
}

func writeUint64(buf *bytes.Buffer, v uint64) error {
	return binary.Write(buf, binary.LittleEndian, v)
}

func writeUint32(buf *bytes.Buffer, v uint32) error {
	return binary.Write(buf, binary.LittleEndian, v)
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var v uint64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("instdata: reading uint64: %w", err)
	}
	return v, nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("instdata: reading uint32: %w", err)
	}
	return v, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("instdata: string length %d exceeds remaining %d bytes", n, r.Len())
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return "", fmt.Errorf("instdata: reading string body: %w", err)
	}
	return string(buf), nil
}
