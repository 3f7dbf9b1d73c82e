package report

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/alan-christopher/qkdsim/qkd"
	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrTagMismatch is returned when a framed record fails its integrity check.
var ErrTagMismatch = errors.New("record tag mismatch")

// MaxTaggedRecordBytes bounds the marshalled size of a record a tagged
// FramedWriter must be able to seal. A Result record is well under it.
const MaxTaggedRecordBytes = 2048

// A FramedWriter writes length-prefixed protocol buffers. The structure of the
// frame is trivial:  proto-length | proto | tag
//
// The tag is a Toeplitz hash of the marshalled proto, and is omitted when the
// writer has no hash.
type FramedWriter struct {
	w   io.Writer
	tag *Toeplitz
}

// NewFramedWriter returns a FramedWriter on w. tag may be nil.
func NewFramedWriter(w io.Writer, tag *Toeplitz) (*FramedWriter, error) {
	if w == nil {
		return nil, errors.New("must provide Writer")
	}
	if tag != nil && tag.Rows() <= 0 {
		return nil, fmt.Errorf("tag must have positive length, got %d", tag.Rows())
	}
	if tag != nil && tag.Capacity() < 8*MaxTaggedRecordBytes {
		return nil, fmt.Errorf("tag key too short: a %d-row tag needs at least %d key bytes",
			tag.Rows(), KeyBytesFor(tag.Rows(), MaxTaggedRecordBytes))
	}
	return &FramedWriter{w: w, tag: tag}, nil
}

// Write writes res as a structpb.Struct record.
func (f *FramedWriter) Write(res qkd.Result) error {
	rec, err := Record(res)
	if err != nil {
		return err
	}
	return f.WriteMessage(rec)
}

func (f *FramedWriter) WriteMessage(m proto.Message) error {
	marshalled, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	if err := binary.Write(f.w, binary.LittleEndian, int32(len(marshalled))); err != nil {
		return err
	}
	if _, err := f.w.Write(marshalled); err != nil {
		return err
	}
	if f.tag == nil {
		return nil
	}
	tag, err := f.tag.Sum(marshalled)
	if err != nil {
		return err
	}
	_, err = f.w.Write(tag)
	return err
}

func (f *FramedWriter) Close() error {
	return nil
}

// A FramedReader reads the records written by a FramedWriter.
type FramedReader struct {
	r   io.Reader
	tag *Toeplitz
}

// NewFramedReader returns a FramedReader on r. tag must match the writer's.
func NewFramedReader(r io.Reader, tag *Toeplitz) *FramedReader {
	return &FramedReader{r: r, tag: tag}
}

// ReadMessage reads the next frame into m. It returns io.EOF when the stream
// ends cleanly between frames.
func (f *FramedReader) ReadMessage(m proto.Message) error {
	var mLen int32
	if err := binary.Read(f.r, binary.LittleEndian, &mLen); err != nil {
		return err
	}
	if mLen < 0 {
		return fmt.Errorf("negative frame length %d", mLen)
	}
	marshalled := make([]byte, mLen)
	if _, err := io.ReadFull(f.r, marshalled); err != nil {
		return err
	}
	if f.tag != nil {
		tag := make([]byte, bitmap.BytesFor(f.tag.Rows()))
		if _, err := io.ReadFull(f.r, tag); err != nil {
			return err
		}
		want, err := f.tag.Sum(marshalled)
		if err != nil {
			return err
		}
		if !bytes.Equal(tag, want) {
			return fmt.Errorf("%w: got %x, want %x", ErrTagMismatch, tag, want)
		}
	}
	return proto.Unmarshal(marshalled, m)
}

// Read returns the next result record.
func (f *FramedReader) Read() (*structpb.Struct, error) {
	rec := new(structpb.Struct)
	if err := f.ReadMessage(rec); err != nil {
		return nil, err
	}
	return rec, nil
}
