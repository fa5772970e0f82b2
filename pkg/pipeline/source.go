package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/l7mp/windowfields/pkg/object"
)

// MaxLineSize is the longest JSON line accepted by the JSON lines source.
const MaxLineSize = 16 * 1024 * 1024

// Source is a pull-based input stream. The documents must be sorted by partition key and then by
// the sort key of the stage; the engine does not check this. Next returns io.EOF at the end of
// the stream, any other error is a failure of the stream.
type Source interface {
	Next(ctx context.Context) (object.Document, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context) (object.Document, error)

func (f SourceFunc) Next(ctx context.Context) (object.Document, error) { return f(ctx) }

// SliceSource streams an in-memory list of documents.
type SliceSource struct {
	docs []object.Document
	next int
}

func NewSliceSource(docs []object.Document) *SliceSource {
	return &SliceSource{docs: docs}
}

func (s *SliceSource) Next(ctx context.Context) (object.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.docs) {
		return nil, io.EOF
	}
	doc := s.docs[s.next]
	s.next++
	return doc, nil
}

// ChannelSource streams the documents received on a channel until the channel is closed.
type ChannelSource struct {
	ch <-chan object.Document
}

func NewChannelSource(ch <-chan object.Document) *ChannelSource {
	return &ChannelSource{ch: ch}
}

func (s *ChannelSource) Next(ctx context.Context) (object.Document, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case doc, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		return doc, nil
	}
}

// JSONLinesSource decodes one JSON object per line. Empty lines are skipped.
type JSONLinesSource struct {
	scanner *bufio.Scanner
	line    int
}

func NewJSONLinesSource(r io.Reader) *JSONLinesSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &JSONLinesSource{scanner: scanner}
}

func (s *JSONLinesSource) Next(ctx context.Context) (object.Document, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("line %d: %w", s.line+1, err)
			}
			return nil, io.EOF
		}
		s.line++

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		doc, err := object.NewFromJSON(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", s.line, err)
		}
		return doc, nil
	}
}

// Drain reads the source to the end.
func Drain(ctx context.Context, src Source) ([]object.Document, error) {
	ret := []object.Document{}
	for {
		doc, err := src.Next(ctx)
		if err == io.EOF {
			return ret, nil
		}
		if err != nil {
			return nil, err
		}
		ret = append(ret, doc)
	}
}
