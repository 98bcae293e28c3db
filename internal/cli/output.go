package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/whispercppkit/whispercppkit/internal/whisper"
	"gopkg.in/yaml.v3"
)

// transcriptionResult is the document printed for one audio file. Fields are kept
// in alphabetical order so the JSON keys come out sorted.
type transcriptionResult struct {
	Audio              string            `json:"audio" yaml:"audio"`
	Language           string            `json:"language,omitempty" yaml:"language,omitempty"`
	Model              string            `json:"model" yaml:"model"`
	Segments           []whisper.Segment `json:"segments" yaml:"segments"`
	Threads            int               `json:"threads" yaml:"threads"`
	TranslateToEnglish bool              `json:"translateToEnglish" yaml:"translateToEnglish"`
}

func formatSegment(seg whisper.Segment) string {
	return fmt.Sprintf("[%0.2f → %0.2f] %s", seg.StartTime, seg.EndTime, seg.Text)
}

func joinSegments(segments []whisper.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

func writeResults(w io.Writer, format string, results []transcriptionResult) error {
	switch format {
	case "json":
		var doc any = results
		if len(results) == 1 {
			doc = results[0]
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return writeLine(w, "%s", data)
	case "yaml":
		var doc any = results
		if len(results) == 1 {
			doc = results[0]
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		for i, res := range results {
			if len(results) > 1 {
				if i > 0 {
					if err := writeLine(w, ""); err != nil {
						return err
					}
				}
				if err := writeLine(w, "==> %s <==", res.Audio); err != nil {
					return err
				}
			}
			for _, seg := range res.Segments {
				if err := writeLine(w, "%s", formatSegment(seg)); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// segmentStream prints segments while inference is still running. The engine may
// deliver them from its own thread, so writes are serialized.
type segmentStream struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	yaml   *yaml.Encoder
	err    error
}

func newSegmentStream(w io.Writer, format string) *segmentStream {
	s := &segmentStream{w: w, format: format}
	if format == "yaml" {
		s.yaml = yaml.NewEncoder(w)
		s.yaml.SetIndent(2)
	}
	return s
}

func (s *segmentStream) write(seg whisper.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return
	}

	switch s.format {
	case "json":
		data, err := json.Marshal(seg)
		if err != nil {
			s.err = fmt.Errorf("encode segment %d: %w", seg.Index, err)
			return
		}
		s.err = writeLine(s.w, "%s", data)
	case "yaml":
		s.err = s.yaml.Encode(seg)
	default:
		s.err = writeLine(s.w, "%s", formatSegment(seg))
	}
}

// close flushes the stream and reports the first write failure.
func (s *segmentStream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.yaml != nil {
		if err := s.yaml.Close(); err != nil && s.err == nil {
			s.err = err
		}
	}
	return s.err
}
