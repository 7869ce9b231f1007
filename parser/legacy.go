package parser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
	"github.com/richardlehane/msoleps"
)

// LegacyParser extracts plain text from legacy OLE2 compound-file formats
// (.doc). It does not attempt full layout reconstruction: it scans the
// WordDocument stream for runs of printable UTF-16LE text, which is
// sufficient to recover dictated transcript content without a licensed
// format library.
type LegacyParser struct{}

func (p *LegacyParser) SupportedFormats() []string { return []string{"doc"} }

func (p *LegacyParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("parser: opening legacy document: %w", err)
	}
	defer f.Close()

	reader, err := mscfb.New(f)
	if err != nil {
		return nil, fmt.Errorf("parser: opening OLE2 container: %w", err)
	}

	meta := map[string]string{}
	var wordDocument []byte
	for entry, err := reader.Next(); err == nil; entry, err = reader.Next() {
		switch entry.Name {
		case "WordDocument":
			buf := make([]byte, entry.Size)
			if _, rerr := reader.Read(buf); rerr == nil {
				wordDocument = buf
			}
		case "\x05SummaryInformation":
			buf := make([]byte, entry.Size)
			if _, rerr := reader.Read(buf); rerr == nil {
				if props, perr := msoleps.New(bytes.NewReader(buf)); perr == nil {
					for _, prop := range props.Property {
						if prop.Name != "" {
							meta[prop.Name] = fmt.Sprintf("%v", prop.Value())
						}
					}
				}
			}
		}
	}

	if wordDocument == nil {
		return nil, fmt.Errorf("parser: legacy document has no WordDocument stream")
	}

	content := extractPrintableUTF16(wordDocument)
	if content == "" {
		return nil, fmt.Errorf("parser: no recoverable text in legacy document")
	}

	return &ParseResult{
		Sections: []Section{{
			Content:  content,
			Metadata: meta,
		}},
		Method: "legacy_ole2",
	}, nil
}

// extractPrintableUTF16 scans a byte stream for maximal runs of
// UTF-16LE code units that decode to printable characters, each kept run
// followed by a newline; runs shorter than four units are dropped. Legacy .doc text lives interleaved
// with formatting tables (FIB, piece tables); this heuristic recovers the
// dictated prose without parsing those structures.
func extractPrintableUTF16(raw []byte) string {
	var out bytes.Buffer
	var run []uint16
	flush := func() {
		if len(run) < 4 {
			run = run[:0]
			return
		}
		decoded := utf16.Decode(run)
		for _, r := range decoded {
			out.WriteRune(r)
		}
		out.WriteByte('\n')
		run = run[:0]
	}
	for i := 0; i+1 < len(raw); i += 2 {
		unit := uint16(raw[i]) | uint16(raw[i+1])<<8
		if isPrintableUnit(unit) {
			run = append(run, unit)
		} else {
			flush()
		}
	}
	flush()
	return out.String()
}

func isPrintableUnit(u uint16) bool {
	if u == '\t' {
		return true
	}
	return u >= 0x20 && u < 0x2100
}
