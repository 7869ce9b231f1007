package parser

import "testing"

func TestRegistryBuiltInParsers(t *testing.T) {
	reg := NewRegistry()

	formats := []struct {
		format     string
		wantParser string
	}{
		{"pdf", "*parser.PDFParser"},
		{"docx", "*parser.DOCXParser"},
		{"doc", "*parser.LegacyParser"},
	}

	for _, tt := range formats {
		t.Run(tt.format, func(t *testing.T) {
			p, err := reg.Get(tt.format)
			if err != nil {
				t.Fatalf("Get(%q) returned error: %v", tt.format, err)
			}
			if p == nil {
				t.Fatalf("Get(%q) returned nil parser", tt.format)
			}
			supported := p.SupportedFormats()
			found := false
			for _, f := range supported {
				if f == tt.format {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("parser for %q does not list %q in SupportedFormats(): %v",
					tt.format, tt.format, supported)
			}
		})
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry()

	unknownFormats := []string{"txt", "xlsx", "pptx", "csv", "json", "html", "rtf", "odt", ""}
	for _, fmt := range unknownFormats {
		t.Run("format_"+fmt, func(t *testing.T) {
			p, err := reg.Get(fmt)
			if err == nil {
				t.Errorf("Get(%q) expected error for unknown format, got parser: %v", fmt, p)
			}
			if p != nil {
				t.Errorf("Get(%q) expected nil parser for unknown format", fmt)
			}
		})
	}
}

func TestRegistryCustomParser(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Get("custom"); err == nil {
		t.Fatal("expected error for unregistered format")
	}

	reg.Register("custom", &PDFParser{}) // reuse PDFParser as a stand-in
	p, err := reg.Get("custom")
	if err != nil {
		t.Fatalf("Get(\"custom\") after Register returned error: %v", err)
	}
	if p == nil {
		t.Fatal("Get(\"custom\") returned nil after Register")
	}
}

func TestParseDocxXMLExtractsParagraphsInOrder(t *testing.T) {
	xmlDoc := []byte(`<?xml version="1.0"?>
<document xmlns="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body>
    <p><r><t>Patient reports mild headache for three days.</t></r></p>
    <p><r><t>No known allergies reported today.</t></r></p>
  </body>
</document>`)

	sections, err := parseDocxXML(xmlDoc)
	if err != nil {
		t.Fatalf("parseDocxXML returned error: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("expected 1 section (no tables in doc), got %d", len(sections))
	}
	want := "Patient reports mild headache for three days.\nNo known allergies reported today."
	if sections[0].Content != want {
		t.Errorf("sections[0].Content = %q, want %q", sections[0].Content, want)
	}
}

func TestParseDocxXMLRendersTablesAsPipeRows(t *testing.T) {
	xmlDoc := []byte(`<?xml version="1.0"?>
<document xmlns="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body>
    <tbl>
      <tr><tc><p><r><t>Medication</t></r></p></tc><tc><p><r><t>Dose</t></r></p></tc></tr>
      <tr><tc><p><r><t>Metformin</t></r></p></tc><tc><p><r><t>500mg BID</t></r></p></tc></tr>
    </tbl>
  </body>
</document>`)

	sections, err := parseDocxXML(xmlDoc)
	if err != nil {
		t.Fatalf("parseDocxXML returned error: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("expected 1 section (table only), got %d", len(sections))
	}
	want := "| Medication | Dose |\n| Metformin | 500mg BID |\n"
	if sections[0].Content != want {
		t.Errorf("sections[0].Content = %q, want %q", sections[0].Content, want)
	}
}

func TestParseDocxXMLEmptyBody(t *testing.T) {
	xmlDoc := []byte(`<?xml version="1.0"?>
<document xmlns="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body></body>
</document>`)

	sections, err := parseDocxXML(xmlDoc)
	if err != nil {
		t.Fatalf("parseDocxXML returned error: %v", err)
	}
	if len(sections) != 0 {
		t.Errorf("expected 0 sections for empty body, got %d", len(sections))
	}
}
