package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brunobiangulo/clinextract"
	"github.com/brunobiangulo/clinextract/publisher"
)

// httpSink delivers each SectionPublication as a JSON POST to a configured
// gateway URL. With no URL configured it only logs the publication, which
// keeps the server runnable without a downstream gateway during local
// development.
type httpSink struct {
	url    string
	client *http.Client
}

func newHTTPSink(url string) publisher.Sink {
	return &httpSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *httpSink) Deliver(ctx context.Context, pub clinextract.SectionPublication) error {
	if s.url == "" {
		slog.Info("publication", "section_id", pub.SectionID, "status", pub.ValidationStatus)
		return nil
	}

	body, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("sink: marshaling publication: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sink: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink: delivering publication: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink: gateway returned status %d", resp.StatusCode)
	}
	return nil
}
