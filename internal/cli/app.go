package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"

	"github.com/brunobiangulo/clinextract"
	"github.com/brunobiangulo/clinextract/publisher"
)

// stdoutSink prints every terminal section publication to stdout as JSON,
// used when driving a job from the CLI instead of a gateway.
type stdoutSink struct{}

func (stdoutSink) Deliver(ctx context.Context, pub clinextract.SectionPublication) error {
	enc, err := json.MarshalIndent(pub, "", "  ")
	if err != nil {
		return fmt.Errorf("cli: marshaling publication: %w", err)
	}
	fmt.Println(string(enc))
	return nil
}

// newEngine builds a clinextract.Engine from viper-resolved configuration,
// overriding DefaultConfig with any --db-path flag or CLINEXTRACT_DB_PATH
// environment variable.
func newEngine() (*clinextract.Engine, error) {
	cfg := clinextract.DefaultConfig()
	if dbPath := viper.GetString("db_path"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	return clinextract.NewEngine(cfg, publisher.SinkFunc(stdoutSink{}.Deliver))
}
