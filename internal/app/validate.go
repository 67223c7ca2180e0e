package app

import (
	"fmt"
	"os"

	"github.com/stewones/borda-sub001/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.Config == nil {
		return fmt.Errorf("no effective config")
	}

	if eff.Config.Mongo.URI == "" {
		return fmt.Errorf("mongo uri is empty: set BORDA_MONGO_URI env or mongo.uri in config")
	}
	if len(eff.Config.Collections) == 0 {
		return fmt.Errorf("no collections configured: declare at least one under collections in config")
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	return nil
}
