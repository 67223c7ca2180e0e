package app

import (
	"net/http"

	"github.com/stewones/borda-sub001/pkg/api"
	"github.com/stewones/borda-sub001/pkg/auth"
	"github.com/stewones/borda-sub001/pkg/banner"
	"github.com/stewones/borda-sub001/pkg/telemetry"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// secConfig builds the auth gateway config from the effective config.
func (a *App) secConfig() auth.SecConfig {
	sec := a.eff.Config.Security
	cfg := auth.SecConfig{
		JWTSecret:      sec.JWTSecret,
		AllowedOrigins: append([]string{}, sec.CORS.AllowedOrigins...),
		RPS:            sec.RateLimit.RPS,
		Burst:          sec.RateLimit.Burst,
		BackendKeys:    map[string]struct{}{},
		FrontendKeys:   map[string]struct{}{},
	}
	for _, k := range sec.APIKeys.Backend {
		cfg.BackendKeys[k] = struct{}{}
	}
	for _, k := range sec.APIKeys.Frontend {
		cfg.FrontendKeys[k] = struct{}{}
	}
	return cfg
}

// startHTTP builds the handler tree, starts the HTTP server in a goroutine
// and returns a channel that will carry any fatal server error.
func (a *App) startHTTP() <-chan error {
	handler := api.Handler(api.Deps{
		Registry:  a.reg,
		Store:     a.store,
		Runner:    a.runner,
		Cache:     a.cache,
		Validator: a.validator,
		Hooks:     a.hooks,
		Sync:      a.sync,
		Live:      a.hub,
		Security:  a.secConfig(),
	})
	wrapped := telemetry.Middleware(handler)

	a.srv = &http.Server{Addr: a.eff.Addr, Handler: wrapped}

	errCh := make(chan error, 1)
	go func() {
		cert := a.eff.Config.Server.TLS.CertFile
		key := a.eff.Config.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
