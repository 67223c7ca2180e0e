// Package api assembles the HTTP surface: collection mutations, queries,
// cloud functions, the pull-sync endpoint and the live websocket channel.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/stewones/borda-sub001/pkg/auth"
	"github.com/stewones/borda-sub001/pkg/hooks"
	"github.com/stewones/borda-sub001/pkg/schema"
	"github.com/stewones/borda-sub001/pkg/server/cache"
	"github.com/stewones/borda-sub001/pkg/server/livequery"
	"github.com/stewones/borda-sub001/pkg/server/query"
	"github.com/stewones/borda-sub001/pkg/server/store"
	"github.com/stewones/borda-sub001/pkg/server/syncapi"
	"github.com/stewones/borda-sub001/pkg/validation"
)

// Deps carries the wired components into the handler tree. Constructed
// once at startup and passed explicitly; there is no ambient server
// singleton.
type Deps struct {
	Registry  *schema.Registry
	Store     *store.Store
	Runner    *query.Runner
	Cache     *cache.Cache
	Validator *validation.Validator
	Hooks     *hooks.Pipeline
	Sync      *syncapi.Handler
	Live      *livequery.Hub
	Security  auth.SecConfig
}

// Handler builds the full router wrapped in the auth gateway.
func Handler(d Deps) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/collections/{collection}", d.insert).Methods(http.MethodPost)
	r.HandleFunc("/v1/collections/{collection}/{id}", d.replace).Methods(http.MethodPut)
	r.HandleFunc("/v1/collections/{collection}/{id}", d.remove).Methods(http.MethodDelete)
	r.HandleFunc("/v1/query/{collection}", d.runQuery).Methods(http.MethodPost)
	r.HandleFunc("/v1/functions/{name}", d.callFunction).Methods(http.MethodPost)

	if d.Sync != nil {
		d.Sync.Routes(r)
	}
	if d.Live != nil {
		r.Handle("/live", d.Live)
	}

	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))

	return auth.AuthenticateRequestMiddleware(d.Security)(r)
}
