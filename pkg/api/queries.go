package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stewones/borda-sub001/pkg/auth"
	"github.com/stewones/borda-sub001/pkg/server/cache"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/schema"
	"github.com/stewones/borda-sub001/pkg/server/query"
	"github.com/stewones/borda-sub001/pkg/server/store"
	"github.com/stewones/borda-sub001/pkg/utils"
)

// queryRequest is the POST /v1/query/{collection} body: a method selector
// plus the query description.
type queryRequest struct {
	Method string `json:"method,omitempty"`
	query.Description
}

// runQuery executes find/findOne/count/aggregate against the store,
// memoizing document results in the query cache.
func (d Deps) runQuery(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Method == "" {
		req.Method = "find"
	}

	switch req.Method {
	case "count":
		n, err := d.Runner.Count(r.Context(), collection, req.Description)
		if err != nil {
			d.queryError(w, err)
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]int64{"count": n})
		return
	case "find", "findOne", "aggregate":
	default:
		utils.JSONError(w, http.StatusBadRequest, "unknown method "+req.Method)
		return
	}

	key, err := cache.Key(collection, req.Method, req.Description)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if docs, ok := d.Cache.Get(key); ok {
		d.writeQueryResult(w, req.Method, docs)
		return
	}

	var docs []model.Document
	switch req.Method {
	case "find":
		docs, err = d.Runner.Find(r.Context(), collection, req.Description)
	case "findOne":
		var doc model.Document
		doc, err = d.Runner.FindOne(r.Context(), collection, req.Description)
		if doc != nil {
			docs = []model.Document{doc}
		}
	case "aggregate":
		docs, err = d.Runner.Aggregate(r.Context(), collection, req.Description)
	}
	if err != nil {
		d.queryError(w, err)
		return
	}
	d.Cache.Put(key, collection, docs)
	d.writeQueryResult(w, req.Method, docs)
}

func (d Deps) writeQueryResult(w http.ResponseWriter, method string, docs []model.Document) {
	if method == "findOne" {
		if len(docs) == 0 {
			utils.JSONError(w, http.StatusNotFound, "document not found")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, docs[0])
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, docs)
}

func (d Deps) queryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrReserved):
		utils.JSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, schema.ErrUnknownCollection), errors.Is(err, store.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// callFunction handles POST /v1/functions/{name}. Non-public functions
// require an authenticated caller.
func (d Deps) callFunction(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	fn, ok := d.Hooks.Function(name)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown function "+name)
		return
	}
	ident := auth.IdentityFromContext(r.Context())
	if !fn.Opts.Public && ident.Role == auth.RoleUnauth {
		utils.JSONError(w, http.StatusUnauthorized, "function requires authentication")
		return
	}

	args := model.Document{}
	if r.Body != nil {
		// an empty body means no arguments
		_ = json.NewDecoder(r.Body).Decode(&args)
	}
	out, err := fn.Handler(r.Context(), args, sessionDoc(r))
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]any{"result": out})
}
