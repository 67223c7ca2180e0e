package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/stewones/borda-sub001/pkg/auth"
	"github.com/stewones/borda-sub001/pkg/hooks"
	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/model"
	"github.com/stewones/borda-sub001/pkg/server/cache"
	"github.com/stewones/borda-sub001/pkg/server/store"
	"github.com/stewones/borda-sub001/pkg/utils"
)

// guardCollection resolves the schema and enforces the reserved gate for
// mutating requests.
func (d Deps) guardCollection(w http.ResponseWriter, r *http.Request) (string, bool) {
	collection := mux.Vars(r)["collection"]
	col, err := d.Registry.Get(collection)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	if col.Reserved && !auth.Unlocked(r.Context()) {
		utils.JSONError(w, http.StatusForbidden, "collection is reserved")
		return "", false
	}
	return collection, true
}

func sessionDoc(r *http.Request) model.Document {
	ident := auth.IdentityFromContext(r.Context())
	if ident.Role == auth.RoleUnauth {
		return nil
	}
	return model.Document{"role": ident.Role.String(), "user": ident.UserID}
}

// insert handles POST /v1/collections/{collection}. Missing ids are
// generated; timestamps are always stamped server-side. Inserting into
// "user" is a signup and additionally runs the beforeSignUp hook.
func (d Deps) insert(w http.ResponseWriter, r *http.Request) {
	collection, ok := d.guardCollection(w, r)
	if !ok {
		return
	}
	var doc model.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if doc.ID() == "" {
		doc.SetID(utils.GenID())
	}
	doc.Stamp(time.Now())
	if err := d.Validator.Document(collection, doc); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload := hooks.Payload{Doc: doc, Session: sessionDoc(r)}
	if collection == "user" {
		out, allowed, err := d.Hooks.RunSignUp(r.Context(), collection, payload)
		if err != nil {
			utils.JSONError(w, http.StatusForbidden, err.Error())
			return
		}
		if !allowed {
			utils.JSONError(w, http.StatusForbidden, "signup rejected")
			return
		}
		doc = out
		payload.Doc = doc
	}
	doc, err := d.Hooks.RunBefore(r.Context(), hooks.BeforeSave, collection, payload)
	if err != nil {
		utils.JSONError(w, http.StatusForbidden, err.Error())
		return
	}

	if err := d.Store.Insert(r.Context(), collection, doc); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// a new document may satisfy filters of entries it is not indexed
	// under, so the whole collection is flushed
	d.Cache.FlushCollection(collection, cache.ReasonWrite)
	d.Hooks.RunAfter(hooks.AfterSave, collection, hooks.Payload{Doc: doc, After: doc, Session: payload.Session})

	logger.Info("document_inserted", "collection", collection, "id", doc.ID())
	_ = utils.JSONWrite(w, http.StatusCreated, doc)
}

// replace handles PUT /v1/collections/{collection}/{id}: a whole-document
// swap, last writer wins, no field merge. System timestamps come from the
// stored document, not the payload.
func (d Deps) replace(w http.ResponseWriter, r *http.Request) {
	collection, ok := d.guardCollection(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	var doc model.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	prev, err := d.Store.Get(r.Context(), collection, id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		utils.JSONError(w, status, err.Error())
		return
	}

	doc.SetID(id)
	doc[model.FieldCreatedAt] = prev[model.FieldCreatedAt]
	doc[model.FieldUpdatedAt] = prev[model.FieldUpdatedAt]
	doc.Touch(time.Now())
	if err := d.Validator.Document(collection, doc); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload := hooks.Payload{Doc: doc, Before: prev, Session: sessionDoc(r)}
	doc, err = d.Hooks.RunBefore(r.Context(), hooks.BeforeSave, collection, payload)
	if err != nil {
		utils.JSONError(w, http.StatusForbidden, err.Error())
		return
	}

	if err := d.Store.Replace(r.Context(), collection, id, doc); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	d.invalidate(collection, id)
	d.Hooks.RunAfter(hooks.AfterSave, collection, hooks.Payload{Doc: doc, Before: prev, After: doc, Session: payload.Session})

	logger.Info("document_replaced", "collection", collection, "id", id)
	_ = utils.JSONWrite(w, http.StatusOK, doc)
}

// remove handles DELETE /v1/collections/{collection}/{id}: a soft delete.
// The document keeps its field values and gains _expires_at, so afterDelete
// hooks and the sync channel still see the pre-delete state.
func (d Deps) remove(w http.ResponseWriter, r *http.Request) {
	collection, ok := d.guardCollection(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	prev, err := d.Store.Get(r.Context(), collection, id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		utils.JSONError(w, status, err.Error())
		return
	}
	if prev.IsTombstone() {
		utils.JSONError(w, http.StatusNotFound, "document already deleted")
		return
	}

	doc := model.Document{}
	for k, v := range prev {
		doc[k] = v
	}
	doc.Tombstone(time.Now())

	payload := hooks.Payload{Doc: doc, Before: prev, Session: sessionDoc(r)}
	doc, err = d.Hooks.RunBefore(r.Context(), hooks.BeforeDelete, collection, payload)
	if err != nil {
		utils.JSONError(w, http.StatusForbidden, err.Error())
		return
	}

	if err := d.Store.Replace(r.Context(), collection, id, doc); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	d.invalidate(collection, id)
	d.Hooks.RunAfter(hooks.AfterDelete, collection, hooks.Payload{Doc: doc, Before: prev, After: doc, Session: payload.Session})

	logger.Info("document_deleted", "collection", collection, "id", id)
	_ = utils.JSONWrite(w, http.StatusOK, doc)
}

// invalidate evicts cache entries for a mutated document inline with the
// request, ahead of the change stream notification.
func (d Deps) invalidate(collection, id string) {
	if d.Registry.Reserved(collection) {
		d.Cache.FlushCollection(collection, cache.ReasonWrite)
		return
	}
	d.Cache.InvalidateDoc(collection, id, cache.ReasonWrite)
}
