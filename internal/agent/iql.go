package agent

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stewones/borda-sub001/pkg/client/iql"
	"github.com/stewones/borda-sub001/pkg/utils"
)

// iqlHandler mounts the replica query endpoint. It binds to loopback by
// default and carries no auth: the boundary is the host, not the network.
func (a *Agent) iqlHandler(exec *iql.Executor) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/iql", func(w http.ResponseWriter, req *http.Request) {
		body := http.MaxBytesReader(w, req.Body, a.maxBody)
		var query iql.Node
		if err := json.NewDecoder(body).Decode(&query); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid query body")
			return
		}
		res, err := exec.Execute(query)
		switch {
		case err != nil && len(res) > 0:
			// a failed branch keeps its siblings; hand the partial result
			// back together with the joined branch errors
			utils.JSONWrite(w, http.StatusMultiStatus, map[string]any{
				"data":  res,
				"error": err.Error(),
			})
		case err != nil:
			utils.JSONError(w, http.StatusBadRequest, err.Error())
		default:
			utils.JSONWrite(w, http.StatusOK, res)
		}
	}).Methods(http.MethodPost)

	r.HandleFunc("/sync/{collection}", func(w http.ResponseWriter, req *http.Request) {
		collection := mux.Vars(req)["collection"]
		if err := a.worker.Trigger(collection); err != nil {
			utils.JSONError(w, http.StatusServiceUnavailable, "sync queue full")
			return
		}
		utils.JSONWrite(w, http.StatusAccepted, map[string]any{"collection": collection, "queued": true})
	}).Methods(http.MethodPost)

	return r
}
