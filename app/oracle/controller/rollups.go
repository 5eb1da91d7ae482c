package controller

import (
	"encoding/json"
	"net/http"

	"github.com/edgeandnode/qos-oracle/pkg/oracle"
	"github.com/gorilla/mux"
)

// HandleMessage returns one stored submission record by tx hash.
func (c *Controller) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	msg, err := c.App.Stores.Messages.Load(ctx, id)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if msg == nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "message not found"})
		return
	}
	_ = json.NewEncoder(w).Encode(msg)
}

// HandleIndexerRollup returns the rollup for one (wallet, deployment, day).
func (c *Controller) HandleIndexerRollup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	id := oracle.CompoundID(oracle.CompoundID(vars["wallet"], vars["deployment"]), vars["day"])
	rollup, err := c.App.Stores.IndexerDaily.Load(ctx, id)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if rollup == nil && c.App.OracleDB != nil {
		// Buckets written before this process started live only in ClickHouse.
		rollup, err = c.App.OracleDB.SelectIndexerDaily(ctx, id)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
	}
	if rollup == nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rollup not found"})
		return
	}
	_ = json.NewEncoder(w).Encode(rollup)
}

// HandleQueryRollup returns the rollup for one (deployment, day).
func (c *Controller) HandleQueryRollup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	id := oracle.CompoundID(vars["deployment"], vars["day"])
	rollup, err := c.App.Stores.QueryDaily.Load(ctx, id)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if rollup == nil && c.App.OracleDB != nil {
		rollup, err = c.App.OracleDB.SelectQueryDaily(ctx, id)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
	}
	if rollup == nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rollup not found"})
		return
	}
	_ = json.NewEncoder(w).Encode(rollup)
}
