package controller

import (
	"net/http"

	"github.com/edgeandnode/qos-oracle/app/oracle/types"
	"github.com/gorilla/mux"
)

type Controller struct {
	App *types.App
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App: app,
	}
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods("GET")
	r.HandleFunc("/stats", c.HandleStats).Methods("GET")

	r.HandleFunc("/submissions", c.HandleSubmit).Methods("POST")
	r.HandleFunc("/messages/{id}", c.HandleMessage).Methods("GET")
	r.HandleFunc("/rollups/indexer/{wallet}/{deployment}/{day}", c.HandleIndexerRollup).Methods("GET")
	r.HandleFunc("/rollups/query/{deployment}/{day}", c.HandleQueryRollup).Methods("GET")

	return r, nil
}
