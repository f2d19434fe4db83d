// Package api exposes the paper trading desk over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes.
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(handler.logRequests)

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/instruments", handler.ListInstruments).Methods("GET")
	api.HandleFunc("/instruments/{symbol}", handler.GetInstrument).Methods("GET")
	api.HandleFunc("/instruments/{symbol}/chain/{expiry}", handler.GetOptionChain).Methods("GET")
	api.HandleFunc("/ticks", handler.ApplyTick).Methods("POST")

	acct := api.PathPrefix("/accounts/{account}").Subrouter()
	acct.HandleFunc("/orders", handler.SubmitOrder).Methods("POST")
	acct.HandleFunc("/orders", handler.ListOrders).Methods("GET")
	acct.HandleFunc("/orders/{id}", handler.GetOrder).Methods("GET")
	acct.HandleFunc("/orders/{id}", handler.CancelOrder).Methods("DELETE")
	acct.HandleFunc("/positions", handler.ListPositions).Methods("GET")
	acct.HandleFunc("/positions/squareoff", handler.SquareOffAll).Methods("POST")
	acct.HandleFunc("/positions/{id}/squareoff", handler.SquareOff).Methods("POST")
	acct.HandleFunc("/holdings", handler.ListHoldings).Methods("GET")
	acct.HandleFunc("/funds", handler.GetFunds).Methods("GET")
	acct.HandleFunc("/reset", handler.Reset).Methods("POST")

	return r
}

// NewServer wraps the router in an http.Server.
func NewServer(addr string, readTimeout, writeTimeout time.Duration, router http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}
