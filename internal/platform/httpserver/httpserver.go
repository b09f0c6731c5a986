package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server for the inspection API. readTimeout bounds reading
// a whole request; header reads are capped separately.
func New(addr string, handler http.Handler, readTimeout time.Duration) *http.Server {
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       readTimeout,
		IdleTimeout:       60 * time.Second,
	}
}
