package rateLimit

import (
	"net/http"
	"time"

	httprate "github.com/go-chi/httprate"
)

func Entry() func(http.Handler) http.Handler {
	return limitByIP(30, 5*time.Minute)
}

func AdminWrite() func(http.Handler) http.Handler {
	return limitByIP(60, 10*time.Minute)
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window)
}
