package entry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	entrysvc "entry_service/internal/entry"
	sl "entry_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// ErrResponse — публичный контракт ошибок точки входа: голый объект с полем error.
type ErrResponse struct {
	Error string `json:"error"`
}

func New(
	log *slog.Logger,
	service *entrysvc.Entry,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.entry.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		q := r.URL.Query()

		params := entrysvc.Params{
			CompanyName: q.Get("company_name"),
			Phone:       q.Get("phone"),
			FirstName:   q.Get("first_name"),
			LastName:    q.Get("last_name"),
			Key:         q.Get("key"),
			Token:       q.Get("token"),
		}

		if raw := q.Get("company_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				log.Warn("non-numeric company_id", slog.String("company_id", raw))

				renderError(w, r, http.StatusBadRequest, "Invalid company_id")

				return
			}

			params.CompanyID = id
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		result, err := service.Enter(ctx, params)
		if err != nil {
			status, msg := mapError(err)

			if status == http.StatusInternalServerError {
				log.Error("entry failed", sl.Err(err))
			} else {
				log.Info("entry rejected", sl.Err(err))
			}

			renderError(w, r, status, msg)

			return
		}

		log.Info("entry succeeded", slog.Bool("issued", result.Issued))

		http.Redirect(w, r, result.RedirectURL, http.StatusFound)
	}
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, entrysvc.ErrMissingCompany):
		return http.StatusBadRequest, "Missing company identifier (company_id or company_name)"
	case errors.Is(err, entrysvc.ErrMissingIdentifier):
		return http.StatusBadRequest, "Missing user identifier (phone or first_name+last_name)"
	case errors.Is(err, entrysvc.ErrMissingKey):
		return http.StatusBadRequest, "Missing personal key"
	case errors.Is(err, entrysvc.ErrCompanyNotFound):
		return http.StatusNotFound, "Company not found"
	case errors.Is(err, entrysvc.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, entrysvc.ErrInvalidKey):
		return http.StatusUnauthorized, "Invalid personal key"
	case errors.Is(err, entrysvc.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "Too many failed attempts, try again later"
	case errors.Is(err, entrysvc.ErrNoCallbackURL), errors.Is(err, entrysvc.ErrNoActiveSecret):
		return http.StatusInternalServerError, "Server misconfigured"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrResponse{Error: msg})
}
