package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	resp "entry_service/internal/lib/api/response"
	sl "entry_service/internal/lib/logger"
	"entry_service/internal/lib/token"
	"entry_service/internal/models"
	"entry_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Store interface {
	SaveUser(ctx context.Context, u models.User) (int64, error)
	UsersByCompany(ctx context.Context, companyID int64) ([]models.User, error)
	DeleteUser(ctx context.Context, id int64) error
	SetVerificationKey(ctx context.Context, userID int64, keyValue string) error
	DeleteVerificationKey(ctx context.Context, userID int64) error
	IssuedTokensByUser(ctx context.Context, userID int64) ([]models.IssuedToken, error)
}

type CreateRequest struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"required"`
	Role        string `json:"role" validate:"required"`
}

type CreateResponse struct {
	resp.Response
	UserID int64 `json:"user_id"`
}

type User struct {
	ID          int64  `json:"id"`
	CompanyID   int64  `json:"company_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
}

type ListResponse struct {
	resp.Response
	Users []User `json:"users"`
}

type SetKeyRequest struct {
	// KeyValue опционален: без него сервер генерирует ключ сам.
	KeyValue string `json:"key_value" validate:"omitempty,min=6"`
}

type SetKeyResponse struct {
	resp.Response
	KeyValue string `json:"key_value"`
}

type IssuedToken struct {
	ID        int64  `json:"id"`
	Token     string `json:"token"`
	CreatedAt string `json:"created_at"`
}

type TokensResponse struct {
	resp.Response
	Tokens []IssuedToken `json:"tokens"`
}

func Create(
	log *slog.Logger,
	validate *validator.Validate,
	store Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.Create"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		companyID, ok := pathID(w, r, log, "id", "Invalid company id")
		if !ok {
			return
		}

		var req CreateRequest

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		id, err := store.SaveUser(ctx, models.User{
			CompanyID:   companyID,
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			PhoneNumber: req.PhoneNumber,
			Role:        req.Role,
		})
		if err != nil {
			if errors.Is(err, storage.ErrCompanyNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Company not found"))

				return
			}
			if errors.Is(err, storage.ErrUserExists) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("User already exists"))

				return
			}

			log.Error("failed to save user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user created", slog.Int64("user_id", id), slog.Int64("company_id", companyID))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, CreateResponse{
			Response: resp.OK(),
			UserID:   id,
		})
	}
}

func List(
	log *slog.Logger,
	store Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.List"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		companyID, ok := pathID(w, r, log, "id", "Invalid company id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		list, err := store.UsersByCompany(ctx, companyID)
		if err != nil {
			log.Error("failed to list users", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		out := make([]User, 0, len(list))
		for _, u := range list {
			out = append(out, User{
				ID:          u.ID,
				CompanyID:   u.CompanyID,
				FirstName:   u.FirstName,
				LastName:    u.LastName,
				PhoneNumber: u.PhoneNumber,
				Role:        u.Role,
			})
		}

		render.JSON(w, r, ListResponse{
			Response: resp.OK(),
			Users:    out,
		})
	}
}

func Delete(
	log *slog.Logger,
	store Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.Delete"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, ok := pathID(w, r, log, "id", "Invalid user id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := store.DeleteUser(ctx, userID); err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to delete user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user deleted", slog.Int64("user_id", userID))

		render.JSON(w, r, resp.OK())
	}
}

// * SetKey создает либо ротирует персональный ключ пользователя.
// Значение ключа возвращается единственный раз, в ответе на ротацию.
func SetKey(
	log *slog.Logger,
	validate *validator.Validate,
	store Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.SetKey"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, ok := pathID(w, r, log, "id", "Invalid user id")
		if !ok {
			return
		}

		var req SetKeyRequest

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		keyValue := req.KeyValue
		if keyValue == "" {
			keyValue, err = token.NewSecret()
			if err != nil {
				log.Error("failed to generate key", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))

				return
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := store.SetVerificationKey(ctx, userID, keyValue); err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to set verification key", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("verification key set", slog.Int64("user_id", userID))

		render.JSON(w, r, SetKeyResponse{
			Response: resp.OK(),
			KeyValue: keyValue,
		})
	}
}

func DeleteKey(
	log *slog.Logger,
	store Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.DeleteKey"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, ok := pathID(w, r, log, "id", "Invalid user id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := store.DeleteVerificationKey(ctx, userID); err != nil {
			if errors.Is(err, storage.ErrKeyNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Verification key not found"))

				return
			}

			log.Error("failed to delete verification key", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("verification key deleted", slog.Int64("user_id", userID))

		render.JSON(w, r, resp.OK())
	}
}

func Tokens(
	log *slog.Logger,
	store Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.Tokens"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID, ok := pathID(w, r, log, "id", "Invalid user id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		tokens, err := store.IssuedTokensByUser(ctx, userID)
		if err != nil {
			log.Error("failed to list issued tokens", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		out := make([]IssuedToken, 0, len(tokens))
		for _, t := range tokens {
			out = append(out, IssuedToken{
				ID:        t.ID,
				Token:     t.Token,
				CreatedAt: t.CreatedAt.Format(time.RFC3339),
			})
		}

		render.JSON(w, r, TokensResponse{
			Response: resp.OK(),
			Tokens:   out,
		})
	}
}

func pathID(w http.ResponseWriter, r *http.Request, log *slog.Logger, param, msg string) (int64, bool) {
	raw := chi.URLParam(r, param)

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Warn("non-numeric path id", slog.String(param, raw))

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error(msg))

		return 0, false
	}

	return id, true
}
