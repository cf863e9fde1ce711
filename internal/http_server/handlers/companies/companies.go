package companies

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
	SaveCompany(ctx context.Context, c models.Company) (int64, error)
	Companies(ctx context.Context) ([]models.Company, error)
	CompanyByID(ctx context.Context, id int64) (models.Company, error)
	UsersByCompany(ctx context.Context, companyID int64) ([]models.User, error)
	DeleteCompany(ctx context.Context, id int64) error
	RotateSecret(ctx context.Context, companyID int64, secret string) error
}

type CreateRequest struct {
	Name            string `json:"name" validate:"required"`
	CallbackURL     string `json:"callback_url" validate:"omitempty,url"`
	JWTAlg          string `json:"jwt_alg" validate:"omitempty,oneof=HS256 HS384 HS512"`
	TokenTTLSeconds int64  `json:"token_ttl_seconds" validate:"gte=0"`
}

type CreateResponse struct {
	resp.Response
	CompanyID int64 `json:"company_id"`
}

type Company struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	CallbackURL     string `json:"callback_url,omitempty"`
	JWTAlg          string `json:"jwt_alg"`
	TokenTTLSeconds int64  `json:"token_ttl_seconds"`
	CreatedAt       string `json:"created_at"`
}

type ListResponse struct {
	resp.Response
	Companies []Company `json:"companies"`
}

type DetailResponse struct {
	resp.Response
	Company Company `json:"company"`
	Users   []User  `json:"users"`
}

type User struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
}

type RotateSecretResponse struct {
	resp.Response
	// Secret отдается единственный раз, при ротации. Дальше он только в базе.
	Secret string `json:"secret"`
}

func Create(
	log *slog.Logger,
	validate *validator.Validate,
	store Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.companies.Create"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

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

		company := models.Company{
			Name:            req.Name,
			CallbackURL:     req.CallbackURL,
			JWTAlg:          models.SigningAlg(req.JWTAlg),
			TokenTTLSeconds: req.TokenTTLSeconds,
		}

		if company.JWTAlg == "" {
			company.JWTAlg = models.AlgHS256
		}
		if company.TokenTTLSeconds == 0 {
			company.TokenTTLSeconds = int64(models.DefaultTokenTTL / time.Second)
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		id, err := store.SaveCompany(ctx, company)
		if err != nil {
			if errors.Is(err, storage.ErrCompanyExists) {
				log.Warn("company already exists", slog.String("name", req.Name))

				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("Company already exists"))

				return
			}

			log.Error("failed to save company", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("company created", slog.Int64("company_id", id))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, CreateResponse{
			Response:  resp.OK(),
			CompanyID: id,
		})
	}
}

func List(
	log *slog.Logger,
	store Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.companies.List"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		companies, err := store.Companies(ctx)
		if err != nil {
			log.Error("failed to list companies", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		out := make([]Company, 0, len(companies))
		for _, c := range companies {
			out = append(out, toCompany(c))
		}

		render.JSON(w, r, ListResponse{
			Response:  resp.OK(),
			Companies: out,
		})
	}
}

func Get(
	log *slog.Logger,
	store Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.companies.Get"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, ok := companyID(w, r, log)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		company, err := store.CompanyByID(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrCompanyNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Company not found"))

				return
			}

			log.Error("failed to get company", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		users, err := store.UsersByCompany(ctx, id)
		if err != nil {
			log.Error("failed to list company users", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		outUsers := make([]User, 0, len(users))
		for _, u := range users {
			outUsers = append(outUsers, User{
				ID:          u.ID,
				FirstName:   u.FirstName,
				LastName:    u.LastName,
				PhoneNumber: u.PhoneNumber,
				Role:        u.Role,
			})
		}

		render.JSON(w, r, DetailResponse{
			Response: resp.OK(),
			Company:  toCompany(company),
			Users:    outUsers,
		})
	}
}

func Delete(
	log *slog.Logger,
	store Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.companies.Delete"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, ok := companyID(w, r, log)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := store.DeleteCompany(ctx, id); err != nil {
			if errors.Is(err, storage.ErrCompanyNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Company not found"))

				return
			}

			log.Error("failed to delete company", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("company deleted", slog.Int64("company_id", id))

		render.JSON(w, r, resp.OK())
	}
}

// * RotateSecret выпускает новый активный подписывающий секрет компании.
// Прежние секреты деактивируются: токены, подписанные ими, перестают проходить
// короткий путь и деградируют до входа по ключу.
func RotateSecret(
	log *slog.Logger,
	store Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.companies.RotateSecret"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, ok := companyID(w, r, log)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if _, err := store.CompanyByID(ctx, id); err != nil {
			if errors.Is(err, storage.ErrCompanyNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Company not found"))

				return
			}

			log.Error("failed to get company", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		secret, err := token.NewSecret()
		if err != nil {
			log.Error("failed to generate secret", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if err := store.RotateSecret(ctx, id, secret); err != nil {
			log.Error("failed to rotate secret", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("signing secret rotated", slog.Int64("company_id", id))

		render.JSON(w, r, RotateSecretResponse{
			Response: resp.OK(),
			Secret:   secret,
		})
	}
}

func toCompany(c models.Company) Company {
	return Company{
		ID:              c.ID,
		Name:            c.Name,
		CallbackURL:     c.CallbackURL,
		JWTAlg:          string(c.JWTAlg),
		TokenTTLSeconds: c.TokenTTLSeconds,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
}

func companyID(w http.ResponseWriter, r *http.Request, log *slog.Logger) (int64, bool) {
	raw := chi.URLParam(r, "id")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Warn("non-numeric company id", slog.String("id", raw))

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error("Invalid company id"))

		return 0, false
	}

	return id, true
}
