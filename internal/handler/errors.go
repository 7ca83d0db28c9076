package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gaurosa/storefront/internal/domain/auth"
	"github.com/gaurosa/storefront/internal/domain/catalog"
	"github.com/gaurosa/storefront/internal/domain/checkout"
	"github.com/gaurosa/storefront/internal/domain/promosync"
	"github.com/gaurosa/storefront/internal/domain/promotion"
)

// requestError is a client error with a fixed status and message.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(status int, msg string) error {
	return &requestError{status: status, msg: msg}
}

const msgInvalidJSON = "JSON non valido"

// fail maps err to an error response. Unknown errors are logged and
// reported as 500 without detail.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		reqErr      *requestError
		validErr    validator.ValidationErrors
		couponErr   *checkout.InvalidCouponError
		quantityErr *checkout.InvalidQuantityError
		productErr  *checkout.ProductNotFoundError
	)
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status, reqErr.msg
	case errors.As(err, &validErr):
		return http.StatusBadRequest, validationMessage(validErr)
	case errors.Is(err, checkout.ErrEmptyItems):
		return http.StatusBadRequest, "Il carrello è vuoto"
	case errors.Is(err, promotion.ErrInvalidSubtotal):
		return http.StatusBadRequest, msgEmptyCart
	case errors.Is(err, promosync.ErrEmptyBatch):
		return http.StatusBadRequest, promosync.ErrEmptyBatch.Error()
	case errors.As(err, &couponErr):
		return http.StatusUnprocessableEntity, couponErr.Message
	case errors.As(err, &quantityErr):
		return http.StatusUnprocessableEntity, "Quantità non valida per il prodotto " + quantityErr.ProductCode
	case errors.As(err, &productErr):
		return http.StatusUnprocessableEntity, "Prodotto " + productErr.ProductCode + " non disponibile"
	case errors.Is(err, checkout.ErrBelowMinimum):
		return http.StatusUnprocessableEntity, checkout.ErrBelowMinimum.Error()
	case errors.Is(err, checkout.ErrCouponExhausted):
		return http.StatusConflict, checkout.ErrCouponExhausted.Error()
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "Prodotto non trovato"
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	default:
		return http.StatusInternalServerError, "Errore interno del server"
	}
}

// validationMessage reports the first failing field.
func validationMessage(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "Richiesta non valida"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return "Campo obbligatorio: " + fe.Field()
	case "min", "gte", "gt":
		return "Valore troppo basso: " + fe.Field()
	case "max", "lte":
		return "Valore troppo alto: " + fe.Field()
	default:
		return "Campo non valido: " + fe.Field()
	}
}
