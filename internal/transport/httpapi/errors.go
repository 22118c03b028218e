package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/retry"
)

// errorResponse — тело ответа с ошибкой: сообщение для показа пользователю и ошибки полей формы.
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor сопоставляет доменную ошибку HTTP-статусу.
func statusFor(err error) int {
	var verrs domain.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrOrderStatusTransition),
		errors.Is(err, domain.ErrOrderNotCancelable),
		errors.Is(err, domain.ErrPaymentNotExpected),
		errors.Is(err, domain.ErrAlreadyExists),
		domain.IsIdempotencyConflict(err):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCartEmpty),
		errors.Is(err, domain.ErrCartQuantityInvalid),
		errors.Is(err, domain.ErrProductUnavailable),
		errors.Is(err, domain.ErrUnknownSize),
		errors.Is(err, domain.ErrUnknownOption),
		errors.Is(err, domain.ErrOptionQuantityInvalid),
		errors.Is(err, domain.ErrDeepLinkInvalid),
		errors.Is(err, domain.ErrCustomerRequired),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, retry.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError пишет ошибку; 5xx логируются, а клиенту уходит общее сообщение.
func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	code, body := errorBody(logger, err)
	writeJSON(w, code, body)
}

// errorBody готовит код и тело ответа; детали 5xx наружу не отдаются.
func errorBody(logger *log.Entry, err error) (int, errorResponse) {
	code := statusFor(err)
	body := errorResponse{Error: err.Error()}

	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		body.Error = "please correct the highlighted fields"
		body.Fields = verrs.Fields()
	}
	if code >= http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
		body = errorResponse{Error: http.StatusText(code)}
	}
	return code, body
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON читает тело запроса; неизвестные поля отклоняются.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ValidationErrors{{Field: "body", Message: "must be a valid JSON object"}}
	}
	return nil
}
