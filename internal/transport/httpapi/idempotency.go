package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/service/idempotency"
)

const (
	// HeaderIdempotencyKey — ключ повтора запроса от мобильного клиента.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется, когда ответ взят из кеша идемпотентности.
	HeaderIdempotentReplay = "Idempotent-Replayed"
)

// idempotentHandler возвращает статус и тело успешного ответа.
type idempotentHandler func() (int, any, error)

// withIdempotency выполняет мутацию не больше одного раза на ключ клиента.
// Без заголовка Idempotency-Key запрос выполняется как обычно. Ответ с ошибкой
// сохраняется так же, как успешный.
func (s *Server) withIdempotency(w http.ResponseWriter, r *http.Request, scope string, body []byte, handler idempotentHandler) {
	plain := func() {
		code, payload, err := handler()
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, code, payload)
	}
	if s.guard == nil {
		plain()
		return
	}

	fingerprint := idempotency.Fingerprint([]byte(r.Method), []byte(r.URL.Path), body)
	ticket, err := s.guard.Begin(r.Context(), scope, r.Header.Get(HeaderIdempotencyKey), fingerprint)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		plain()
		return
	case errors.Is(err, idempotency.ErrKeyTooLong):
		writeError(w, s.logger, domain.ValidationErrors{{Field: HeaderIdempotencyKey, Message: err.Error()}})
		return
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "idempotency key is already used with a different request"})
		return
	case errors.Is(err, idempotency.ErrInFlight):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	default:
		writeError(w, s.logger, err)
		return
	}

	if rec, ok := ticket.Replay(); ok {
		w.Header().Set(HeaderIdempotentReplay, "true")
		writeRaw(w, rec.HTTPStatus, rec.ResponseBody)
		return
	}

	code, payload, runErr := handler()
	if runErr != nil {
		var resp errorResponse
		code, resp = errorBody(s.logger, runErr)
		payload = resp
	}
	data, err := json.Marshal(payload)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if runErr != nil {
		ticket.Fail(r.Context(), data, code)
	} else {
		ticket.Succeed(r.Context(), data, code)
	}
	writeRaw(w, code, data)
}

func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
