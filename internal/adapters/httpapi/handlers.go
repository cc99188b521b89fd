package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// PaymentsHandler is the demo business endpoint the engine wraps. It stands
// in for whatever costly, non-repeatable operation a deployment protects.
type PaymentsHandler struct{}

func NewPaymentsHandler() *PaymentsHandler { return &PaymentsHandler{} }

type createPaymentRequest struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

type createPaymentResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference,omitempty"`
}

func (h *PaymentsHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if req.Amount <= 0 {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "amount must be positive")
		return
	}
	if len(strings.TrimSpace(req.Currency)) != 3 {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "currency must be a 3-letter code")
		return
	}

	resp := createPaymentResponse{
		ID:        uuid.NewString(),
		Status:    "authorized",
		Amount:    req.Amount,
		Currency:  strings.ToUpper(req.Currency),
		Reference: req.Reference,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}
