package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/cart"
	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/domain/order"
	"github.com/xenking/webstore/internal/domain/stock"
	"github.com/xenking/webstore/internal/domain/validation"
)

const maxBodyBytes = 1 << 20

// Money renders a decimal as a JSON number with exactly two places.
type Money decimal.Decimal

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

// Number renders a decimal as a plain JSON number.
type Number decimal.Decimal

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(n).String()), nil
}

type messageResponse struct {
	Message string `json:"message"`
}

type stockErrorResponse struct {
	Message   string `json:"message"`
	Available int    `json:"available"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// decodeJSON reads a single JSON object from the body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return validation.New("body", "request body is required")
		}
		return validation.Newf("body", "invalid request body: %v", err)
	}
	return nil
}

// clientErrors maps sentinel errors to their status. The sentinel's own
// message is sent so wrapping context never leaks to clients.
var clientErrors = []struct {
	err    error
	status int
}{
	{cart.ErrItemNotInCart, http.StatusNotFound},
	{coupon.ErrCouponNotFound, http.StatusNotFound},
	{order.ErrNotFound, http.StatusNotFound},
	{coupon.ErrCouponInactive, http.StatusBadRequest},
	{coupon.ErrCouponUsageExceeded, http.StatusBadRequest},
	{coupon.ErrCouponNotApplicable, http.StatusBadRequest},
	{coupon.ErrDuplicateCode, http.StatusBadRequest},
	{order.ErrEmptyCart, http.StatusBadRequest},
	{order.ErrIllegalTransition, http.StatusBadRequest},
	{order.ErrConcurrentUpdate, http.StatusConflict},
	{auth.ErrUnauthorized, http.StatusUnauthorized},
	{auth.ErrForbidden, http.StatusForbidden},
}

// writeError maps domain errors to HTTP responses. Anything unrecognised is
// logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr    *stock.InsufficientStockError
		notFoundErr *catalog.NotFoundError
		validErr    *validation.Error
	)
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusBadRequest, stockErrorResponse{
			Message:   stockErr.Error(),
			Available: stockErr.Available,
		})
		return
	case errors.As(err, &notFoundErr):
		writeMessage(w, http.StatusNotFound, notFoundErr.Error())
		return
	case errors.Is(err, catalog.ErrNotFound):
		writeMessage(w, http.StatusNotFound, catalog.ErrNotFound.Error())
		return
	case errors.As(err, &validErr):
		writeMessage(w, http.StatusBadRequest, validErr.Error())
		return
	}

	for _, ce := range clientErrors {
		if errors.Is(err, ce.err) {
			writeMessage(w, ce.status, ce.err.Error())
			return
		}
	}

	if ctxErr := r.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		zctx.From(r.Context()).Warn("Request cancelled", zap.Error(err))
		writeMessage(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}

	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeMessage(w, http.StatusInternalServerError, "internal server error")
}
