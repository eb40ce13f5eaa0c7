package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/order"
	"github.com/xenking/webstore/internal/domain/validation"
)

type placeOrderResponse struct {
	Message string    `json:"message"`
	Order   orderView `json:"order"`
}

// placeOrder checks out the stored cart of an authenticated caller. Anonymous
// callers place a guest order from the request body.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	if u, ok := auth.UserFrom(r.Context()); ok {
		o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{Customer: order.Registered(u.ID)})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, placeOrderResponse{Message: "Order placed successfully", Order: newOrderView(o)})
		return
	}

	var req guestOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.place(w, r, req)
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request, req guestOrderRequest) {
	placeReq, err := req.placeRequest()
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.PlaceOrder(r.Context(), placeReq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, placeOrderResponse{Message: "Order placed successfully", Order: newOrderView(o)})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), userFrom(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderViews(orders))
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderViews(orders))
}

// getOrder returns one order to an admin or to the registered owner. Other
// callers get 404 so order IDs cannot be probed.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !isAdmin(r) {
		u, ok := auth.UserFrom(r.Context())
		if !ok || o.Customer.IsGuest() || o.Customer.UserID != u.ID {
			writeError(w, r, order.ErrNotFound)
			return
		}
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	for key := range body {
		if key != "status" {
			writeError(w, r, validation.New(key, "Only status updates are allowed"))
			return
		}
	}
	raw, ok := body["status"]
	if !ok {
		writeError(w, r, validation.New("status", "status is required"))
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		writeError(w, r, validation.New("status", "status must be a string"))
		return
	}
	next, err := order.ParseStatus(s)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), next)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(o))
}
