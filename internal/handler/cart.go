package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/validation"
)

const msgClamped = "Quantity updated to maximum available stock"

// pathRef reads the cart line addressed by the URL. The kind query
// parameter selects the package space; products are the default.
func pathRef(r *http.Request) (catalog.Ref, error) {
	id := chi.URLParam(r, "itemId")
	switch kind := catalog.Kind(r.URL.Query().Get("kind")); kind {
	case "", catalog.KindProduct:
		return catalog.ProductRef(id), nil
	case catalog.KindPackage:
		return catalog.PackageRef(id), nil
	default:
		return catalog.Ref{}, validation.Newf("kind", "unknown item kind %q", kind)
	}
}

// respondCart writes the freshly priced cart of the current user.
func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, status int, msg string) {
	v, err := h.carts.View(r.Context(), userFrom(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, newCartView(v, msg))
}

func (h *Handler) viewCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r, http.StatusOK, "")
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ref, err := req.ref()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.carts.AddItem(r.Context(), userFrom(r).ID, ref, req.Quantity); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK, "Item added to cart")
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

// updateCartItem changes the line quantity by the given delta.
func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	ref, err := pathRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, validation.New("quantity", "quantity is required"))
		return
	}

	res, err := h.carts.UpdateQuantity(r.Context(), userFrom(r).ID, ref, *req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := "Quantity updated"
	if res.Clamped {
		msg = msgClamped
	}
	h.respondCart(w, r, http.StatusOK, msg)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	ref, err := pathRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.carts.RemoveItem(r.Context(), userFrom(r).ID, ref); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK, "Item removed from cart")
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), userFrom(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK, "Cart cleared")
}

type couponCodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.ApplyCoupon(r.Context(), userFrom(r).ID, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK, "Coupon applied successfully")
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.RemoveCoupon(r.Context(), userFrom(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r, http.StatusOK, "Coupon removed successfully")
}
