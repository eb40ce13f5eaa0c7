package handler

import (
	"net/http"

	"github.com/xenking/webstore/internal/domain/order"
	"github.com/xenking/webstore/internal/domain/validation"
)

// Guest carts are held by the client. Every guest endpoint receives the
// items it needs in the request body.

type guestCartRequest struct {
	Items      []itemRequest `json:"items"`
	CouponCode string        `json:"couponCode"`
}

type guestQuoteResponse struct {
	Items []orderItemView `json:"items"`
	quoteView
}

func (h *Handler) guestCalculate(w http.ResponseWriter, r *http.Request) {
	var req guestCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reqs, err := toRequests(req.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.carts.GuestCalculate(r.Context(), reqs, req.CouponCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := guestQuoteResponse{
		Items:     make([]orderItemView, len(q.Items)),
		quoteView: newQuoteView(q),
	}
	for i, it := range q.Items {
		resp.Items[i] = orderItemView{
			Kind:      it.Ref.Kind,
			ID:        it.Ref.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: Money(it.UnitPrice),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type guestViewResponse struct {
	Cart []lineView `json:"cart"`
}

func (h *Handler) guestViewCart(w http.ResponseWriter, r *http.Request) {
	var req guestCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reqs, err := toRequests(req.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_, lines, err := h.carts.GuestView(r.Context(), reqs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, guestViewResponse{Cart: newLineViews(lines)})
}

type guestItemResponse struct {
	Message string        `json:"message"`
	Item    guestItemView `json:"item"`
}

func (h *Handler) guestAddToCart(w http.ResponseWriter, r *http.Request) {
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
	line, err := h.carts.GuestAdd(r.Context(), ref, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, guestItemResponse{Message: "Item added to cart", Item: newGuestItemView(line)})
}

func (h *Handler) guestUpdateQuantity(w http.ResponseWriter, r *http.Request) {
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
	line, err := h.carts.GuestUpdateQuantity(r.Context(), ref, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, guestItemResponse{Message: "Quantity updated", Item: newGuestItemView(line)})
}

type guestCouponRequest struct {
	Code  string        `json:"code"`
	Items []itemRequest `json:"items"`
}

type guestCouponResponse struct {
	Message string `json:"message"`
	quoteView
}

func (h *Handler) guestApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req guestCouponRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reqs, err := toRequests(req.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.carts.GuestApplyCoupon(r.Context(), req.Code, reqs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, guestCouponResponse{
		Message:   "Coupon applied successfully",
		quoteView: newQuoteView(q),
	})
}

func (h *Handler) guestRemoveCoupon(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "Coupon removed successfully")
}

func (h *Handler) guestClearCart(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "Cart cleared")
}

type guestOrderRequest struct {
	GuestInfo  *guestInfoJSON `json:"guestInfo"`
	Items      []itemRequest  `json:"items"`
	CouponCode string         `json:"couponCode"`
}

func (req guestOrderRequest) placeRequest() (order.PlaceOrderRequest, error) {
	if req.GuestInfo == nil || len(req.Items) == 0 {
		return order.PlaceOrderRequest{}, validation.New("guestInfo", "guest order requires guestInfo and items")
	}
	reqs, err := toRequests(req.Items)
	if err != nil {
		return order.PlaceOrderRequest{}, err
	}
	return order.PlaceOrderRequest{
		Customer:   order.GuestCustomer(order.GuestInfo(*req.GuestInfo)),
		Items:      reqs,
		CouponCode: req.CouponCode,
	}, nil
}

func (h *Handler) guestPlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req guestOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.place(w, r, req)
}
