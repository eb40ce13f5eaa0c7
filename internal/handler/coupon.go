package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/webstore/internal/domain/coupon"
	"github.com/xenking/webstore/internal/domain/validation"
)

type createCouponRequest struct {
	Code               string           `json:"code"`
	DiscountPercentage *decimal.Decimal `json:"discountPercentage"`
	MaxUsage           *int             `json:"maxUsage"`
	MaxDiscountValue   *decimal.Decimal `json:"maxDiscountValue"`
	ApplicableProducts []string         `json:"applicableProducts"`
	ApplicablePackages []string         `json:"applicablePackages"`
	IsActive           *bool            `json:"isActive"`
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]couponView, len(coupons))
	for i := range coupons {
		views[i] = newCouponView(&coupons[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.DiscountPercentage == nil {
		writeError(w, r, validation.New("discountPercentage", "discount percentage is required"))
		return
	}
	c := coupon.Coupon{
		Code:               req.Code,
		DiscountPercentage: *req.DiscountPercentage,
		MaxUsage:           req.MaxUsage,
		MaxDiscountValue:   req.MaxDiscountValue,
		ApplicableProducts: req.ApplicableProducts,
		ApplicablePackages: req.ApplicablePackages,
		IsActive:           true,
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}

	created, err := h.coupons.Create(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCouponView(created))
}

// parsePatch decodes a partial update. An explicit null clears maxUsage or
// maxDiscountValue; an absent key leaves it unchanged.
func parsePatch(body map[string]json.RawMessage) (coupon.Patch, error) {
	var p coupon.Patch
	for key, raw := range body {
		var err error
		switch key {
		case "code":
			p.Code = new(string)
			err = json.Unmarshal(raw, p.Code)
		case "discountPercentage":
			p.DiscountPercentage = new(decimal.Decimal)
			err = json.Unmarshal(raw, p.DiscountPercentage)
		case "maxUsage":
			p.SetMaxUsage = true
			err = json.Unmarshal(raw, &p.MaxUsage)
		case "maxDiscountValue":
			p.SetMaxDiscountValue = true
			err = json.Unmarshal(raw, &p.MaxDiscountValue)
		case "applicableProducts":
			p.ApplicableProducts = new([]string)
			err = json.Unmarshal(raw, p.ApplicableProducts)
		case "applicablePackages":
			p.ApplicablePackages = new([]string)
			err = json.Unmarshal(raw, p.ApplicablePackages)
		case "isActive":
			p.IsActive = new(bool)
			err = json.Unmarshal(raw, p.IsActive)
		default:
			return coupon.Patch{}, validation.Newf(key, "unknown field %q", key)
		}
		if err != nil {
			return coupon.Patch{}, validation.Newf(key, "invalid %s: %v", key, err)
		}
	}
	return p, nil
}

func (h *Handler) updateCoupon(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := parsePatch(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.coupons.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCouponView(c))
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Coupon deleted successfully")
}
