package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	service "github.com/okian/attest/internal/app"
)

type redeemRejection struct {
	errorResponse
	Coupon *service.CouponView `json:"coupon,omitempty"`
}

type couponListResponse struct {
	OwnerID string               `json:"owner_id"`
	Coupons []service.CouponView `json:"coupons"`
}

// handleRedeem handles POST /v1/coupons/{code}/redeem. Rejections carry the
// coupon when it exists so staff can see why.
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	const op = "api.redeem"
	view, err := s.deps.Redeem(r.Context(), chi.URLParam(r, "code"))
	if err == nil {
		writeJSON(w, http.StatusOK, view)
		return
	}
	code := service.Code(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError || service.Retryable(err) {
		s.writeServiceError(w, r, op, err)
		return
	}
	resp := redeemRejection{errorResponse: errorResponse{Code: code, Message: err.Error()}}
	if view.Code != "" {
		resp.Coupon = &view
	}
	writeJSON(w, status, resp)
}

// handleGetCoupon handles GET /v1/coupons/{code}.
func (s *Server) handleGetCoupon(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Coupon(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeServiceError(w, r, "api.coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleListCoupons handles GET /v1/users/{user}/coupons.
func (s *Server) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "user")
	list, err := s.deps.CouponsByOwner(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, r, "api.user_coupons", err)
		return
	}
	writeJSON(w, http.StatusOK, couponListResponse{OwnerID: owner, Coupons: list})
}
