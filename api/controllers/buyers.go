package controllers

import (
	"net/http"

	"github.com/crsmanager/crs-backend/api/responses"
	"github.com/crsmanager/crs-backend/api/validators"
	"github.com/crsmanager/crs-backend/internal/buyers"
	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
	"github.com/crsmanager/crs-backend/pkg/logger"
)

const maxSearchLength = 128

type buyerRequest struct {
	Name    string  `json:"name" validate:"required,max=255"`
	Address string  `json:"address" validate:"required,max=1024"`
	State   string  `json:"state" validate:"required,max=64"`
	GST     *string `json:"gst,omitempty" validate:"omitempty,max=32"`
	Alias   *string `json:"alias,omitempty" validate:"omitempty,max=255"`
}

func (r buyerRequest) toInput() buyers.BuyerInput {
	return buyers.BuyerInput{
		Name:    r.Name,
		Address: r.Address,
		State:   r.State,
		GST:     r.GST,
		Alias:   r.Alias,
	}
}

// ListBuyers returns buyers whose name contains ?q=, sorted by name.
func ListBuyers(svc buyers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "buyer service unavailable"))
			return
		}

		query := ""
		if q := validators.ParseQueryString(r, "q", maxSearchLength); q != nil {
			query = *q
		}
		responses.WriteList(w, svc.List(r.Context(), query))
	}
}

func GetBuyer(svc buyers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "buyer service unavailable"))
			return
		}

		id, err := validators.ParsePathID(r, "buyerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyer, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, buyer)
	}
}

func CreateBuyer(svc buyers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "buyer service unavailable"))
			return
		}

		var payload buyerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyer, err := svc.Create(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, buyer)
	}
}

// UpdateBuyer replaces every mutable field of a buyer.
func UpdateBuyer(svc buyers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "buyer service unavailable"))
			return
		}

		id, err := validators.ParsePathID(r, "buyerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload buyerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyer, err := svc.Update(r.Context(), id, payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, buyer)
	}
}

func DeleteBuyer(svc buyers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "buyer service unavailable"))
			return
		}

		id, err := validators.ParsePathID(r, "buyerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
