package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/crsmanager/crs-backend/api/responses"
	"github.com/crsmanager/crs-backend/api/validators"
	"github.com/crsmanager/crs-backend/internal/cache"
	"github.com/crsmanager/crs-backend/internal/challans"
	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
	"github.com/crsmanager/crs-backend/pkg/logger"
	"github.com/crsmanager/crs-backend/pkg/pagination"
	"github.com/crsmanager/crs-backend/pkg/types"
)

const maxSessionLength = 9

type productRequest struct {
	Description  string  `json:"description" validate:"required,max=1024"`
	Quantity     int     `json:"quantity" validate:"required,gt=0"`
	Comment      *string `json:"comment,omitempty" validate:"omitempty,max=1024"`
	SerialNumber *string `json:"serial_number,omitempty" validate:"omitempty,max=128"`
}

type createChallanRequest struct {
	Number          int              `json:"number" validate:"omitempty,gt=0"`
	Session         string           `json:"session" validate:"omitempty,len=9"`
	BuyerID         int64            `json:"buyer_id" validate:"required,gt=0"`
	DeliveredBy     string           `json:"delivered_by" validate:"required,max=255"`
	VehicleNumber   string           `json:"vehicle_number" validate:"required,max=32"`
	Value           decimal.Decimal  `json:"value"`
	Notes           *string          `json:"notes,omitempty" validate:"omitempty,max=2048"`
	Received        bool             `json:"received"`
	Cancelled       bool             `json:"cancelled"`
	DigitallySigned bool             `json:"digitally_signed"`
	Products        []productRequest `json:"products" validate:"dive"`
}

func (r createChallanRequest) toInput() challans.CreateChallanInput {
	return challans.CreateChallanInput{
		Number:          r.Number,
		Session:         r.Session,
		BuyerID:         r.BuyerID,
		DeliveredBy:     r.DeliveredBy,
		VehicleNumber:   r.VehicleNumber,
		Value:           r.Value,
		Notes:           r.Notes,
		Received:        r.Received,
		Cancelled:       r.Cancelled,
		DigitallySigned: r.DigitallySigned,
		Products:        toProductInputs(r.Products),
	}
}

// patchChallanRequest keeps track of which keys the caller sent. Field
// contents are checked by the service.
type patchChallanRequest struct {
	Number          types.Field[int]              `json:"number"`
	Session         types.Field[string]           `json:"session"`
	BuyerID         types.Field[int64]            `json:"buyer_id"`
	DeliveredBy     types.Field[string]           `json:"delivered_by"`
	VehicleNumber   types.Field[string]           `json:"vehicle_number"`
	Value           types.Field[decimal.Decimal]  `json:"value"`
	Notes           types.Field[*string]          `json:"notes"`
	Received        types.Field[bool]             `json:"received"`
	Cancelled       types.Field[bool]             `json:"cancelled"`
	DigitallySigned types.Field[bool]             `json:"digitally_signed"`
	Products        types.Field[[]productRequest] `json:"products"`
}

func (r patchChallanRequest) toPatch() challans.ChallanPatch {
	patch := challans.ChallanPatch{
		Number:          r.Number,
		Session:         r.Session,
		BuyerID:         r.BuyerID,
		DeliveredBy:     r.DeliveredBy,
		VehicleNumber:   r.VehicleNumber,
		Value:           r.Value,
		Notes:           r.Notes,
		Received:        r.Received,
		Cancelled:       r.Cancelled,
		DigitallySigned: r.DigitallySigned,
	}
	if r.Products.Set {
		patch.Products = types.Some(toProductInputs(r.Products.Value))
	}
	return patch
}

func toProductInputs(items []productRequest) []challans.ProductInput {
	out := make([]challans.ProductInput, 0, len(items))
	for _, item := range items {
		out = append(out, challans.ProductInput{
			Description:  item.Description,
			Quantity:     item.Quantity,
			Comment:      item.Comment,
			SerialNumber: item.SerialNumber,
		})
	}
	return out
}

// ListChallans returns challans newest first, optionally filtered by
// buyer_id, session, received and cancelled. Passing limit or cursor switches
// to paged output.
func ListChallans(svc challans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "challan service unavailable"))
			return
		}

		filter, err := parseChallanFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := svc.List(r.Context(), filter)

		query := r.URL.Query()
		if !query.Has("limit") && !query.Has("cursor") {
			responses.WriteList(w, items)
			return
		}

		limit, err := validators.ParseQueryInt64(r, "limit")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{Cursor: query.Get("cursor")}
		if limit != nil {
			params.Limit = int(*limit)
		}
		page, next, err := pagination.Page(items, func(c cache.Challan) int64 { return c.ID }, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").WithDetails(map[string]any{"field": "cursor"}))
			return
		}
		responses.WritePage(w, page, next)
	}
}

func parseChallanFilter(r *http.Request) (challans.ListFilter, error) {
	var filter challans.ListFilter
	var err error
	if filter.BuyerID, err = validators.ParseQueryInt64(r, "buyer_id"); err != nil {
		return filter, err
	}
	if filter.Received, err = validators.ParseQueryBool(r, "received"); err != nil {
		return filter, err
	}
	if filter.Cancelled, err = validators.ParseQueryBool(r, "cancelled"); err != nil {
		return filter, err
	}
	filter.Session = validators.ParseQueryString(r, "session", maxSessionLength)
	if filter.Session != nil && !challans.ValidSession(*filter.Session) {
		return filter, pkgerrors.New(pkgerrors.CodeValidation, "session must look like 2024-2025").WithDetails(map[string]any{"field": "session"})
	}
	return filter, nil
}

// NewChallanInfo suggests the session and number for the next challan.
func NewChallanInfo(svc challans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "challan service unavailable"))
			return
		}

		info, err := svc.NewChallanInfo(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

func GetChallan(svc challans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "challan service unavailable"))
			return
		}

		id, err := validators.ParsePathID(r, "challanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		challan, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, challan)
	}
}

func CreateChallan(svc challans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "challan service unavailable"))
			return
		}

		var payload createChallanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		challan, err := svc.Create(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, challan)
	}
}

// UpdateChallan applies a partial update. Keys absent from the body keep their
// current value; an explicit null clears optional fields.
func UpdateChallan(svc challans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "challan service unavailable"))
			return
		}

		id, err := validators.ParsePathID(r, "challanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload patchChallanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		challan, err := svc.Update(r.Context(), id, payload.toPatch())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, challan)
	}
}
