package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BrightonDube/bizpilot-backend/api/middleware"
	"github.com/BrightonDube/bizpilot-backend/api/responses"
	"github.com/BrightonDube/bizpilot-backend/api/validators"
	laybysvc "github.com/BrightonDube/bizpilot-backend/internal/laybys"
	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	pkgerrors "github.com/BrightonDube/bizpilot-backend/pkg/errors"
	"github.com/BrightonDube/bizpilot-backend/pkg/logger"
	"github.com/BrightonDube/bizpilot-backend/pkg/pagination"
)

type laybyItemRequest struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Name      string          `json:"name" validate:"required,min=1,max=200"`
	SKU       string          `json:"sku" validate:"required,min=1,max=64"`
	Qty       int             `json:"qty" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Tax       decimal.Decimal `json:"tax"`
}

type createLaybyRequest struct {
	CustomerID    uuid.UUID          `json:"customer_id" validate:"required"`
	Items         []laybyItemRequest `json:"items" validate:"required,min=1,dive"`
	Deposit       decimal.Decimal    `json:"deposit"`
	DepositMethod string             `json:"deposit_method" validate:"required"`
	Frequency     string             `json:"frequency" validate:"required"`
	DurationDays  int                `json:"duration_days" validate:"omitempty,gt=0"`
	Notes         *string            `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// CreateLayby opens a new layby agreement for the tenant in context.
func CreateLayby(svc laybysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createLaybyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		frequency, err := enums.ParsePaymentFrequency(payload.Frequency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid frequency"))
			return
		}
		method, err := enums.ParsePaymentMethod(payload.DepositMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid deposit method"))
			return
		}

		items := make([]laybysvc.ItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, laybysvc.ItemInput{
				ProductID: item.ProductID,
				Name:      validators.SanitizeString(item.Name, 200),
				SKU:       validators.SanitizeString(item.SKU, 64),
				Qty:       item.Qty,
				UnitPrice: item.UnitPrice,
				Discount:  item.Discount,
				Tax:       item.Tax,
			})
		}

		detail, err := svc.Create(r.Context(), laybysvc.CreateInput{
			BusinessID:    middleware.BusinessIDFromContext(r.Context()),
			LocationID:    middleware.LocationIDFromContext(r.Context()),
			CustomerID:    payload.CustomerID,
			Items:         items,
			Deposit:       payload.Deposit,
			DepositMethod: method,
			Frequency:     frequency,
			DurationDays:  payload.DurationDays,
			Notes:         payload.Notes,
			ActorUserID:   middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newLaybyResponse(detail.Layby))
	}
}

// GetLayby returns a single layby with its items, schedule and payments.
func GetLayby(svc laybysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		laybyID, err := urlUUID(r, "laybyID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.Get(r.Context(), laybyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if detail.BusinessID != middleware.BusinessIDFromContext(r.Context()) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "layby not found"))
			return
		}
		responses.WriteSuccess(w, newLaybyResponse(detail.Layby))
	}
}

// ListLaybys returns a cursor page of laybys for the tenant.
func ListLaybys(svc laybysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := laybysvc.ListFilter{
			BusinessID: middleware.BusinessIDFromContext(r.Context()),
		}
		if raw := validators.QueryString(r, "location_id"); raw != "" {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "location_id must be a uuid"))
				return
			}
			filter.LocationID = id
		}
		if raw := validators.QueryString(r, "customer_id"); raw != "" {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "customer_id must be a uuid"))
				return
			}
			filter.CustomerID = id
		}
		if raw := validators.QueryString(r, "status"); raw != "" {
			status, parseErr := enums.ParseLaybyStatus(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid status filter"))
				return
			}
			filter.Status = status
		}

		list, err := svc.List(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: validators.QueryString(r, "cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows := make([]laybyResponse, 0, len(list.Laybys))
		for i := range list.Laybys {
			rows = append(rows, newLaybyResponse(&list.Laybys[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"laybys":      rows,
			"next_cursor": list.NextCursor,
		})
	}
}

type recordPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required"`
	Reference *string         `json:"reference,omitempty" validate:"omitempty,max=128"`
	Notes     *string         `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// RecordLaybyPayment applies a tendered amount to the layby balance.
func RecordLaybyPayment(svc laybysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		laybyID, err := urlUUID(r, "laybyID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload recordPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		result, err := svc.RecordPayment(r.Context(), laybyID, laybysvc.PaymentInput{
			Amount:      payload.Amount,
			Method:      method,
			Reference:   payload.Reference,
			Notes:       payload.Notes,
			ActorUserID: middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"payment":        newPaymentResponse(result.Payment),
			"applied_amount": result.AppliedAmount.StringFixed(2),
			"excess":         result.Excess.StringFixed(2),
			"balance_due":    result.BalanceDue.StringFixed(2),
			"status":         result.Layby.Status,
		})
	}
}

type refundPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,min=3,max=500"`
}

// RefundLaybyPayment refunds part or all of one payment.
func RefundLaybyPayment(svc laybysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paymentID, err := urlUUID(r, "paymentID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refunded, err := svc.RefundPayment(r.Context(), paymentID, laybysvc.RefundInput{
			Amount:      payload.Amount,
			Reason:      validators.SanitizeString(payload.Reason, 500),
			ActorUserID: middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPaymentResponse(refunded))
	}
}

type extendLaybyRequest struct {
	AdditionalDays int     `json:"additional_days" validate:"required,gt=0"`
	Reason         *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// ExtendLayby pushes the end date out and regenerates the open schedule.
func ExtendLayby(svc laybysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		laybyID, err := urlUUID(r, "laybyID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload extendLaybyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason := ""
		if payload.Reason != nil {
			reason = validators.SanitizeString(*payload.Reason, 500)
		}

		detail, err := svc.Extend(r.Context(), laybyID, laybysvc.ExtendInput{
			AdditionalDays: payload.AdditionalDays,
			Reason:         reason,
			ActorUserID:    middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLaybyResponse(detail.Layby))
	}
}

type cancelLaybyRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// CancelLayby cancels the agreement, releasing its stock holds.
func CancelLayby(svc laybysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		laybyID, err := urlUUID(r, "laybyID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelLaybyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Cancel(r.Context(), laybyID, laybysvc.CancelInput{
			Reason:      validators.SanitizeString(payload.Reason, 500),
			ActorUserID: middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLaybyResponse(detail.Layby))
	}
}

// CollectLayby hands the goods over on a fully paid layby.
func CollectLayby(svc laybysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		laybyID, err := urlUUID(r, "laybyID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Collect(r.Context(), laybyID, laybysvc.CollectInput{
			ActorUserID: middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLaybyResponse(detail.Layby))
	}
}

func urlUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, param+" must be a uuid")
	}
	return id, nil
}

type laybyResponse struct {
	ID                uuid.UUID          `json:"id"`
	Reference         string             `json:"reference"`
	BusinessID        uuid.UUID          `json:"business_id"`
	LocationID        uuid.UUID          `json:"location_id"`
	CustomerID        uuid.UUID          `json:"customer_id"`
	Subtotal          string             `json:"subtotal"`
	Tax               string             `json:"tax"`
	Total             string             `json:"total"`
	Deposit           string             `json:"deposit"`
	AmountPaid        string             `json:"amount_paid"`
	BalanceDue        string             `json:"balance_due"`
	Frequency         string             `json:"frequency"`
	StartDate         time.Time          `json:"start_date"`
	EndDate           time.Time          `json:"end_date"`
	OriginalEndDate   *time.Time         `json:"original_end_date,omitempty"`
	NextPaymentDate   *time.Time         `json:"next_payment_date,omitempty"`
	NextPaymentAmount *string            `json:"next_payment_amount,omitempty"`
	ExtensionCount    int                `json:"extension_count"`
	Status            string             `json:"status"`
	Notes             *string            `json:"notes,omitempty"`
	CancellationFee   *string            `json:"cancellation_fee,omitempty"`
	CancelledAt       *time.Time         `json:"cancelled_at,omitempty"`
	CollectedAt       *time.Time         `json:"collected_at,omitempty"`
	Items             []itemResponse     `json:"items,omitempty"`
	Schedules         []scheduleResponse `json:"schedule,omitempty"`
	Payments          []paymentResponse  `json:"payments,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

type itemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku"`
	Qty       int       `json:"qty"`
	UnitPrice string    `json:"unit_price"`
	Discount  string    `json:"discount"`
	Tax       string    `json:"tax"`
	Total     string    `json:"total"`
}

type scheduleResponse struct {
	ID                uuid.UUID  `json:"id"`
	InstallmentNumber int        `json:"installment_number"`
	DueDate           time.Time  `json:"due_date"`
	AmountDue         string     `json:"amount_due"`
	AmountPaid        string     `json:"amount_paid"`
	Status            string     `json:"status"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
}

type paymentResponse struct {
	ID             uuid.UUID  `json:"id"`
	LaybyID        uuid.UUID  `json:"layby_id"`
	Amount         string     `json:"amount"`
	AppliedAmount  string     `json:"applied_amount"`
	Method         string     `json:"method"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	Reference      *string    `json:"reference,omitempty"`
	RefundedAmount *string    `json:"refunded_amount,omitempty"`
	RefundedAt     *time.Time `json:"refunded_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newLaybyResponse(layby *models.Layby) laybyResponse {
	resp := laybyResponse{
		ID:              layby.ID,
		Reference:       layby.Reference,
		BusinessID:      layby.BusinessID,
		LocationID:      layby.LocationID,
		CustomerID:      layby.CustomerID,
		Subtotal:        layby.Subtotal.StringFixed(2),
		Tax:             layby.Tax.StringFixed(2),
		Total:           layby.Total.StringFixed(2),
		Deposit:         layby.Deposit.StringFixed(2),
		AmountPaid:      layby.AmountPaid.StringFixed(2),
		BalanceDue:      layby.BalanceDue.StringFixed(2),
		Frequency:       string(layby.Frequency),
		StartDate:       layby.StartDate,
		EndDate:         layby.EndDate,
		OriginalEndDate: layby.OriginalEndDate,
		NextPaymentDate: layby.NextPaymentDate,
		ExtensionCount:  layby.ExtensionCount,
		Status:          string(layby.Status),
		Notes:           layby.Notes,
		CancelledAt:     layby.CancelledAt,
		CollectedAt:     layby.CollectedAt,
		CreatedAt:       layby.CreatedAt,
	}
	if layby.NextPaymentAmount != nil {
		v := layby.NextPaymentAmount.StringFixed(2)
		resp.NextPaymentAmount = &v
	}
	if layby.CancellationFee != nil {
		v := layby.CancellationFee.StringFixed(2)
		resp.CancellationFee = &v
	}
	for _, item := range layby.Items {
		resp.Items = append(resp.Items, itemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Discount:  item.Discount.StringFixed(2),
			Tax:       item.Tax.StringFixed(2),
			Total:     item.Total.StringFixed(2),
		})
	}
	for _, row := range layby.Schedules {
		resp.Schedules = append(resp.Schedules, scheduleResponse{
			ID:                row.ID,
			InstallmentNumber: row.InstallmentNumber,
			DueDate:           row.DueDate,
			AmountDue:         row.AmountDue.StringFixed(2),
			AmountPaid:        row.AmountPaid.StringFixed(2),
			Status:            string(row.Status),
			PaidAt:            row.PaidAt,
		})
	}
	for i := range layby.Payments {
		resp.Payments = append(resp.Payments, newPaymentResponse(&layby.Payments[i]))
	}
	return resp
}

func newPaymentResponse(payment *models.LaybyPayment) paymentResponse {
	resp := paymentResponse{
		ID:            payment.ID,
		LaybyID:       payment.LaybyID,
		Amount:        payment.Amount.StringFixed(2),
		AppliedAmount: payment.AppliedAmount.StringFixed(2),
		Method:        string(payment.Method),
		Type:          string(payment.Type),
		Status:        string(payment.Status),
		Reference:     payment.Reference,
		RefundedAt:    payment.RefundedAt,
		CreatedAt:     payment.CreatedAt,
	}
	if payment.RefundedAmount != nil {
		v := payment.RefundedAmount.StringFixed(2)
		resp.RefundedAmount = &v
	}
	return resp
}
