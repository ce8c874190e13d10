package httpapi

import (
	"context"
	"net/http"

	"github.com/nilelink/trustcore/internal/app/domain/order"
)

func (h *handler) orders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		OrderID      string `json:"order_id"`
		TenantAddr   string `json:"tenant_addr"`
		CustomerAddr string `json:"customer_addr"`
		AmountUsd6   int64  `json:"amount_usd6"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	ord, err := h.app.Settlement.CreateOrder(r.Context(), payload.OrderID, payload.TenantAddr, payload.CustomerAddr, payload.AmountUsd6)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOrder(ord))
}

func (h *handler) orderResources(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r.URL.Path, "/v1/orders")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	orderID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ord, err := h.app.Settlement.GetOrder(r.Context(), orderID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOrder(ord))
		return
	}

	switch parts[1] {
	case "confirm":
		h.orderConfirm(w, r, orderID)
	case "complete":
		h.orderMutation(w, r, orderID, h.app.Settlement.CompleteOrder)
	case "refund":
		h.orderMutation(w, r, orderID, h.app.Settlement.RefundOrder)
	case "cancel":
		h.orderMutation(w, r, orderID, h.app.Settlement.CancelOrder)
	case "fees":
		h.orderFees(w, r, orderID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// orderConfirm runs payment confirmation. A held order is not an error: the
// response carries the assessment and a 202 so terminals can distinguish
// "under review" from "confirmed".
func (h *handler) orderConfirm(w http.ResponseWriter, r *http.Request, orderID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ord, assessment, err := h.app.Settlement.ConfirmPayment(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if assessment.IsAnomaly {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]interface{}{
		"order":      viewOrder(ord),
		"assessment": viewAssessment(assessment),
	})
}

type orderOpFunc func(ctx context.Context, orderID string) (order.Order, error)

func (h *handler) orderMutation(w http.ResponseWriter, r *http.Request, orderID string, op orderOpFunc) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ord, err := op(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOrder(ord))
}

func (h *handler) orderFees(w http.ResponseWriter, r *http.Request, orderID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	fees, err := h.app.Settlement.ListFeeEntries(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]feeEntryView, len(fees))
	for i, fee := range fees {
		views[i] = viewFeeEntry(fee)
	}
	writeJSON(w, http.StatusOK, views)
}

// checkout is the single-call terminal flow: device check, order creation,
// payment confirmation and settlement in one round trip.
func (h *handler) checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		DeviceAddr   string `json:"device_addr"`
		OrderID      string `json:"order_id"`
		TenantAddr   string `json:"tenant_addr"`
		CustomerAddr string `json:"customer_addr"`
		AmountUsd6   int64  `json:"amount_usd6"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	ord, assessment, err := h.app.Protocol.CreateAndPayOrder(r.Context(), payload.DeviceAddr, payload.OrderID, payload.TenantAddr, payload.CustomerAddr, payload.AmountUsd6)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if assessment.IsAnomaly {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]interface{}{
		"order":      viewOrder(ord),
		"assessment": viewAssessment(assessment),
	})
}
