package httpapi

import (
	"net/http"
	"time"
)

func (h *handler) supplierResources(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r.URL.Path, "/v1/credit/suppliers")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	supplierID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"supplier_id": supplierID,
			"verified":    h.app.Credit.IsSupplierVerified(r.Context(), supplierID),
		})
		return
	}

	if parts[1] != "verify" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var payload struct {
		Verified bool `json:"verified"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Credit.VerifySupplier(r.Context(), actor(r), supplierID, payload.Verified); err != nil {
		writeError(w, err)
		return
	}
	h.recordAudit(r, "credit.verify_supplier", supplierID, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"supplier_id": supplierID,
		"verified":    payload.Verified,
	})
}

func (h *handler) creditLines(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		var payload struct {
			TenantAddr string `json:"tenant_addr"`
			SupplierID string `json:"supplier_id"`
			LimitUsd6  int64  `json:"limit_usd6"`
			TermsHash  string `json:"terms_hash"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, err)
			return
		}
		line, err := h.app.Credit.SetCreditLine(r.Context(), actor(r), payload.TenantAddr, payload.SupplierID, payload.LimitUsd6, payload.TermsHash)
		if err != nil {
			writeError(w, err)
			return
		}
		h.recordAudit(r, "credit.set_credit_line", payload.TenantAddr+"|"+payload.SupplierID, http.StatusOK)
		writeJSON(w, http.StatusOK, viewLine(line))

	case http.MethodGet:
		tenantAddr := r.URL.Query().Get("tenant")
		supplierID := r.URL.Query().Get("supplier")
		if tenantAddr == "" || supplierID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"code":    "VALIDATION",
				"message": "tenant and supplier are required",
			})
			return
		}
		line, err := h.app.Credit.GetCreditLine(r.Context(), tenantAddr, supplierID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewLine(line))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) invoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		SupplierID string    `json:"supplier_id"`
		TenantAddr string    `json:"tenant_addr"`
		InvoiceID  string    `json:"invoice_id"`
		AmountUsd6 int64     `json:"amount_usd6"`
		DueAt      time.Time `json:"due_at"`
		TermsHash  string    `json:"terms_hash"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	inv, err := h.app.Credit.UseCredit(r.Context(), payload.SupplierID, payload.TenantAddr, payload.InvoiceID, payload.AmountUsd6, payload.DueAt, payload.TermsHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewInvoice(inv))
}

func (h *handler) invoiceResources(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r.URL.Path, "/v1/credit/invoices")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	invoiceID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		inv, err := h.app.Credit.GetInvoice(r.Context(), invoiceID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewInvoice(inv))
		return
	}

	if parts[1] != "repay" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var payload struct {
		TenantAddr string `json:"tenant_addr"`
		AmountUsd6 int64  `json:"amount_usd6"`
		TxRef      string `json:"tx_ref"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	inv, err := h.app.Credit.Repay(r.Context(), payload.TenantAddr, invoiceID, payload.AmountUsd6, payload.TxRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewInvoice(inv))
}
