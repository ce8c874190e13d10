package httpapi

import (
	"net/http"
)

type vaultFlowPayload struct {
	Investor   string `json:"investor"`
	TenantAddr string `json:"tenant_addr"`
	AmountUsd6 int64  `json:"amount_usd6"`
}

func (h *handler) vaultDeposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload vaultFlowPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	pos, err := h.app.Vault.Deposit(r.Context(), payload.Investor, payload.TenantAddr, payload.AmountUsd6)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewPosition(pos))
}

func (h *handler) vaultWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload vaultFlowPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	pos, err := h.app.Vault.Withdraw(r.Context(), payload.Investor, payload.TenantAddr, payload.AmountUsd6)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPosition(pos))
}

func (h *handler) vaultPositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	investor := r.URL.Query().Get("investor")
	tenantAddr := r.URL.Query().Get("tenant")
	if investor == "" || tenantAddr == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION",
			"message": "investor and tenant are required",
		})
		return
	}
	pos, err := h.app.Vault.GetPosition(r.Context(), investor, tenantAddr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPosition(pos))
}
