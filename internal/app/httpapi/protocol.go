package httpapi

import (
	"net/http"
)

func (h *handler) protocolFee(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		FeeBps int64 `json:"fee_bps"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Protocol.UpdateProtocolFee(r.Context(), actor(r), payload.FeeBps); err != nil {
		writeError(w, err)
		return
	}
	h.recordAudit(r, "protocol.update_fee", "", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]int64{"fee_bps": payload.FeeBps})
}

func (h *handler) protocolPause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.app.Protocol.EmergencyPause(r.Context(), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	h.recordAudit(r, "protocol.pause", "", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (h *handler) protocolUnpause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.app.Protocol.Unpause(r.Context(), actor(r)); err != nil {
		writeError(w, err)
		return
	}
	h.recordAudit(r, "protocol.unpause", "", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (h *handler) protocolGovernance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		GovernanceAddr string `json:"governance_addr"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Protocol.SetGovernance(r.Context(), actor(r), payload.GovernanceAddr); err != nil {
		writeError(w, err)
		return
	}
	h.recordAudit(r, "protocol.set_governance", payload.GovernanceAddr, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]string{"governance_addr": payload.GovernanceAddr})
}
