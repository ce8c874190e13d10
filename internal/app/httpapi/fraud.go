package httpapi

import (
	"net/http"
)

func (h *handler) anomalies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			SubjectHash string `json:"subject_hash"`
			AnomalyType string `json:"anomaly_type"`
			Severity    int    `json:"severity"`
			DetailsHash string `json:"details_hash"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, err)
			return
		}
		id, err := h.app.Fraud.FlagAnomaly(r.Context(), payload.SubjectHash, payload.AnomalyType, payload.Severity, payload.DetailsHash)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})

	case http.MethodGet:
		subject := r.URL.Query().Get("subject")
		recs, err := h.app.Fraud.ListAnomalies(r.Context(), subject)
		if err != nil {
			writeError(w, err)
			return
		}
		views := make([]anomalyView, len(recs))
		for i, rec := range recs {
			views[i] = viewAnomaly(rec)
		}
		writeJSON(w, http.StatusOK, views)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) blockTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		TxRef  string `json:"tx_ref"`
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Fraud.BlockTransaction(r.Context(), actor(r), payload.TxRef, payload.Reason); err != nil {
		writeError(w, err)
		return
	}
	h.recordAudit(r, "fraud.block_transaction", payload.TxRef, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]interface{}{"tx_ref": payload.TxRef, "blocked": true})
}

func (h *handler) fraudStatus(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r.URL.Path, "/v1/fraud/status")
	if len(parts) != 1 || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	subject := parts[0]
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subject_hash": subject,
		"blocked":      h.app.Fraud.IsBlocked(r.Context(), subject),
	})
}
