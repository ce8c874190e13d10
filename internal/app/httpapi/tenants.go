package httpapi

import (
	"net/http"
	"strconv"

	"github.com/nilelink/trustcore/internal/app/domain/tenant"
)

type tenantConfigPayload struct {
	OwnerHash       string `json:"owner_hash"`
	LegalNameHash   string `json:"legal_name_hash"`
	DisplayNameHash string `json:"display_name_hash"`
	MetadataCID     string `json:"metadata_cid"`
	CatalogCID      string `json:"catalog_cid"`
	Country         string `json:"country"`
	Currency        string `json:"currency"`
	DailyRateLimit  int64  `json:"daily_rate_limit_usd6"`
	TimezoneOffset  int    `json:"timezone_offset_minutes"`
	TaxBps          int64  `json:"tax_bps"`
	OracleRef       string `json:"oracle_ref"`
}

func (p tenantConfigPayload) toConfig() tenant.Config {
	return tenant.Config{
		OwnerHash:       p.OwnerHash,
		LegalNameHash:   p.LegalNameHash,
		DisplayNameHash: p.DisplayNameHash,
		MetadataCID:     p.MetadataCID,
		CatalogCID:      p.CatalogCID,
		Country:         p.Country,
		Currency:        p.Currency,
		DailyRateLimit:  p.DailyRateLimit,
		TimezoneOffset:  p.TimezoneOffset,
		TaxBps:          p.TaxBps,
		OracleRef:       p.OracleRef,
	}
}

func (h *handler) tenants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Address string `json:"address"`
			tenantConfigPayload
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, err)
			return
		}
		rec, err := h.app.Registry.Register(r.Context(), actor(r), payload.Address, payload.toConfig())
		if err != nil {
			writeError(w, err)
			return
		}
		h.recordAudit(r, "registry.register", payload.Address, http.StatusCreated)
		writeJSON(w, http.StatusCreated, viewTenant(rec))

	case http.MethodGet:
		recs, err := h.app.Registry.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewTenants(recs))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) tenantResources(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r.URL.Path, "/v1/tenants")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	addr := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			rec, err := h.app.Registry.Get(r.Context(), addr)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, viewTenant(rec))
		case http.MethodPut:
			var payload tenantConfigPayload
			if err := decodeJSON(r.Body, &payload); err != nil {
				writeError(w, err)
				return
			}
			rec, err := h.app.Registry.UpdateConfig(r.Context(), actor(r), addr, payload.toConfig())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, viewTenant(rec))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "suspend":
		h.tenantSuspend(w, r, addr)
	case "rate-limit":
		h.tenantRateLimit(w, r, addr)
	case "orders":
		h.tenantOrders(w, r, addr)
	case "positions":
		h.tenantPositions(w, r, addr)
	case "pool":
		h.tenantPool(w, r, addr)
	case "invoices":
		h.tenantInvoices(w, r, addr)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) tenantSuspend(w http.ResponseWriter, r *http.Request, addr string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.app.Registry.Suspend(r.Context(), actor(r), addr, payload.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	h.recordAudit(r, "registry.suspend", addr, http.StatusOK)
	writeJSON(w, http.StatusOK, viewTenant(rec))
}

func (h *handler) tenantRateLimit(w http.ResponseWriter, r *http.Request, addr string) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		LimitUsd6 int64 `json:"limit_usd6"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.app.Registry.SetDailyRateLimit(r.Context(), actor(r), addr, payload.LimitUsd6)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewTenant(rec))
}

func (h *handler) tenantOrders(w http.ResponseWriter, r *http.Request, addr string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	orders, err := h.app.Settlement.ListOrders(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]orderView, len(orders))
	for i, ord := range orders {
		views[i] = viewOrder(ord)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) tenantPositions(w http.ResponseWriter, r *http.Request, addr string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	positions, err := h.app.Vault.ListPositions(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]positionView, len(positions))
	for i, pos := range positions {
		views[i] = viewPosition(pos)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) tenantPool(w http.ResponseWriter, r *http.Request, addr string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pool, err := h.app.Vault.GetPool(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolView{TenantAddr: addr, TotalUsd6: pool.TotalUsd6, UpdatedAt: pool.UpdatedAt})
}

func (h *handler) tenantInvoices(w http.ResponseWriter, r *http.Request, addr string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	invoices, err := h.app.Credit.ListInvoices(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]invoiceView, len(invoices))
	for i, inv := range invoices {
		views[i] = viewInvoice(inv)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) oracles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Currency  string `json:"currency"`
		OracleRef string `json:"oracle_ref"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Registry.SetOracle(r.Context(), actor(r), payload.Currency, payload.OracleRef); err != nil {
		writeError(w, err)
		return
	}
	h.recordAudit(r, "registry.set_oracle", payload.Currency, http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]string{"currency": payload.Currency, "oracle_ref": payload.OracleRef})
}

func (h *handler) oracleByCurrency(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r.URL.Path, "/v1/oracles")
	if len(parts) != 1 || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ref, err := h.app.Registry.GetOracle(r.Context(), parts[0])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"currency": parts[0], "oracle_ref": ref})
}

func (h *handler) devices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Address  string `json:"address"`
			DeviceID string `json:"device_id"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, err)
			return
		}
		rec, err := h.app.Devices.Authorize(r.Context(), actor(r), payload.Address, payload.DeviceID)
		if err != nil {
			writeError(w, err)
			return
		}
		h.recordAudit(r, "device.authorize", payload.Address, http.StatusCreated)
		writeJSON(w, http.StatusCreated, viewDevice(rec))

	case http.MethodGet:
		recs, err := h.app.Devices.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		views := make([]deviceView, len(recs))
		for i, rec := range recs {
			views[i] = viewDevice(rec)
		}
		writeJSON(w, http.StatusOK, views)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) deviceByAddr(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r.URL.Path, "/v1/devices")
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	addr := parts[0]

	switch r.Method {
	case http.MethodGet:
		rec, err := h.app.Devices.GetInfo(r.Context(), addr)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewDevice(rec))
	case http.MethodDelete:
		if err := h.app.Devices.Deactivate(r.Context(), actor(r), addr); err != nil {
			writeError(w, err)
			return
		}
		h.recordAudit(r, "device.deactivate", addr, http.StatusNoContent)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) commissionRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			SupplierID string `json:"supplier_id"`
			RateBps    int64  `json:"rate_bps"`
			Tier       string `json:"tier"`
			Active     bool   `json:"active"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, err)
			return
		}
		rule, err := h.app.Commissions.UpdateRule(r.Context(), actor(r), payload.SupplierID, payload.RateBps, payload.Tier, payload.Active)
		if err != nil {
			writeError(w, err)
			return
		}
		h.recordAudit(r, "commission.update_rule", payload.SupplierID, http.StatusOK)
		writeJSON(w, http.StatusOK, viewRule(rule))

	case http.MethodGet:
		rules, err := h.app.Commissions.ListRules(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		views := make([]ruleView, len(rules))
		for i, rule := range rules {
			views[i] = viewRule(rule)
		}
		writeJSON(w, http.StatusOK, views)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) commissionRuleBySupplier(w http.ResponseWriter, r *http.Request) {
	parts := pathTail(r.URL.Path, "/v1/commission/rules")
	if len(parts) != 1 || r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rule, err := h.app.Commissions.GetRule(r.Context(), parts[0])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRule(rule))
}

func (h *handler) commissionQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	supplierID := r.URL.Query().Get("supplier")
	gross, err := strconv.ParseInt(r.URL.Query().Get("gross_usd6"), 10, 64)
	if err != nil || gross <= 0 || supplierID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "VALIDATION",
			"message": "supplier and positive gross_usd6 are required",
		})
		return
	}
	fee, rate := h.app.Commissions.GetCommission(r.Context(), supplierID, gross)
	writeJSON(w, http.StatusOK, map[string]int64{
		"gross_usd6": gross,
		"fee_usd6":   fee,
		"rate_bps":   rate,
	})
}
