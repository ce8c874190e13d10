// Package httpapi exposes the trust core REST surface. Routing is plain
// ServeMux with prefix dispatch; every error leaves as the standard
// {code, message, details} envelope.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	app "github.com/nilelink/trustcore/internal/app"
	"github.com/nilelink/trustcore/internal/app/auth"
	"github.com/nilelink/trustcore/internal/errors"
	"github.com/nilelink/trustcore/internal/middleware"
	"github.com/nilelink/trustcore/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
	log   *logger.Logger
}

// NewHandler returns a mux exposing the core REST API. auditPath optionally
// persists the privileged-operation audit trail as JSONL.
func NewHandler(application *app.Application, auditPath string, log *logger.Logger) (http.Handler, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	sink, err := newFileAuditSink(auditPath)
	if err != nil {
		return nil, err
	}

	h := &handler{app: application, audit: newAuditLog(0, sink), log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/v1/tenants", h.tenants)
	mux.HandleFunc("/v1/tenants/", h.tenantResources)
	mux.HandleFunc("/v1/oracles", h.oracles)
	mux.HandleFunc("/v1/oracles/", h.oracleByCurrency)
	mux.HandleFunc("/v1/devices", h.devices)
	mux.HandleFunc("/v1/devices/", h.deviceByAddr)
	mux.HandleFunc("/v1/commission/rules", h.commissionRules)
	mux.HandleFunc("/v1/commission/rules/", h.commissionRuleBySupplier)
	mux.HandleFunc("/v1/commission/quote", h.commissionQuote)
	mux.HandleFunc("/v1/orders", h.orders)
	mux.HandleFunc("/v1/orders/", h.orderResources)
	mux.HandleFunc("/v1/checkout", h.checkout)
	mux.HandleFunc("/v1/fraud/anomalies", h.anomalies)
	mux.HandleFunc("/v1/fraud/block", h.blockTransaction)
	mux.HandleFunc("/v1/fraud/status/", h.fraudStatus)
	mux.HandleFunc("/v1/vault/deposits", h.vaultDeposit)
	mux.HandleFunc("/v1/vault/withdrawals", h.vaultWithdraw)
	mux.HandleFunc("/v1/vault/positions", h.vaultPositions)
	mux.HandleFunc("/v1/credit/suppliers/", h.supplierResources)
	mux.HandleFunc("/v1/credit/lines", h.creditLines)
	mux.HandleFunc("/v1/credit/invoices", h.invoices)
	mux.HandleFunc("/v1/credit/invoices/", h.invoiceResources)
	mux.HandleFunc("/v1/protocol/fee", h.protocolFee)
	mux.HandleFunc("/v1/protocol/pause", h.protocolPause)
	mux.HandleFunc("/v1/protocol/unpause", h.protocolUnpause)
	mux.HandleFunc("/v1/protocol/governance", h.protocolGovernance)
	mux.HandleFunc("/v1/stats", h.stats)
	mux.HandleFunc("/v1/audit", h.auditTrail)
	mux.HandleFunc("/events", h.eventStream)

	return mux, nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, err := h.app.Protocol.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	caller := actor(r)
	if caller.Role != auth.RoleGovernance && caller.Role != auth.RoleAdmin {
		writeError(w, errors.Unauthorized("audit trail is restricted"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// actor resolves the caller placed on the context by the auth middleware.
func actor(r *http.Request) auth.Actor {
	return middleware.ActorFrom(r.Context())
}

// pathTail splits the path remainder after prefix into segments.
func pathTail(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Validation("malformed request body").WithDetails("cause", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a service error to its HTTP status and the standard error
// envelope. Non-service errors are masked as internal.
func writeError(w http.ResponseWriter, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("internal error", err)
	}
	writeJSON(w, svcErr.HTTPStatus(), svcErr)
}
