package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/icdlens/icdlens/internal/core/catalog"
	"github.com/icdlens/icdlens/internal/core/fetch"
	apperrors "github.com/icdlens/icdlens/internal/errors"
	"github.com/icdlens/icdlens/internal/metrics"
)

// Proxy route failure details.
const (
	DetailMissingQuery   = "Missing required query parameter: q, code or description_normalized"
	DetailUnconfigured   = "catalog.base_url is not configured on the server."
	DetailUpstreamFailed = "No se pudo consultar ICD-10 en el backend."
)

// lookupParams are the catalog lookup parameters the proxy relays, in the
// order they are checked.
var lookupParams = []string{"q", "code", "description_normalized"}

// SearchProxy re-issues a catalog lookup (free text, code or normalized
// description) on behalf of clients that cannot reach the catalog
// directly. The upstream payload is returned untouched; failures are
// answered with {"detail": ...}.
type SearchProxy struct {
	Catalog    *catalog.Builder
	Fetcher    fetch.Fetcher
	SearchPath string
	Upstream   fetch.Options
	Logger     *logging.Logger
}

func (p *SearchProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params := catalog.Params{}
	for _, name := range lookupParams {
		if v := strings.TrimSpace(r.URL.Query().Get(name)); v != "" {
			params[name] = v
		}
	}
	if len(params) == 0 {
		metrics.RecordProxyRequest("invalid", http.StatusBadRequest)
		apperrors.RespondWithDetail(w, r, http.StatusBadRequest, DetailMissingQuery,
			apperrors.NewInvalidInputError(DetailMissingQuery))
		return
	}

	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		params["limit"] = limit
	}

	upstreamURL, ok := p.Catalog.Build(p.searchPath(), params)
	if !ok {
		metrics.RecordProxyRequest("unconfigured", http.StatusInternalServerError)
		apperrors.RespondWithDetail(w, r, http.StatusInternalServerError, DetailUnconfigured,
			apperrors.NewConfigInvalidError(DetailUnconfigured))
		return
	}

	p.info("Catalog proxy request", zap.String("upstream", upstreamURL))

	payload, err := p.Fetcher.FetchJSON(r.Context(), upstreamURL, p.Upstream)
	if err != nil {
		p.fail(w, r, err)
		return
	}

	metrics.RecordProxyRequest("ok", http.StatusOK)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}

func (p *SearchProxy) fail(w http.ResponseWriter, r *http.Request, err error) {
	if fetch.IsCanceled(err) {
		// client went away; nothing to answer
		metrics.RecordProxyRequest("canceled", 0)
		return
	}

	var apiErr *fetch.APIError
	if !stderrors.As(err, &apiErr) {
		metrics.RecordProxyRequest("unexpected", http.StatusBadGateway)
		apperrors.RespondWithDetail(w, r, http.StatusBadGateway, DetailUpstreamFailed,
			apperrors.WrapExternalService(r.Context(), err, DetailUpstreamFailed))
		return
	}

	status := apperrors.UpstreamStatus(err)
	detail := apiErr.Detail
	if detail == "" {
		detail = apiErr.Error()
	}

	metrics.RecordProxyRequest("upstream_error", status)
	apperrors.RespondWithDetail(w, r, status, detail, apperrors.WrapUpstream(r.Context(), err))
}

func (p *SearchProxy) searchPath() string {
	if p.SearchPath == "" {
		return catalog.DefaultSearchPath
	}
	return p.SearchPath
}

func (p *SearchProxy) info(msg string, fields ...zap.Field) {
	if p.Logger != nil {
		p.Logger.Info(msg, fields...)
	}
}
