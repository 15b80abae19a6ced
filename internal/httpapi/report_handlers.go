package httpapi

import "net/http"

func (a *API) reportEndpoint(w http.ResponseWriter, r *http.Request, fn func() (any, error)) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireManage(w, r) {
		return
	}
	if a.reports == nil {
		writeError(w, r, http.StatusNotFound, "reports are not available")
		return
	}
	out, err := fn()
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	a.reportEndpoint(w, r, func() (any, error) {
		return a.reports.Summary(r.Context())
	})
}

func (a *API) handleReportStatistics(w http.ResponseWriter, r *http.Request) {
	a.reportEndpoint(w, r, func() (any, error) {
		return a.reports.Statistics(r.Context())
	})
}

func (a *API) handleReportCompliance(w http.ResponseWriter, r *http.Request) {
	a.reportEndpoint(w, r, func() (any, error) {
		return a.reports.Compliance(r.Context())
	})
}

func (a *API) handleReportTrends(w http.ResponseWriter, r *http.Request) {
	a.reportEndpoint(w, r, func() (any, error) {
		return a.reports.Trends(r.Context())
	})
}
