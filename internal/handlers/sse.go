package handlers

import (
	"encoding/json"
	stderrors "errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"sales-insights/internal/models"
	"sales-insights/internal/services"
)

const (
	maxParetoPoints = 50
	maxProducts     = 20
	maxStates       = 30
)

var segmentTableTemplate = template.Must(template.New("segmentTable").Parse(`
<div id="rfm-content">
<table class="modern-table">
<thead><tr><th>Segment</th><th>Customers</th><th>Revenue</th></tr></thead>
<tbody>
{{range .}}<tr>
<td><span class="segment-badge">{{.Segment}}</span></td>
<td>{{.Count}}</td>
<td><strong>{{printf "%.2f" .Monetary}}</strong></td>
</tr>{{end}}
</tbody>
</table>
</div>`))

var paretoInsightTemplate = template.Must(template.New("paretoInsight").Parse(`
<div id="pareto-content">
<p class="insight">Top {{.TopCount}} of {{.TotalKeys}} {{.GroupBy}}s produce <strong>{{printf "%.1f" .TopSharePercent}}%</strong> of revenue.</p>
</div>`))

var overviewTemplate = template.Must(template.New("overview").Parse(`
<div id="overview-content">
<div class="stat"><span>Revenue</span><strong>{{printf "%.2f" .TotalAmount}}</strong></div>
<div class="stat"><span>Tax</span><strong>{{printf "%.2f" .TotalTax}}</strong></div>
<div class="stat"><span>Customers</span><strong>{{.Customers}}</strong></div>
<div class="stat"><span>Invoices</span><strong>{{.Invoices}}</strong></div>
</div>`))

var noticeTemplate = template.Must(template.New("notice").Parse(
	`<div id="{{.ID}}"><p class="notice">{{.Message}}</p></div>`))

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

func render(t *template.Template, data any) (string, error) {
	var buf strings.Builder
	err := t.Execute(&buf, data)
	return buf.String(), err
}

func renderNotice(id, message string) string {
	html, _ := render(noticeTemplate, struct{ ID, Message string }{id, message})
	return html
}

func (h *SSEHandlers) renderSegments(summary []models.SegmentSummary) (string, error) {
	return render(segmentTableTemplate, summary)
}

func (h *SSEHandlers) HandleRFM(w http.ResponseWriter, r *http.Request) {
	tenant, err := queryTenant(r)
	if err != nil {
		h.rejectSSE(w, r, err)
		return
	}
	sse := datastar.NewSSE(w, r)
	h.patchRFM(sse, r, tenant)
	flush(w)
}

func (h *SSEHandlers) HandlePareto(w http.ResponseWriter, r *http.Request) {
	tenant, err := queryTenant(r)
	if err != nil {
		h.rejectSSE(w, r, err)
		return
	}
	by, err := services.ParseGroupBy(r.URL.Query().Get("by"))
	if err != nil {
		h.rejectSSE(w, r, err)
		return
	}
	sse := datastar.NewSSE(w, r)
	h.patchPareto(sse, r, tenant, by)
	flush(w)
}

func (h *SSEHandlers) HandleOverview(w http.ResponseWriter, r *http.Request) {
	tenant, err := queryTenant(r)
	if err != nil {
		h.rejectSSE(w, r, err)
		return
	}
	sse := datastar.NewSSE(w, r)
	h.patchOverview(sse, r, tenant)
	flush(w)
}

func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	tenant, err := queryTenant(r)
	if err != nil {
		h.rejectSSE(w, r, err)
		return
	}
	sse := datastar.NewSSE(w, r)
	h.patchOverview(sse, r, tenant)
	h.patchRFM(sse, r, tenant)
	h.patchPareto(sse, r, tenant, services.GroupByCustomer)
	flush(w)
}

func (h *SSEHandlers) patchOverview(sse *datastar.ServerSentEventGenerator, r *http.Request, tenant string) {
	o, err := h.analytics.Overview(r.Context(), tenant, maxProducts)
	if err != nil {
		h.logger.Error("load overview", "tenant_id", tenant, "error", err)
		sse.PatchElements(renderNotice("overview-content", "Overview is unavailable right now."))
		return
	}

	html, err := render(overviewTemplate, o)
	if err != nil {
		h.logger.Error("render overview", "error", err)
		return
	}
	sse.PatchElements(html)

	states := o.StateRevenue
	if len(states) > maxStates {
		states = states[:maxStates]
	}
	h.patchSignals(sse, map[string]any{
		"monthlyData":  o.MonthlySales,
		"productsData": o.TopProducts,
		"statesData":   states,
	})
}

func (h *SSEHandlers) patchRFM(sse *datastar.ServerSentEventGenerator, r *http.Request, tenant string) {
	report, err := h.analytics.RFM(r.Context(), tenant)
	if stderrors.Is(err, services.ErrInsufficientData) {
		sse.PatchElements(renderNotice("rfm-content", "Segmentation needs at least 4 customers."))
		return
	}
	if err != nil {
		h.logger.Error("compute rfm", "tenant_id", tenant, "error", err)
		sse.PatchElements(renderNotice("rfm-content", "Segmentation is unavailable right now."))
		return
	}

	html, err := h.renderSegments(report.Summary)
	if err != nil {
		h.logger.Error("render segment table", "error", err)
		return
	}
	sse.PatchElements(html)
	h.patchSignals(sse, map[string]any{"rfmSummary": report.Summary})
}

func (h *SSEHandlers) patchPareto(sse *datastar.ServerSentEventGenerator, r *http.Request, tenant string, by services.GroupBy) {
	pareto, err := h.analytics.Pareto(r.Context(), tenant, by, maxParetoPoints)
	if stderrors.Is(err, services.ErrZeroTotal) {
		sse.PatchElements(renderNotice("pareto-content", "No revenue recorded yet."))
		return
	}
	if err != nil {
		h.logger.Error("compute pareto", "tenant_id", tenant, "error", err)
		sse.PatchElements(renderNotice("pareto-content", "Pareto analysis is unavailable right now."))
		return
	}

	html, err := render(paretoInsightTemplate, pareto)
	if err != nil {
		h.logger.Error("render pareto insight", "error", err)
		return
	}
	sse.PatchElements(html)
	h.patchSignals(sse, map[string]any{"paretoData": pareto.Entries})
}

func (h *SSEHandlers) patchSignals(sse *datastar.ServerSentEventGenerator, signals map[string]any) {
	data, err := json.Marshal(signals)
	if err != nil {
		h.logger.Error("marshal signals", "error", err)
		return
	}
	sse.PatchSignals(data)
}

// rejectSSE answers with a plain JSON error before the stream starts.
func (h *SSEHandlers) rejectSSE(w http.ResponseWriter, r *http.Request, err error) {
	writeFailure(w, r, h.logger, err)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
