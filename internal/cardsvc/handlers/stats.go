package handlers

import (
	"net/http"

	"github.com/avvvet/idcard-services/internal/cardsvc/models"
	"github.com/avvvet/idcard-services/internal/cardsvc/service"
	"github.com/go-chi/chi"
)

const defaultRange = 7

func (h *Handler) StatsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.stats.Summary(r.Context())
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.ok(w, http.StatusOK, "summary", summary)
}

func (h *Handler) StatsDistribution(w http.ResponseWriter, r *http.Request) {
	groups, err := h.stats.Distribution(r.Context(), chi.URLParam(r, "field"))
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.ok(w, http.StatusOK, "distribution", groups)
}

// StatsSeries returns the sparse activity series, or the zero-filled one when
// dense=true.
func (h *Handler) StatsSeries(w http.ResponseWriter, r *http.Request) {
	rng, unit, err := seriesParams(r, "unit")
	if err != nil {
		h.WriteError(w, err)
		return
	}

	buckets, err := h.stats.ActivitySeries(r.Context(), rng, unit)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	if r.URL.Query().Get("dense") == "true" {
		since, until := h.stats.Window(rng, unit)
		buckets = service.FillSeries(buckets, since, until, unit)
	}
	h.ok(w, http.StatusOK, "series", buckets)
}

func (h *Handler) StatsToday(w http.ResponseWriter, r *http.Request) {
	today, err := h.stats.TodayActivity(r.Context())
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.ok(w, http.StatusOK, "today", today)
}

func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	rng, unit, err := seriesParams(r, "type")
	if err != nil {
		h.WriteError(w, err)
		return
	}

	dashboard, err := h.stats.Dashboard(r.Context(), rng, unit)
	if err != nil {
		h.WriteError(w, err)
		return
	}
	h.ok(w, http.StatusOK, "dashboard", dashboard)
}

// seriesParams reads range (default 7) and the unit from unitParam.
func seriesParams(r *http.Request, unitParam string) (int, models.BucketUnit, error) {
	q := r.URL.Query()

	rng := defaultRange
	if raw := q.Get("range"); raw != "" {
		var err error
		if rng, err = service.ParseRange(raw); err != nil {
			return 0, "", err
		}
	}

	unit, err := service.ParseUnit(q.Get(unitParam))
	if err != nil {
		return 0, "", err
	}
	return rng, unit, nil
}
