package httpapi

import (
	"net/http"

	"nemprice.org/internal/audit"
	"nemprice.org/internal/dataset"
	"nemprice.org/internal/obs"
)

type recordsResponse struct {
	Region      string           `json:"region"`
	RecordCount int              `json:"record_count"`
	Records     []dataset.Record `json:"records"`
}

type regionsResponse struct {
	Regions []string `json:"regions"`
	Count   int      `json:"count"`
}

// regionParam reads the region query parameter. An empty value is treated
// the same as a missing one and is rejected before the dataset is touched.
func regionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	region := r.URL.Query().Get("region")
	if region == "" {
		writeError(w, r, http.StatusBadRequest, CodeRegionQueryMissing, "region query parameter is required")
		return "", false
	}
	return region, true
}

func (a *API) ensureLoaded(w http.ResponseWriter, r *http.Request) bool {
	if err := a.prices.EnsureLoaded(); err != nil {
		handleDatasetError(w, r, err)
		return false
	}
	return true
}

func (a *API) handleMeanPrice(w http.ResponseWriter, r *http.Request) {
	region, ok := regionParam(w, r)
	if !ok || !a.ensureLoaded(w, r) {
		return
	}
	sum, ok := a.prices.RegionSummary(region)
	if !ok {
		writeError(w, r, http.StatusNotFound, CodeRegionNotFound, "no price records for region")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (a *API) handleRecords(w http.ResponseWriter, r *http.Request) {
	region, ok := regionParam(w, r)
	if !ok || !a.ensureLoaded(w, r) {
		return
	}
	recs := a.prices.RecordsForRegion(region)
	if len(recs) == 0 {
		writeError(w, r, http.StatusNotFound, CodeRegionNotFound, "no price records for region")
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{
		Region:      region,
		RecordCount: len(recs),
		Records:     recs,
	})
}

func (a *API) handleRegions(w http.ResponseWriter, r *http.Request) {
	if !a.ensureLoaded(w, r) {
		return
	}
	regions := a.prices.DistinctRegions()
	writeJSON(w, http.StatusOK, regionsResponse{Regions: regions, Count: len(regions)})
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	st, err := a.prices.Reload()
	if err != nil {
		_ = audit.LogEvent(r.Context(), audit.EventDatasetReload, map[string]any{
			"result": "failure",
			"error":  err.Error(),
		})
		handleDatasetError(w, r, err)
		return
	}
	obs.SetReady(true)
	_ = audit.LogEvent(r.Context(), audit.EventDatasetReload, map[string]any{
		"result":      "success",
		"snapshot_id": st.SnapshotID,
		"records":     st.Records,
		"regions":     st.Regions,
	})
	writeJSON(w, http.StatusOK, st)
}
