package httpapi

import (
	"net/http"
	"time"

	"nemprice.org/api/spec"
	"nemprice.org/internal/auth"
	"nemprice.org/internal/dataset"
	"nemprice.org/internal/obs"
)

const serviceName = "nemprice-api"

// Defaults applied when Deps leaves a limit at zero.
const (
	DefaultLoginRateBurst  = 10
	DefaultLoginRatePerSec = 1.0
	DefaultMaxBodyBytes    = 1 << 20
)

// Authenticator is the credential store and token issuer used by the API.
type Authenticator interface {
	VerifyCredentials(username, password string) bool
	IssueToken(username string) (auth.Token, error)
	VerifyToken(token string) (*auth.Payload, error)
}

// PriceStore answers price queries from the current dataset snapshot.
type PriceStore interface {
	EnsureLoaded() error
	Reload() (dataset.Stats, error)
	Stats() dataset.Stats
	RegionSummary(region string) (dataset.Summary, bool)
	RecordsForRegion(region string) []dataset.Record
	DistinctRegions() []string
}

// Deps are the services and limits the HTTP layer is built from.
type Deps struct {
	Auth    Authenticator
	Prices  PriceStore
	Version string

	LoginRateBurst  int
	LoginRatePerSec float64
	MaxBodyBytes    int64
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	auth    Authenticator
	prices  PriceStore
	version string
	maxBody int64
	limiter *rateLimiter
}

// New wires the routes. Auth and Prices are required.
func New(d Deps) *API {
	if d.LoginRateBurst <= 0 {
		d.LoginRateBurst = DefaultLoginRateBurst
	}
	if d.LoginRatePerSec <= 0 {
		d.LoginRatePerSec = DefaultLoginRatePerSec
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = DefaultMaxBodyBytes
	}
	a := &API{
		mux:     http.NewServeMux(),
		auth:    d.Auth,
		prices:  d.Prices,
		version: d.Version,
		maxBody: d.MaxBodyBytes,
		limiter: newRateLimiter(d.LoginRatePerSec, d.LoginRateBurst),
	}

	// health/ready/info
	a.route(http.MethodGet, "/healthz", http.HandlerFunc(a.Healthz))
	a.route(http.MethodGet, "/readyz", http.HandlerFunc(a.Ready))
	a.route(http.MethodGet, "/v1/info", http.HandlerFunc(a.Info))
	a.route(http.MethodGet, "/openapi.yaml", http.HandlerFunc(a.OpenAPISpec))
	a.route(http.MethodGet, "/metrics", obs.Handler())

	a.route(http.MethodPost, "/v1/auth/login", a.limiter.middleware(http.HandlerFunc(a.handleLogin)))

	a.route(http.MethodGet, "/v1/prices/mean", a.requireBearer(http.HandlerFunc(a.handleMeanPrice)))
	a.route(http.MethodGet, "/v1/prices/records", a.requireBearer(http.HandlerFunc(a.handleRecords)))
	a.route(http.MethodGet, "/v1/prices/regions", a.requireBearer(http.HandlerFunc(a.handleRegions)))
	a.route(http.MethodPost, "/v1/prices/reload", a.requireBearer(http.HandlerFunc(a.handleReload)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, CodeNotFound, "resource not found")
	})

	return a
}

// route registers h for method on path and answers every other method
// with 405.
func (a *API) route(method, path string, h http.Handler) {
	a.mux.Handle(method+" "+path, h)
	a.mux.Handle(path, methodNotAllowed(method))
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = MaxBodyBytes(a.mux, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Recover(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

// Ready reports whether a dataset snapshot is being served. It never
// triggers a load.
func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	st := a.prices.Stats()
	obs.SetReady(st.Loaded)
	if !st.Loaded {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  "dataset not loaded",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ready",
		"dataset": st,
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}
