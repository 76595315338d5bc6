package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/k11v/pblbuild/internal/build"
	_ "github.com/k11v/pblbuild/internal/server/docs"
)

type BuildCreator interface {
	Create(ctx context.Context, req *build.Request) (*build.Build, error)
}

type BuildGetter interface {
	Status(ctx context.Context, params *build.GetterStatusParams) (*build.Status, error)
}

type HandlerParams struct {
	Creator BuildCreator // required
	Getter  BuildGetter  // required

	HomepageURL string       // required
	Metrics     http.Handler // served at /metrics when set
	Development bool         // serves /swagger/ when true
	Logger      *slog.Logger // default: slog.Default()
}

type handler struct {
	mux *http.ServeMux

	creator     BuildCreator
	getter      BuildGetter
	homepageURL string
	log         *slog.Logger
}

func NewHandler(params *HandlerParams) http.Handler {
	mux := http.NewServeMux()
	h := &handler{
		mux:         mux,
		creator:     params.Creator,
		getter:      params.Getter,
		homepageURL: params.HomepageURL,
		log:         params.Logger,
	}
	if h.log == nil {
		h.log = slog.Default()
	}

	if params.Development {
		mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	}
	if params.Metrics != nil {
		mux.Handle("GET /metrics", params.Metrics)
	}

	mux.HandleFunc("GET /health", h.GetHealth)
	mux.HandleFunc("GET /{$}", h.GetHome)

	mux.HandleFunc("POST /build", h.CreateBuild)
	mux.HandleFunc("POST /build/{$}", h.CreateBuild)
	mux.HandleFunc("GET /status", h.GetStatus)
	mux.HandleFunc("GET /status/{$}", h.GetStatus)

	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// GetHealth godoc
//
//	@Summary	Report service health
//	@Produce	json
//	@Success	200	{object}	healthResponse
//	@Router		/health [get]
func (h *handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

func (h *handler) GetHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.homepageURL, http.StatusFound)
}

// maxRequestBodySize caps a build submission body.
const maxRequestBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type createBuildResponse struct {
	ID uuid.UUID `json:"id"`
}

// CreateBuild godoc
//
//	@Summary	Submit a build
//	@Accept		json
//	@Produce	json
//	@Param		request	body		build.Request	true	"Build submission"
//	@Success	200		{object}	createBuildResponse
//	@Failure	400		{object}	errorResponse
//	@Failure	413		{object}	errorResponse
//	@Failure	500		{object}	errorResponse
//	@Router		/build [post]
func (h *handler) CreateBuild(w http.ResponseWriter, r *http.Request) {
	var req build.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := dec.Decode(&req); err != nil {
		if maxBytesErr := (*http.MaxBytesError)(nil); errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Request body is too large."})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: decodeErrorReason(err)})
		return
	}
	if dec.More() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body."})
		return
	}

	b, err := h.creator.Create(r.Context(), &req)
	if validationErr := (*build.ValidationError)(nil); errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationErr.Reason})
		return
	} else if err != nil {
		if !errors.Is(err, build.ErrUnknown) {
			h.log.Error("didn't create build", "err", err)
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: build.ErrUnknown.Error()})
		return
	}

	writeJSON(w, http.StatusOK, createBuildResponse{ID: b.ID})
}

// decodeErrorReason maps a body decoding error to a client-facing reason.
func decodeErrorReason(err error) string {
	if typeErr := (*json.UnmarshalTypeError)(nil); errors.As(err, &typeErr) {
		if typeErr.Field == "files" || strings.HasPrefix(typeErr.Field, "files.") {
			return "Bad list of files."
		}
	}
	return "Invalid request body."
}

// GetStatus godoc
//
//	@Summary	Get the step and state of a build
//	@Produce	json
//	@Param		id	query		string	true	"Build ID"
//	@Success	200	{object}	build.Status
//	@Failure	400	{object}	errorResponse
//	@Failure	404	{object}	errorResponse
//	@Failure	500	{object}	errorResponse
//	@Router		/status [get]
func (h *handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	// Query parameter id
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `Invalid "id".`})
		return
	}

	status, err := h.getter.Status(r.Context(), &build.GetterStatusParams{ID: id})
	if errors.Is(err, build.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Unknown build."})
		return
	} else if err != nil {
		h.log.Error("didn't get build status", "build_id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: build.ErrUnknown.Error()})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
