package api

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	uuid "github.com/satori/go.uuid"

	"github.com/InjectiveLabs/price-aggregator/internal/service/health"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle"
	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

const (
	APIKeyHeader    = "X-Api-Key"
	RequestIDHeader = "X-Request-Id"

	maxBodySize = 1 << 20
)

type Config struct {
	ListenAddress  string
	RequestTimeout time.Duration
}

type Server struct {
	httpSrv *http.Server

	apiSvc    oracle.APIService
	healthSvc *health.Service

	logger  log.Logger
	svcTags metrics.Tags
}

func NewServer(cfg Config, apiSvc oracle.APIService, healthSvc *health.Service) *Server {
	s := &Server{
		apiSvc:    apiSvc,
		healthSvc: healthSvc,
		logger:    log.WithField("svc", "api"),
		svcTags: metrics.Tags{
			"svc": "api",
		},
	}

	handlerWithCors := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedHeaders:     []string{"*"},
		AllowCredentials:   false,
		OptionsPassthrough: false,
	})

	var handler http.Handler = handlerWithCors.Handler(s.Router())
	if cfg.RequestTimeout > 0 {
		handler = http.TimeoutHandler(handler, cfg.RequestTimeout, `{"error":"request timed out"}`)
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Router mounts every endpoint without middleware.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	v1 := router.PathPrefix("/api/price-oracle/v1").Subrouter()
	v1.HandleFunc("/price/{asset}", s.getPrice).Methods(http.MethodGet)
	v1.HandleFunc("/assets", s.configureAsset).Methods(http.MethodPost)
	v1.HandleFunc("/probe", s.probe).Methods(http.MethodPost)

	router.HandleFunc("/api/health/v1/status", s.getStatus).Methods(http.MethodGet)
	router.Use(s.requestID)

	return router
}

func (s *Server) ListenAndServe() error {
	s.logger.Infof("price aggregator api starts listening on %s", s.httpSrv.Addr)

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to start HTTP server")
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

type requestIDKey struct{}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewV4().String()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]

	res, err := s.apiSvc.Price(r.Context(), asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) configureAsset(w http.ResponseWriter, r *http.Request) {
	content, err := readContent(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.apiSvc.Configure(r.Context(), r.Header.Get(APIKeyHeader), content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) probe(w http.ResponseWriter, r *http.Request) {
	content, err := readContent(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.apiSvc.Probe(r.Context(), r.Header.Get(APIKeyHeader), content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.healthSvc.GetStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Status != health.StatusOK {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, res)
}

var errBadRequest = errors.New("bad request")

// readContent returns the TOML document either from the "content" multipart field or the raw body.
func readContent(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)

	mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		content, err := io.ReadAll(body)
		if err != nil {
			return nil, errors.Wrapf(errBadRequest, "failed to read body: %v", err)
		}

		return content, nil
	}

	mr := multipart.NewReader(body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrapf(errBadRequest, "malformed multipart body: %v", err)
		}

		if part.FormName() == "content" {
			content, err := io.ReadAll(part)
			if err != nil {
				return nil, errors.Wrapf(errBadRequest, "failed to read content: %v", err)
			}

			return content, nil
		}
	}

	return nil, errors.Wrap(errBadRequest, "content field is missing")
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}

	status := statusCode(err)
	id, _ := r.Context().Value(requestIDKey{}).(string)

	logFields := log.Fields{
		"request_id": id,
		"path":       r.URL.Path,
		"status":     status,
	}
	if errWithStack, ok := err.(stackTracer); ok {
		logFields["stack_frames"] = len(errWithStack.StackTrace())
	}

	if status >= http.StatusInternalServerError {
		metrics.ReportFuncError(s.svcTags)
		s.logger.WithFields(logFields).Warningln(err)
	} else {
		s.logger.WithFields(logFields).Debugln(err)
	}

	s.writeJSON(w, status, &errorResponse{
		Error:     err.Error(),
		RequestID: id,
	})
}

func statusCode(err error) int {
	var (
		stale         *types.StalePriceError
		insufficient  *types.InsufficientSourcesError
		noConsensus   *types.NoConsensusError
		sourceFailure *types.SourceFailure
	)

	switch {
	case errors.Is(err, oracle.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errBadRequest), errors.Is(err, types.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNoValidPrice):
		return http.StatusNotFound
	case errors.Is(err, types.ErrOracleInactive):
		return http.StatusConflict
	case errors.As(err, &stale):
		return http.StatusServiceUnavailable
	case errors.As(err, &insufficient), errors.As(err, &noConsensus), errors.As(err, &sourceFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warningln("failed to encode response")
	}
}
