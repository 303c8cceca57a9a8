package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/benvon/logstream/internal/converter"
	"github.com/benvon/logstream/internal/middleware"
	"github.com/benvon/logstream/internal/sse"
	"github.com/benvon/logstream/internal/telemetry"
	"github.com/benvon/logstream/internal/webconfig"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RouterDeps is everything NewRouter wires together.
type RouterDeps struct {
	WebConfig       *webconfig.WebConfig
	Broker          *sse.Broker
	StringConverter *converter.StringConverter
	Converters      *converter.Converters
	Health          *HealthChecker
	Version         VersionInfo

	// RedisClient backs the rate limiter when set, otherwise limits are per process.
	RedisClient     *redis.Client
	RateLimit       string
	MaxRequestBytes int64
	Heartbeat       time.Duration
	EnableHSTS      bool

	// TracerProvider enables otelmux route spans when set.
	TracerProvider trace.TracerProvider
	Logger         *zap.Logger
}

// PublishMediaTypes are the request body types the /api routes accept.
var PublishMediaTypes = []converter.MediaType{
	converter.TextPlain,
	converter.ApplicationJSON,
}

// NewRouter assembles the HTTP handler. CORS runs outside the router so preflights
// for any /api path are answered before route matching.
func NewRouter(deps RouterDeps) (http.Handler, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.WebConfig == nil {
		deps.WebConfig = webconfig.Default()
	}
	if deps.StringConverter == nil {
		deps.StringConverter = webconfig.NewStringConverter()
	}
	if deps.Converters == nil {
		deps.Converters = webconfig.MessageConverters()
	}
	if deps.Health == nil {
		deps.Health = NewHealthChecker(nil)
	}
	if deps.Broker == nil {
		return nil, errors.New("router: broker is required")
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSONError(w, http.StatusNotFound, "Not Found", "No route matches the request path")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "Method not allowed for this route")
	})
	if deps.TracerProvider != nil {
		r.Use(otelmux.Middleware(telemetry.ServiceName, otelmux.WithTracerProvider(deps.TracerProvider)))
	}

	r.HandleFunc("/healthz", deps.Health.HealthCheck).Methods("GET")
	r.HandleFunc("/version", VersionHandler(deps.Version)).Methods("GET")

	rateLimit, err := middleware.RateLimit(deps.RateLimit, deps.RedisClient, log)
	if err != nil {
		return nil, err
	}
	api := r.PathPrefix("/api").Subrouter()
	api.Use(rateLimit)
	api.Use(middleware.MaxRequestSize(deps.MaxRequestBytes, log))
	api.Use(middleware.ContentType(PublishMediaTypes, log))

	streams := NewStreamHandler(deps.Broker, deps.StringConverter, deps.Converters, deps.Heartbeat, log)
	streams.RegisterRoutes(api)

	cors, err := middleware.CORS(deps.WebConfig.CORS, log)
	if err != nil {
		return nil, err
	}

	var h http.Handler = r
	h = cors(h)
	h = middleware.Audit(log)(h)
	h = middleware.Logging(log)(h)
	h = middleware.SecurityHeaders(deps.EnableHSTS)(h)
	h = middleware.ErrorHandler(log)(h)
	return h, nil
}
