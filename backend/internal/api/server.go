// Package api implements the operator HTTP surface: reviewing a tenant's
// draft orders, resolving the customer/SKU ambiguities the pipeline leaves
// open, and driving approve/push. There is no session or OAuth layer here —
// actor identity comes from a single trusted header (see middleware.go) —
// since the core's tenant and audit model only needs a stable actor id, not
// a login flow.
package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/orderflow/orderflow/internal/config"
	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/draftengine"
	"github.com/orderflow/orderflow/internal/feedback"
	"github.com/orderflow/orderflow/internal/intake"
	"github.com/orderflow/orderflow/internal/push"
	"github.com/orderflow/orderflow/internal/queue"
)

// Server is the operator-facing HTTP API.
type Server struct {
	config   *config.Config
	db       *db.Queries
	router   *mux.Router
	nats     *queue.Manager
	rawDB    *sql.DB
	intake   *intake.Pipeline
	pusher   *push.Pusher
	engine   *draftengine.Engine
	feedback *feedback.Recorder
}

// NewServer wires the operator surface to the already-constructed core
// components; it does not own any of them.
func NewServer(cfg *config.Config, queries *db.Queries, natsManager *queue.Manager, database *sql.DB,
	intakePipeline *intake.Pipeline, pusher *push.Pusher, engine *draftengine.Engine, feedbackRecorder *feedback.Recorder) *Server {
	s := &Server{
		config:   cfg,
		db:       queries,
		router:   mux.NewRouter(),
		nats:     natsManager,
		rawDB:    database,
		intake:   intakePipeline,
		pusher:   pusher,
		engine:   engine,
		feedback: feedbackRecorder,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured HTTP handler with CORS applied.
func (s *Server) Router() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.config.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.config.ActorHeaderName},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: s.config.CORSAllowCredentials,
		MaxAge:           300,
	})
	return c.Handler(s.router)
}

// setupRoutes configures all API routes. Every route below the tenant
// prefix resolves the tenant slug to an id and pins it on the request
// context before the handler runs (see tenantMiddleware).
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	tenantRouter := api.PathPrefix("/tenants/{tenantSlug}").Subrouter()
	tenantRouter.Use(s.actorMiddleware)
	tenantRouter.Use(s.tenantMiddleware)

	tenantRouter.HandleFunc("/upload", s.handleUpload).Methods("POST")

	tenantRouter.HandleFunc("/draft-orders", s.handleListDraftOrders).Methods("GET")
	tenantRouter.HandleFunc("/draft-orders/{id}", s.handleGetDraftOrder).Methods("GET")
	tenantRouter.HandleFunc("/draft-orders/{id}/retry-extraction", s.handleRetryExtraction).Methods("POST")
	tenantRouter.HandleFunc("/draft-orders/{id}/select-customer", s.handleSelectCustomer).Methods("POST")
	tenantRouter.HandleFunc("/draft-orders/{id}/approve", s.handleApprove).Methods("POST")
	tenantRouter.HandleFunc("/draft-orders/{id}/push", s.handlePush).Methods("POST")
	tenantRouter.HandleFunc("/draft-orders/{id}/issues/{issueId}/acknowledge", s.handleAcknowledgeIssue).Methods("POST")
	tenantRouter.HandleFunc("/draft-orders/{id}/issues/{issueId}/override", s.handleOverrideIssue).Methods("POST")
	tenantRouter.HandleFunc("/draft-orders/{id}/lines/{lineId}/confirm-mapping", s.handleConfirmMapping).Methods("POST")
	tenantRouter.HandleFunc("/draft-orders/{id}/lines/{lineId}/reject-mapping", s.handleRejectMapping).Methods("POST")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
