// Package techuhttp exposes a techu.Proxy over HTTP.
//
// Routes:
//
//	POST /indexes/{index_id}/documents/{action}   action is insert, update or delete
//	POST /indexes/{index_id}/search
//	POST /indexes/{index_id}/excerpts
//	GET  /health
//
// Mutation bodies are {"data": document or [documents], "queue": bool}. For
// delete, data may also be an id or a list of ids. Search and excerpt bodies
// are the JSON forms of models.SearchRequest and models.ExcerptRequest,
// optionally wrapped in {"data": ...}.
package techuhttp

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/techu/techu/pkg/logger"
	"github.com/techu/techu/pkg/models"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 8 << 20

// Proxy is the part of techu.Proxy the handlers use.
type Proxy interface {
	Insert(ctx context.Context, req models.InsertRequest) (models.WriteResult, error)
	Update(ctx context.Context, req models.UpdateRequest) ([]models.WriteResult, error)
	Delete(ctx context.Context, req models.DeleteRequest) ([]models.WriteResult, error)
	Search(ctx context.Context, indexID int64, req models.SearchRequest) (*models.SearchResponse, error)
	Excerpts(ctx context.Context, indexID int64, req models.ExcerptRequest) (*models.ExcerptResponse, error)
}

// Server holds the HTTP handlers.
type Server struct {
	proxy  Proxy
	logger logger.Logger
}

func NewServer(proxy Proxy, l logger.Logger) *Server {
	if l == nil {
		l = logger.Nop{}
	}
	return &Server{proxy: proxy, logger: l}
}

// Router returns the routes of s. Callers may add their own, such as
// /metrics, before serving it.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	indexes := router.PathPrefix("/indexes/{index_id:[0-9]+}").Subrouter()
	indexes.HandleFunc("/documents/{action:insert|update|delete}", s.handleDocuments).Methods(http.MethodPost)
	indexes.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	indexes.HandleFunc("/excerpts", s.handleExcerpts).Methods(http.MethodPost)

	return router
}
