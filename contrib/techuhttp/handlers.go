package techuhttp

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/models"
)

var errBadIndexID = errors.New("index id must be a positive integer")

type writeResponse struct {
	Results []models.WriteResult `json:"results"`
}

// writeErrorResponse reports a batch that stopped part way. Results holds
// the statements that were made durable before the failure.
type writeErrorResponse struct {
	Error   string               `json:"error"`
	Results []models.WriteResult `json:"results,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	indexID, err := indexIDOf(r)
	if err != nil {
		s.respondErr(w, r, badRequest(err))
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		s.respondErr(w, r, badRequest(err))
		return
	}

	data, _, _, err := jsonparser.Get(body, "data")
	if err != nil {
		s.respondErr(w, r, badRequest(fmt.Errorf("data: %w", err)))
		return
	}
	queue, err := jsonparser.GetBoolean(body, "queue")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		s.respondErr(w, r, badRequest(fmt.Errorf("queue: %w", err)))
		return
	}

	var results []models.WriteResult
	switch mux.Vars(r)["action"] {
	case "insert":
		docs, perr := models.ParseDocuments(data)
		if perr != nil {
			s.respondErr(w, r, badRequest(perr))
			return
		}
		var res models.WriteResult
		res, err = s.proxy.Insert(r.Context(), models.InsertRequest{IndexID: indexID, Documents: docs, Queue: queue})
		if err == nil {
			results = []models.WriteResult{res}
		}
	case "update":
		docs, perr := models.ParseDocuments(data)
		if perr != nil {
			s.respondErr(w, r, badRequest(perr))
			return
		}
		results, err = s.proxy.Update(r.Context(), models.UpdateRequest{IndexID: indexID, Documents: docs, Queue: queue})
	case "delete":
		ids, perr := parseIDs(data)
		if perr != nil {
			s.respondErr(w, r, badRequest(perr))
			return
		}
		results, err = s.proxy.Delete(r.Context(), models.DeleteRequest{IndexID: indexID, IDs: ids, Queue: queue})
	}
	if err != nil {
		status := s.logErr(r, err)
		respondJSON(w, status, writeErrorResponse{Error: err.Error(), Results: results})
		return
	}
	respondJSON(w, http.StatusOK, writeResponse{Results: results})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	indexID, err := indexIDOf(r)
	if err != nil {
		s.respondErr(w, r, badRequest(err))
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		s.respondErr(w, r, badRequest(err))
		return
	}

	var req models.SearchRequest
	if err := json.Unmarshal(unwrapData(body), &req); err != nil {
		s.respondErr(w, r, badRequest(err))
		return
	}
	res, err := s.proxy.Search(r.Context(), indexID, req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleExcerpts(w http.ResponseWriter, r *http.Request) {
	indexID, err := indexIDOf(r)
	if err != nil {
		s.respondErr(w, r, badRequest(err))
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		s.respondErr(w, r, badRequest(err))
		return
	}

	var req models.ExcerptRequest
	if err := json.Unmarshal(unwrapData(body), &req); err != nil {
		s.respondErr(w, r, badRequest(err))
		return
	}
	res, err := s.proxy.Excerpts(r.Context(), indexID, req)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func indexIDOf(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["index_id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadIndexID
	}
	return id, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

// unwrapData returns the "data" object of body if there is one, and body
// otherwise.
func unwrapData(body []byte) []byte {
	data, dataType, _, err := jsonparser.Get(body, "data")
	if err == nil && dataType == jsonparser.Object {
		return data
	}
	return body
}

// parseIDs accepts an id, a list of ids or documents carrying an id field.
func parseIDs(data []byte) ([]uint64, error) {
	one := func(value []byte, dataType jsonparser.ValueType) (uint64, error) {
		switch dataType {
		case jsonparser.Number:
			n, err := jsonparser.ParseInt(value)
			if err != nil {
				return 0, err
			}
			return models.ParseDocID(n)
		case jsonparser.String:
			s, err := jsonparser.ParseString(value)
			if err != nil {
				return 0, err
			}
			return models.ParseDocID(s)
		case jsonparser.Object:
			docs, err := models.ParseDocuments(value)
			if err != nil {
				return 0, err
			}
			return docs[0].ID()
		default:
			return 0, fmt.Errorf("%w: %s", models.ErrInvalidDocID, value)
		}
	}

	value, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, err
	}
	if dataType != jsonparser.Array {
		id, err := one(value, dataType)
		if err != nil {
			return nil, err
		}
		return []uint64{id}, nil
	}

	var (
		ids     []uint64
		callErr error
	)
	_, err = jsonparser.ArrayEach(value, func(v []byte, t jsonparser.ValueType, _ int, err error) {
		if callErr != nil {
			return
		}
		if err != nil {
			callErr = err
			return
		}
		id, err := one(v, t)
		if err != nil {
			callErr = err
			return
		}
		ids = append(ids, id)
	})
	if err != nil {
		return nil, err
	}
	if callErr != nil {
		return nil, callErr
	}
	return ids, nil
}

func badRequest(err error) error {
	return &constants.QueryBuildError{Reason: err.Error()}
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, constants.ErrQueryBuild):
		return http.StatusBadRequest
	case errors.Is(err, constants.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, constants.ErrLockTimeout), errors.Is(err, constants.ErrMaxRetries):
		return http.StatusServiceUnavailable
	case errors.Is(err, constants.ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, s.logErr(r, err), err.Error())
}

// logErr logs a failed request and returns its status code.
func (s *Server) logErr(r *http.Request, err error) int {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	return status
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
