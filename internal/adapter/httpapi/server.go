package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/example/book-bazaar/internal/adapter/replica"
	"github.com/example/book-bazaar/internal/domain"
	"github.com/example/book-bazaar/internal/usecase"
)

type Server struct {
	Router   *mux.Router
	Query    *usecase.QueryService
	Purchase usecase.PurchaseBook
	Modify   usecase.ModifyBook
}

func NewServer(q *usecase.QueryService, p usecase.PurchaseBook, m usecase.ModifyBook) *Server {
	s := &Server{Router: mux.NewRouter(), Query: q, Purchase: p, Modify: m}
	s.Router.Use(
		hlog.NewHandler(log.Logger),
		hlog.RequestIDHandler("req_id", "X-Request-Id"),
		hlog.AccessHandler(accessLog),
		workerScope,
	)
	s.Router.HandleFunc("/product/{id}", s.handleProduct).Methods(http.MethodGet)
	s.Router.HandleFunc("/products/{topic}", s.handleProducts).Methods(http.MethodGet)
	s.Router.HandleFunc("/purchase/{id}", s.handlePurchase).Methods(http.MethodPut)
	s.Router.HandleFunc("/purchase/{id}/", s.handlePurchase).Methods(http.MethodPut)
	s.Router.HandleFunc("/modify/{id}", s.handleModify).Methods(http.MethodPut)
	s.Router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	return s
}

// routeMessages holds a route's answers for a bad id and a missing book.
// An empty invalid falls back to the validation error's own text.
type routeMessages struct {
	invalid  string
	notFound string
}

var (
	productMessages  = routeMessages{invalid: "Product ID must be numeric", notFound: "Product not found"}
	productsMessages = routeMessages{notFound: "No products found"}
	purchaseMessages = routeMessages{invalid: "Book ID must be a numeric value", notFound: "Product not found"}
	modifyMessages   = routeMessages{notFound: "Book not found"}
)

type message struct {
	Message string `json:"message"`
	Success *bool  `json:"success,omitempty"`
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	b, err := s.Query.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, productMessages, nil)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	books, err := s.Query.GetProductsByTopic(r.Context(), mux.Vars(r)["topic"])
	if err != nil {
		writeError(w, err, productsMessages, nil)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	failed := false
	receipt, err := s.Purchase.Execute(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, purchaseMessages, &failed)
		return
	}
	if receipt.Degraded() {
		w.Header().Set("X-Degraded-Replicas", strings.Join(receipt.FailedOrderReplicas, ","))
	}
	ok := true
	writeJSON(w, http.StatusOK, message{Message: "Product purchased successfully", Success: &ok})
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	var upd domain.BookUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, message{Message: "No update data provided"})
		return
	}
	b, err := s.Modify.Execute(r.Context(), mux.Vars(r)["id"], upd)
	if err != nil {
		writeError(w, err, modifyMessages, nil)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// writeError maps use-case errors onto status codes. success is echoed in the
// body for the purchase route only.
func writeError(w http.ResponseWriter, err error, msgs routeMessages, success *bool) {
	status, msg := http.StatusInternalServerError, "Internal error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, msg = http.StatusBadRequest, msgs.invalid
		if msg == "" {
			msg = err.Error()
		}
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, msgs.notFound
	case errors.Is(err, domain.ErrOutOfStock):
		status, msg = http.StatusBadRequest, "Product out of stock"
	case domain.IsPartialWrite(err), errors.Is(err, domain.ErrReplicaUnavailable):
		status, msg = http.StatusServiceUnavailable, "Store temporarily unavailable"
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, message{Message: msg, Success: success})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// workerScope gives each request its own replica connections, released when
// the handler returns.
func workerScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, release := replica.Scoped(r.Context())
		defer release()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog logs one line per request with a request id, echoed back in
// X-Request-Id.
func accessLog(r *http.Request, status, size int, elapsed time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("elapsed", elapsed).
		Msg("request")
}
