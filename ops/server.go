package ops

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ethshop/shop-indexer/entity"
	"github.com/ethshop/shop-indexer/logging"
	"github.com/ethshop/shop-indexer/ops/http/middleware"
	"github.com/ethshop/shop-indexer/ops/http/render"
)

// Status reports the indexing progress of the shop indexer.
type Status interface {
	IsSynced() bool
	HeadBlock() uint
	ScannedBlock() uint
}

// Server exposes the operational endpoints of the indexer, a health summary
// and the prometheus metrics. It intentionally has no endpoint serving the
// recorded receipts themselves.
type Server struct {
	logger  logging.Logger
	indexer Status
	ledger  entity.ReceiptsLedger
	root    chi.Router
}

func NewServer(logger logging.Logger, indexer Status, receipts entity.ReceiptsLedger) *Server {
	s := &Server{
		logger:  logger,
		indexer: indexer,
		ledger:  receipts,
		root:    chi.NewMux(),
	}
	s.root.Use(chimiddleware.RequestID)
	s.root.Use(middleware.NewLoggerMiddleware(logger))
	s.root.Use(middleware.Recoverer)
	s.root.Get("/healthz", s.handleHealth)
	s.root.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *Server) Serve(addr string) error {
	s.logger.WithField("addr", addr).Info("starting ops server")
	return http.ListenAndServe(addr, s.root)
}

type healthResponse struct {
	Status       string `json:"status"`
	Synced       bool   `json:"synced"`
	HeadBlock    uint   `json:"head_block"`
	ScannedBlock uint   `json:"scanned_block"`
	Receipts     int    `json:"receipts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, http.StatusOK, &healthResponse{
		Status:       "ok",
		Synced:       s.indexer.IsSynced(),
		HeadBlock:    s.indexer.HeadBlock(),
		ScannedBlock: s.indexer.ScannedBlock(),
		Receipts:     s.ledger.Len(),
	})
}
