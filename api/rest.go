// Package api exposes the receipt engine over a small REST surface:
// storing a receipt, querying the index, and fetching PDFs directly or
// through presigned URLs. Handlers translate between HTTP and the core
// packages; all business rules live below this layer.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/voltgrid/receipt-engine/common"
	"github.com/voltgrid/receipt-engine/index"
	"github.com/voltgrid/receipt-engine/pipeline"
	"github.com/voltgrid/receipt-engine/query"
	"github.com/voltgrid/receipt-engine/receipt"
	"github.com/voltgrid/receipt-engine/storage"
)

// Service wires the core subsystems behind the REST handlers.
type Service struct {
	writer *pipeline.Writer
	engine *query.Engine
	pdfs   *storage.PDFStore
	log    *logrus.Logger
}

// NewService builds the handler set.
func NewService(writer *pipeline.Writer, engine *query.Engine, pdfs *storage.PDFStore, log *logrus.Logger) *Service {
	if log == nil {
		log = common.Logger
	}
	return &Service{writer: writer, engine: engine, pdfs: pdfs, log: log}
}

// Register mounts the routes on e under /api/v1.
func (s *Service) Register(e *echo.Echo) {
	v1 := e.Group("/api/v1")
	v1.POST("/receipts", s.storeReceipt)
	v1.GET("/receipts", s.queryReceipts)
	v1.GET("/receipts/:session_id/pdf", s.getPDF)
	v1.GET("/receipts/:session_id/pdf-url", s.getPDFURL)
}

// storeRequest is the write payload: the metadata fields the caller
// supplies plus the rendered PDF, base64-encoded for JSON transport.
type storeRequest struct {
	SessionID     string `json:"session_id"`
	ConsumerID    string `json:"consumer_id"`
	ReceiptNumber string `json:"receipt_number"`
	PaymentDate   string `json:"payment_date"`
	CardLastFour  string `json:"card_last_four"`
	Amount        string `json:"amount"`
	PDFBase64     string `json:"pdf_base64"`
}

func (s *Service) storeReceipt(c echo.Context) error {
	var req storeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	pdf, err := base64.StdEncoding.DecodeString(req.PDFBase64)
	if err != nil || len(pdf) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "pdf_base64 must be non-empty base64")
	}

	result, err := s.writer.Store(c.Request().Context(), pdf, receipt.Metadata{
		SessionID:     req.SessionID,
		ConsumerID:    req.ConsumerID,
		ReceiptNumber: req.ReceiptNumber,
		PaymentDate:   req.PaymentDate,
		CardLastFour:  req.CardLastFour,
		Amount:        req.Amount,
	})
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (s *Service) queryReceipts(c echo.Context) error {
	var req query.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed query parameters")
	}

	result, err := s.engine.Query(c.Request().Context(), &req)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Service) getPDF(c echo.Context) error {
	key := index.PDFKey(c.Param("session_id"))
	pdf, err := s.pdfs.GetPDF(c.Request().Context(), key)
	if err != nil {
		return s.mapError(err)
	}
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

type pdfURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

func (s *Service) getPDFURL(c echo.Context) error {
	key := index.PDFKey(c.Param("session_id"))

	ttl := storage.DefaultPresignTTL
	if raw := c.QueryParam("ttl"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "ttl must be a positive duration")
		}
		ttl = parsed
	}

	url, err := s.pdfs.SignedPDFURL(c.Request().Context(), key, ttl)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, pdfURLResponse{URL: url, ExpiresIn: int(ttl.Seconds())})
}

// mapError converts the core taxonomy into HTTP status codes. The
// response carries the failure kind and message; validation failures
// name the offending field.
func (s *Service) mapError(err error) error {
	var ve *common.ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{
			"kind":    "validation",
			"field":   ve.Field,
			"message": ve.Msg,
		})
	}
	if common.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, echo.Map{
			"kind":    "not_found",
			"message": err.Error(),
		})
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusRequestTimeout, echo.Map{
			"kind":    "cancelled",
			"message": "request cancelled",
		})
	}

	kind := common.ErrorKind(err)
	s.log.WithFields(logrus.Fields{"op": "api", "kind": kind}).Error(err.Error())

	status := http.StatusInternalServerError
	if kind == "storage" {
		status = http.StatusBadGateway
	}
	return echo.NewHTTPError(status, echo.Map{
		"kind":    kind,
		"message": "request failed",
	})
}
