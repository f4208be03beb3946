package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/facturaIA/invoice-extraction-service/internal/classify"
	"github.com/facturaIA/invoice-extraction-service/internal/db"
	"github.com/facturaIA/invoice-extraction-service/internal/errs"
	"github.com/facturaIA/invoice-extraction-service/internal/export"
	"github.com/facturaIA/invoice-extraction-service/internal/metadata"
	"github.com/facturaIA/invoice-extraction-service/internal/metrics"
	"github.com/facturaIA/invoice-extraction-service/internal/models"
	"github.com/facturaIA/invoice-extraction-service/internal/pipeline"
	"github.com/facturaIA/invoice-extraction-service/internal/textstruct"
)

const (
	MaxUploadSize = 10 * 1024 * 1024 // 10MB
	Version       = "3.0.0"

	referenceSearchLimit = 50
	invoiceListLimit     = 100
)

// Saved-to values reported after processing.
const (
	SavedDatabase = "database"
	SavedFile     = "file"
	SavedNone     = "none"
)

// fallbackCodes answer reference searches when the store is down.
var fallbackCodes = []models.ReferenceCode{
	{Code: "84159000", Designation: "Machines et appareils"},
	{Code: "84799000", Designation: "Autres machines"},
	{Code: "85437000", Designation: "Machines électriques"},
}

// Processor runs the extraction pipeline on one document.
type Processor interface {
	Process(ctx context.Context, doc models.Document) (*pipeline.Result, error)
}

// Classifier fills missing classification codes.
type Classifier interface {
	Resolve(ctx context.Context, items []models.LineItem) ([]models.LineItem, []models.ClassificationCandidate)
}

// InvoiceRepository persists reconciled invoices.
type InvoiceRepository interface {
	Save(ctx context.Context, rec models.InvoiceRecord, dossier string) (int64, error)
	List(ctx context.Context, limit int) ([]db.StoredInvoice, error)
	Get(ctx context.Context, id int64) (*db.StoredInvoice, error)
}

// DossierRepository reads customs dossiers.
type DossierRepository interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, num string) (*db.Dossier, error)
}

// FallbackWriter saves a record when the database is unavailable.
type FallbackWriter interface {
	Save(rec models.InvoiceRecord, dossier string) (string, error)
}

// DocumentStorage keeps the uploaded originals.
type DocumentStorage interface {
	Put(ctx context.Context, dossier string, doc models.Document) (string, error)
}

// Deps are the collaborators of a Handler. Only Processor is required;
// leave the others nil when the backing service is not configured.
type Deps struct {
	Processor   Processor
	Classifier  Classifier
	References  classify.ReferenceDataset
	Invoices    InvoiceRepository
	Dossiers    DossierRepository
	Files       FallbackWriter
	Documents   DocumentStorage
	Checks      []Check
	HTTPMetrics *metrics.PrometheusMiddleware
	Gatherer    prometheus.Gatherer
	Log         *logrus.Entry
}

// Handler handles HTTP requests for invoice processing
type Handler struct {
	config *models.Config
	deps   Deps
	log    *logrus.Entry
}

// NewHandler creates a new API handler
func NewHandler(config *models.Config, deps Deps) *Handler {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		config: config,
		deps:   deps,
		log:    log.WithField("component", "api"),
	}
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()
	if h.deps.HTTPMetrics != nil {
		router.Use(h.deps.HTTPMetrics.Handler)
	}

	// Main endpoint
	router.HandleFunc("/api/process-invoice", h.ProcessInvoice).Methods("POST")

	// Dossiers and reference data
	router.HandleFunc("/api/dossiers", h.GetDossiers).Methods("GET")
	router.HandleFunc("/api/dossiers/{num}", h.GetDossier).Methods("GET")
	router.HandleFunc("/api/reference-codes", h.SearchReferenceCodes).Methods("GET")
	router.HandleFunc("/api/classify", h.Classify).Methods("POST")
	router.HandleFunc("/api/test-totals", h.TestTotals).Methods("POST")

	// Saved invoices
	router.HandleFunc("/api/invoices", h.GetInvoices).Methods("GET")
	router.HandleFunc("/api/invoice/{id}", h.GetInvoice).Methods("GET")
	router.HandleFunc("/api/invoice/{id}/export", h.ExportInvoice).Methods("GET")

	router.HandleFunc("/health", h.Health).Methods("GET")
	if h.deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
	return router
}

// ProcessInvoice runs the pipeline on an uploaded invoice and saves the result.
func (h *Handler) ProcessInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx := r.Context()
	startTime := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		h.sendError(w, http.StatusBadRequest, "File too large or invalid form data")
		return
	}

	// Accept both "file" and "pdf" field names
	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("pdf")
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "No file provided (use 'file' or 'pdf' field)")
			return
		}
	}
	defer file.Close()

	dossier := strings.TrimSpace(r.FormValue("dossier"))
	if dossier == "" {
		h.sendError(w, http.StatusBadRequest, "dossier is required")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}
	doc := models.Document{
		Filename:    header.Filename,
		ContentType: detectContentType(header.Header.Get("Content-Type"), header.Filename, data),
		Data:        data,
	}
	if !supported(doc.ContentType) {
		h.sendError(w, http.StatusUnsupportedMediaType, "unsupported file type "+doc.ContentType+" (PDF, PNG or JPEG)")
		return
	}

	log := h.log.WithFields(logrus.Fields{"file": doc.Filename, "dossier": dossier, "bytes": len(data)})
	res, err := h.deps.Processor.Process(ctx, doc)
	if err != nil {
		status := statusFor(err)
		log.WithError(err).WithField("status", status).Warn("invoice processing failed")
		resp := models.ProcessResponse{
			Success:       false,
			Dossier:       dossier,
			Error:         err.Error(),
			Stage:         errs.StageOf(err),
			Kind:          string(errs.KindOf(err)),
			TotalDuration: time.Since(startTime).Seconds(),
			ProcessedAt:   time.Now(),
		}
		if res != nil {
			resp.RequestID = res.RequestID
			resp.Pages = res.OCR.Pages
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
		return
	}

	resp := models.ProcessResponse{
		Success:         true,
		RequestID:       res.RequestID,
		Invoice:         &res.Invoice,
		Candidates:      &res.Candidates,
		Classifications: res.Classifications,
		Validation:      res.Validation,
		Confidence:      res.OCR.Confidence,
		Pages:           res.OCR.Pages,
		Dossier:         dossier,
		OCRDuration:     res.OCRDuration.Seconds(),
		AIDuration:      res.AIDuration.Seconds(),
	}

	// Storing the original is best effort
	if h.deps.Documents != nil {
		if object, err := h.deps.Documents.Put(ctx, dossier, doc); err != nil {
			log.WithError(err).Warn("failed to store original document")
		} else {
			resp.StoredObject = object
		}
	}

	resp.SavedTo = h.save(ctx, log, res.Invoice, dossier)
	resp.TotalDuration = time.Since(startTime).Seconds()
	resp.ProcessedAt = time.Now()

	log.WithFields(logrus.Fields{
		"req_id":   res.RequestID,
		"items":    len(res.Invoice.Items),
		"saved_to": resp.SavedTo,
	}).Info("invoice processed")

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// save writes rec to the database, falling back to a JSON file.
func (h *Handler) save(ctx context.Context, log *logrus.Entry, rec models.InvoiceRecord, dossier string) string {
	if h.deps.Invoices != nil {
		id, err := h.deps.Invoices.Save(ctx, rec, dossier)
		if err == nil {
			log.WithField("invoice_id", id).Info("invoice saved to database")
			return SavedDatabase
		}
		log.WithError(err).Warn("database save failed, writing fallback file")
	}
	if h.deps.Files != nil {
		path, err := h.deps.Files.Save(rec, dossier)
		if err == nil {
			log.WithField("path", path).Info("invoice saved to file")
			return SavedFile
		}
		log.WithError(err).Error("fallback file save failed")
	}
	return SavedNone
}

// GetDossiers lists the dossier numbers an invoice can be attached to.
func (h *Handler) GetDossiers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	dossiers := []string{}
	if h.deps.Dossiers != nil {
		found, err := h.deps.Dossiers.List(r.Context(), h.config.Classify.DossierPrefix)
		if err != nil {
			h.log.WithError(err).Warn("failed to list dossiers")
		} else if found != nil {
			dossiers = found
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"dossiers": dossiers,
		"count":    len(dossiers),
	})
}

// GetDossier returns one dossier.
func (h *Handler) GetDossier(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.deps.Dossiers == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	num := mux.Vars(r)["num"]
	dossier, err := h.deps.Dossiers.Get(r.Context(), num)
	if errors.Is(err, db.ErrNotFound) {
		h.sendError(w, http.StatusNotFound, "dossier not found: "+num)
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("dossier", num).Error("failed to get dossier")
		h.sendError(w, http.StatusInternalServerError, "failed to get dossier")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"dossier": dossier,
	})
}

// SearchReferenceCodes searches classification codes by code or designation.
func (h *Handler) SearchReferenceCodes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	term := strings.TrimSpace(r.URL.Query().Get("q"))
	codes, fallback := fallbackCodes, true
	if h.deps.References != nil {
		found, err := h.deps.References.Search(r.Context(), term, referenceSearchLimit)
		if err != nil {
			h.log.WithError(err).WithField("term", term).Warn("reference search failed")
		} else {
			codes, fallback = found, false
			if codes == nil {
				codes = []models.ReferenceCode{}
			}
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"codes":    codes,
		"count":    len(codes),
		"fallback": fallback,
	})
}

type classifyRequest struct {
	Descriptions []string `json:"descriptions"`
}

// Classify resolves classification codes for free-text descriptions.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.deps.Classifier == nil {
		h.sendError(w, http.StatusServiceUnavailable, "classification not available")
		return
	}

	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Descriptions) == 0 {
		h.sendError(w, http.StatusBadRequest, "No descriptions provided")
		return
	}

	items := make([]models.LineItem, len(req.Descriptions))
	for i, d := range req.Descriptions {
		items[i] = models.LineItem{Description: d}
	}
	_, classifications := h.deps.Classifier.Resolve(r.Context(), items)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":         true,
		"classifications": classifications,
	})
}

type totalsRequest struct {
	Text string `json:"text"`
}

// TestTotals shows which totals and candidates are found in a text sample.
func (h *Handler) TestTotals(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req totalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.sendError(w, http.StatusBadRequest, "No text provided")
		return
	}

	structured := textstruct.Structure(req.Text)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":         true,
		"detected_totals": metadata.DetectTotals(structured.String()),
		"metadata":        metadata.Mine(structured.String()),
		"structured":      structured.Lines,
	})
}

// GetInvoices returns the most recent saved invoices.
func (h *Handler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.deps.Invoices == nil {
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	invoices, err := h.deps.Invoices.List(r.Context(), invoiceListLimit)
	if err != nil {
		h.log.WithError(err).Error("failed to list invoices")
		h.sendError(w, http.StatusInternalServerError, "failed to get invoices")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"invoices": invoices,
		"count":    len(invoices),
	})
}

// GetInvoice returns a single invoice
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	invoice, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"invoice": invoice,
	})
}

// ExportInvoice returns a saved invoice as an XLSX workbook.
func (h *Handler) ExportInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, ok := h.loadInvoice(w, r)
	if !ok {
		return
	}

	source := invoice.Dossier
	if source == "" {
		source = "invoice " + strconv.FormatInt(invoice.ID, 10)
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoice_%d.xlsx"`, invoice.ID))
	if err := export.WriteWorkbook(w, []export.Entry{{Source: source, Record: invoice.InvoiceRecord}}); err != nil {
		h.log.WithError(err).WithField("invoice_id", invoice.ID).Error("export failed")
	}
}

func (h *Handler) loadInvoice(w http.ResponseWriter, r *http.Request) (*db.StoredInvoice, bool) {
	if h.deps.Invoices == nil {
		w.Header().Set("Content-Type", "application/json")
		h.sendError(w, http.StatusServiceUnavailable, "database not available")
		return nil, false
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		h.sendError(w, http.StatusBadRequest, "invalid invoice id")
		return nil, false
	}
	invoice, err := h.deps.Invoices.Get(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		w.Header().Set("Content-Type", "application/json")
		h.sendError(w, http.StatusNotFound, "invoice not found")
		return nil, false
	}
	if err != nil {
		h.log.WithError(err).WithField("invoice_id", id).Error("failed to get invoice")
		w.Header().Set("Content-Type", "application/json")
		h.sendError(w, http.StatusInternalServerError, "failed to get invoice")
		return nil, false
	}
	return invoice, true
}

// statusFor maps a pipeline failure to an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.NoTextFound:
		return http.StatusUnprocessableEntity
	case errs.NoEngineAvailable:
		return http.StatusServiceUnavailable
	case errs.UpstreamUnavailable:
		if errs.CauseOf(err) == errs.CauseTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errs.MalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func detectContentType(declared, filename string, data []byte) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}

func supported(contentType string) bool {
	switch contentType {
	case "application/pdf", "image/png", "image/jpeg":
		return true
	}
	return false
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
