package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"imgpress-go/internal/compressor"
	"imgpress-go/internal/envelope"
	"imgpress-go/internal/logger"
	"imgpress-go/internal/targetsize"
)

// compressPayload is the data of a /api/compress response. Images holds a
// data URL per input, or null where compression failed.
type compressPayload struct {
	BatchID      string              `json:"batchId"`
	Images       []*string           `json:"images"`
	Results      []compressor.Result `json:"results"`
	SuccessCount int                 `json:"successCount"`
	TotalCount   int                 `json:"totalCount"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"summary":  s.stats.GetSummary(),
			"counters": s.stats.Snapshot(),
		},
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.compressRequest(w, r)
	if !ok {
		return
	}

	payload := compressPayload{
		BatchID:      batch.ID,
		Images:       make([]*string, len(batch.Results)),
		Results:      batch.Results,
		SuccessCount: batch.SuccessCount,
		TotalCount:   batch.TotalCount,
	}
	for i, res := range batch.Results {
		if res.Success {
			url := envelope.DataURL(res.Format, res.Data)
			payload.Images[i] = &url
		}
	}

	if batch.SuccessCount == 0 {
		s.writeJSONStatus(w, http.StatusInternalServerError, APIResponse{
			Success: false,
			Error:   "All images failed to compress",
			Data:    payload,
		})
		return
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Compressed %d of %d images", batch.SuccessCount, batch.TotalCount),
		Data:    payload,
	})
}

func (s *Server) handleCompressDownload(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.compressRequest(w, r)
	if !ok {
		return
	}
	if batch.SuccessCount == 0 {
		s.writeError(w, "All images failed to compress", http.StatusInternalServerError)
		return
	}

	w.Header().Set("X-Success-Count", fmt.Sprint(batch.SuccessCount))
	w.Header().Set("X-Total-Count", fmt.Sprint(batch.TotalCount))

	if batch.TotalCount == 1 {
		res := batch.Results[0]
		name := strings.TrimSuffix(filepath.Base(res.Name), filepath.Ext(res.Name))
		if name == "" || name == "." {
			name = "image"
		}
		s.writeBinary(w, res.Format.ContentType(), "compressed_"+name+"."+res.Format.Extension(), res.Hash, res.Data)
		return
	}

	var entries []envelope.Entry
	for _, res := range batch.Succeeded() {
		entries = append(entries, envelope.Entry{
			Name:   envelope.EntryName(res.Index, res.Format),
			Format: res.Format,
			Data:   res.Data,
		})
	}
	archive, err := envelope.Zip(entries)
	if err != nil {
		logger.WithBatch(s.log, batch.ID, "zip").WithError(err).Error("Failed to build archive")
		s.writeError(w, "Failed to build archive", http.StatusInternalServerError)
		return
	}
	s.writeBinary(w, "application/zip", "compressed_images.zip", envelope.ContentHash(archive), archive)
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	items, err := s.parseUpload(w, r)
	if err != nil {
		s.writeUploadError(w, err)
		return
	}
	opts, err := pageOptions(r)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries := make([]envelope.Entry, len(items))
	for i, it := range items {
		entries[i] = envelope.Entry{Name: it.Name, Data: it.Data}
	}
	s.writePDF(w, uuid.NewString(), entries, opts)
}

func (s *Server) handleCompressPDF(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.compressRequest(w, r)
	if !ok {
		return
	}
	opts, err := pageOptions(r)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if batch.SuccessCount == 0 {
		s.writeError(w, "All images failed to compress", http.StatusInternalServerError)
		return
	}

	var entries []envelope.Entry
	for _, res := range batch.Succeeded() {
		entries = append(entries, envelope.Entry{Name: res.Name, Format: res.Format, Data: res.Data})
	}
	w.Header().Set("X-Success-Count", fmt.Sprint(batch.SuccessCount))
	w.Header().Set("X-Total-Count", fmt.Sprint(batch.TotalCount))
	s.writePDF(w, batch.ID, entries, opts)
}

func (s *Server) writePDF(w http.ResponseWriter, batchID string, entries []envelope.Entry, opts envelope.PageOptions) {
	doc, err := envelope.PDF(entries, opts)
	if err != nil {
		if errors.Is(err, envelope.ErrInvalidPage) {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.WithBatch(s.log, batchID, "pdf").WithError(err).Error("Failed to build PDF")
		s.writeError(w, fmt.Sprintf("Failed to build PDF: %v", err), http.StatusInternalServerError)
		return
	}
	s.writeBinary(w, "application/pdf", "images.pdf", envelope.ContentHash(doc), doc)
}

// compressRequest parses the upload and runs the batch under the request
// timeout. On failure the error response has been written.
func (s *Server) compressRequest(w http.ResponseWriter, r *http.Request) (*compressor.Batch, bool) {
	items, err := s.parseUpload(w, r)
	if err != nil {
		s.writeUploadError(w, err)
		return nil, false
	}
	params, err := s.compressParams(r)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Server.RequestTimeout)
	defer cancel()

	params.BatchID = uuid.NewString()
	params.Progress = func(res compressor.Result) {
		s.broadcastWSMessage("image_compressed", map[string]interface{}{
			"batchId":   params.BatchID,
			"index":     res.Index,
			"name":      res.Name,
			"success":   res.Success,
			"action":    res.Action,
			"quality":   res.QualityUsed,
			"sizeKB":    res.SizeKB,
			"metTarget": res.MetTarget,
			"message":   res.Message,
		})
	}

	s.broadcastWSMessage("compress_started", map[string]interface{}{
		"batchId":  params.BatchID,
		"images":   len(items),
		"targetKB": params.TargetKB,
		"format":   params.Format,
	})

	batch, err := s.comp.Compress(ctx, items, params)
	if err != nil {
		logger.WithFields(s.log, logrus.Fields{"batch": params.BatchID, "images": len(items)}).WithError(err).Warn("Compression request failed")
		switch {
		case errors.Is(err, targetsize.ErrInvalidParameters):
			s.writeError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			s.writeError(w, "Request timed out", http.StatusGatewayTimeout)
		default:
			s.writeError(w, err.Error(), http.StatusInternalServerError)
		}
		return nil, false
	}

	s.broadcastWSMessage("compress_completed", map[string]interface{}{
		"batchId":      batch.ID,
		"successCount": batch.SuccessCount,
		"totalCount":   batch.TotalCount,
	})
	return batch, true
}

func (s *Server) writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errFileTooLarge):
		s.writeError(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, errNoImages), errors.Is(err, errTooManyFiles), errors.Is(err, targetsize.ErrInvalidParameters):
		s.writeError(w, err.Error(), http.StatusBadRequest)
	default:
		s.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}
