package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/malbeclabs/assetbot/pkg/pipeline"
	"github.com/malbeclabs/assetbot/pkg/upload"
)

const emptyMessageReply = "Please enter a question."

type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse always carries a reply. ErrorKind is set when the reply is a
// failure message.
type ChatResponse struct {
	Reply     string `json:"reply"`
	ErrorKind string `json:"error_kind,omitempty"`
	SQL       string `json:"sql,omitempty"`
}

type DocumentsResponse struct {
	Reply     string              `json:"reply,omitempty"`
	ErrorKind string              `json:"error_kind,omitempty"`
	Documents []pipeline.Document `json:"documents"`
}

type UploadResponse struct {
	Message string          `json:"message"`
	Receipt *upload.Receipt `json:"receipt,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	question := strings.TrimSpace(req.Message)
	if question == "" {
		s.writeJSON(w, http.StatusOK, ChatResponse{Reply: emptyMessageReply})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.cfg.Pipeline.Ask(ctx, question)
	if err != nil {
		s.log.Warn("server: chat failed", "error", err, "kind", pipeline.KindOf(err))
		s.writeJSON(w, http.StatusOK, ChatResponse{
			Reply:     pipeline.FriendlyMessage(err),
			ErrorKind: string(pipeline.KindOf(err)),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, ChatResponse{Reply: res.Answer, SQL: res.SQL})
}

func (s *Server) documentsHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	question := strings.TrimSpace(req.Message)
	if question == "" {
		s.writeJSON(w, http.StatusOK, DocumentsResponse{Reply: emptyMessageReply, Documents: []pipeline.Document{}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.cfg.Pipeline.FindDocuments(ctx, question)
	if err != nil {
		s.log.Warn("server: document lookup failed", "error", err, "kind", pipeline.KindOf(err))
		s.writeJSON(w, http.StatusOK, DocumentsResponse{
			Reply:     pipeline.FriendlyMessage(err),
			ErrorKind: string(pipeline.KindOf(err)),
			Documents: []pipeline.Document{},
		})
		return
	}
	resp := DocumentsResponse{Documents: res.Documents}
	if len(res.Documents) == 0 {
		resp.Reply = "No matching documents found."
		resp.Documents = []pipeline.Document{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Uploader == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "uploads are disabled"})
		return
	}
	maxBytes := s.cfg.Uploader.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		UploadsTotal.WithLabelValues("bad_request").Inc()
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid multipart upload"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		UploadsTotal.WithLabelValues("bad_request").Inc()
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: `Missing "file" field`})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		UploadsTotal.WithLabelValues("bad_request").Inc()
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Failed to read uploaded file"})
		return
	}

	rec, err := s.cfg.Uploader.Store(r.Context(), upload.File{
		Name:     header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	switch {
	case errors.Is(err, upload.ErrInvalidFilename):
		UploadsTotal.WithLabelValues("invalid_name").Inc()
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid file name. Format must be: EQ-XXXX_DD_MM_YYYY.ext"})
	case errors.Is(err, upload.ErrEquipmentNotFound):
		UploadsTotal.WithLabelValues("not_found").Inc()
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, upload.ErrFileTooLarge):
		UploadsTotal.WithLabelValues("too_large").Inc()
		s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	case errors.Is(err, upload.ErrEmptyFile):
		UploadsTotal.WithLabelValues("bad_request").Inc()
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case err != nil:
		UploadsTotal.WithLabelValues("error").Inc()
		s.log.Error("server: upload failed", "error", err, "name", header.Filename)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to save file"})
	default:
		UploadsTotal.WithLabelValues("stored").Inc()
		s.writeJSON(w, http.StatusOK, UploadResponse{
			Message: fmt.Sprintf("File '%s' stored and linked to %s.", rec.FileName, rec.EquipmentID),
			Receipt: rec,
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("server: failed to write response", "error", err)
	}
}
