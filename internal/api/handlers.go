package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"campaignflow/internal/browser"
	"campaignflow/internal/campaign"
	"campaignflow/internal/contacts"
	"campaignflow/internal/template"
)

type sendRequest struct {
	Message   string
	Variables []string
}

func (r sendRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Message, validation.Required),
		validation.Field(&r.Variables, validation.Each(validation.Required)),
	)
}

type sendResponse struct {
	Status   string             `json:"status"`
	Detail   string             `json:"detail"`
	BatchID  string             `json:"batch_id"`
	Sent     int                `json:"sent"`
	Skipped  int                `json:"skipped"`
	Failed   int                `json:"failed"`
	Outcomes []campaign.Outcome `json:"outcomes"`
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "message": "CampaignFlow API is running"})
}

// PreviewCSV returns the columns, the first rows and the row count of the
// uploaded csv_file.
func (s *Server) PreviewCSV(c *gin.Context) {
	table, ok := s.readCSV(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, struct {
		Status string `json:"status"`
		contacts.Preview
	}{Status: "success", Preview: table.Preview(previewRows)})
}

// SendMessages runs a whole batch and answers once it has finished.
func (s *Server) SendMessages(c *gin.Context) {
	var variables []string
	if err := json.Unmarshal([]byte(c.PostForm("variables")), &variables); err != nil {
		abort(c, http.StatusBadRequest, "Invalid variables format")
		return
	}
	req := sendRequest{Message: c.PostForm("message"), Variables: variables}
	if err := req.Validate(); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := template.Validate(req.Message, req.Variables); err != nil {
		s.log.Warnf("Template may not render as intended: %v", err)
	}

	table, ok := s.readCSV(c)
	if !ok {
		return
	}
	if err := table.RequireColumns(req.Variables...); err != nil {
		abort(c, http.StatusUnprocessableEntity, "Variables not found in CSV: "+missingList(err))
		return
	}
	if !table.HasColumn(contacts.PhoneColumn) {
		abort(c, http.StatusUnprocessableEntity, "CSV must contain a 'phone' column for WhatsApp messaging")
		return
	}

	if !s.acquire(c) {
		return
	}
	defer s.busy.Unlock()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	defer context.AfterFunc(s.batchCtx, cancel)()

	tempDir, err := os.MkdirTemp("", "campaignflow-*")
	if err != nil {
		abort(c, http.StatusInternalServerError, fmt.Sprintf("Unexpected server error: %v", err))
		return
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			s.log.Warnf("Error cleaning up temp directory %s: %v", tempDir, err)
		}
	}()

	mediaPath, err := s.saveMedia(c, tempDir)
	if err != nil {
		abort(c, http.StatusInternalServerError, fmt.Sprintf("Failed to store media file: %v", err))
		return
	}

	summary, err := s.runner.Run(ctx, campaign.Batch{
		Contacts:  table,
		Template:  req.Message,
		Variables: req.Variables,
		MediaPath: mediaPath,
	})
	switch {
	case campaign.IsSetupFailure(err):
		status := http.StatusInternalServerError
		if errors.Is(err, browser.ErrLoginTimeout) {
			status = http.StatusServiceUnavailable
		}
		abort(c, status, err.Error())
		return
	case err != nil && summary == nil:
		abort(c, http.StatusInternalServerError, fmt.Sprintf("Unexpected server error: %v", err))
		return
	}

	resp := sendResponse{
		Status:   "success",
		Detail:   fmt.Sprintf("Processed %d contacts: %d sent, %d skipped, %d failed", len(summary.Outcomes), summary.Sent, summary.Skipped, summary.Failed),
		BatchID:  summary.BatchID,
		Sent:     summary.Sent,
		Skipped:  summary.Skipped,
		Failed:   summary.Failed,
		Outcomes: summary.Outcomes,
	}
	if err != nil {
		resp.Status = "canceled"
	}
	c.JSON(http.StatusOK, resp)
}

// Logout clears the persisted browser profile so the next batch asks for a
// new QR scan.
func (s *Server) Logout(c *gin.Context) {
	if !s.busy.TryLock() {
		abort(c, http.StatusConflict, "Cannot log out while a batch is running")
		return
	}
	defer s.busy.Unlock()

	removed, err := browser.ClearProfile(s.profileDir)
	if err != nil {
		s.log.Errorf("Error clearing browser profile %s: %v", s.profileDir, err)
		abort(c, http.StatusInternalServerError, fmt.Sprintf("Failed to clear WhatsApp session data: %v", err))
		return
	}
	if removed {
		s.log.Infof("Browser profile %s cleared", s.profileDir)
	} else {
		s.log.Infof("Browser profile %s not found, no WhatsApp session to clear", s.profileDir)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully. WhatsApp session data cleared."})
}

func (s *Server) Shutdown(c *gin.Context) {
	s.log.Info("Received shutdown request. Signaling graceful exit...")
	c.JSON(http.StatusOK, gin.H{"message": "Backend received shutdown request. Attempting graceful exit."})
	s.shutdownOnce.Do(s.onShutdown)
}

func (s *Server) readCSV(c *gin.Context) (*contacts.Table, bool) {
	header, err := c.FormFile("csv_file")
	if err != nil {
		abort(c, http.StatusBadRequest, "csv_file is required")
		return nil, false
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		abort(c, http.StatusBadRequest, "Uploaded file is not a CSV.")
		return nil, false
	}

	f, err := header.Open()
	if err != nil {
		abort(c, http.StatusInternalServerError, fmt.Sprintf("Unexpected error: %v", err))
		return nil, false
	}
	defer f.Close()

	table, err := contacts.ParseCSV(f)
	if err != nil {
		abort(c, http.StatusUnprocessableEntity, fmt.Sprintf("Failed to parse CSV: %v", err))
		return nil, false
	}
	return table, true
}

// saveMedia stores the optional media_file under dir and returns its path,
// or "" when none was uploaded.
func (s *Server) saveMedia(c *gin.Context, dir string) (string, error) {
	header, err := c.FormFile("media_file")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, safeName(header))
	if err := c.SaveUploadedFile(header, path); err != nil {
		return "", err
	}
	s.log.Infof("Received media file %s (%s)", header.Filename, humanize.Bytes(uint64(header.Size)))
	return path, nil
}

func safeName(h *multipart.FileHeader) string {
	name := filepath.Base(filepath.Clean("/" + h.Filename))
	if name == "/" || name == "." {
		return "media"
	}
	return name
}

func missingList(err error) string {
	_, list, found := strings.Cut(err.Error(), ": ")
	if !found {
		return err.Error()
	}
	return list
}
