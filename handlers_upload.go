package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"posterpro/ai"
	"posterpro/common"
	"posterpro/pipelines/poster"
)

var (
	figureExts   = []string{".png", ".jpg", ".jpeg"}
	uploadTips   = []string{"Compress your images before uploading", "Use JPG format instead of PNG for photos", "Reduce image resolution if possible", "Upload fewer figures if needed"}
	providerName = map[string]string{
		ai.ProviderOpenAI:    "ChatGPT (OpenAI)",
		ai.ProviderAnthropic: "Claude (Anthropic)",
		ai.ProviderGemini:    "Gemini (Google)",
	}
)

func modeName(dummy bool) string {
	if dummy {
		return "Dummy Mode"
	}
	return "API Mode"
}

// errorMessage is the user-facing part of err
func errorMessage(err error) string {
	var e *common.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func (s *Server) providerModel(name string) string {
	switch name {
	case ai.ProviderOpenAI:
		return s.cfg.OpenAIModel
	case ai.ProviderAnthropic:
		return s.cfg.AnthropicModel
	case ai.ProviderGemini:
		return s.cfg.GeminiModel
	}
	return ""
}

func (s *Server) providerInfo(name string) gin.H {
	return gin.H{
		"provider":     name,
		"display_name": providerName[name],
		"model":        s.providerModel(name),
	}
}

func (s *Server) reject(c *gin.Context, status int, reason, msg string) {
	s.metrics.UploadsRejected.WithLabelValues(reason).Inc()
	c.JSON(status, gin.H{"error": msg})
}

func (s *Server) tooLarge(c *gin.Context, uploaded int64) {
	s.metrics.UploadsRejected.WithLabelValues("too_large").Inc()
	body := gin.H{
		"error":                      "File too large",
		"message":                    "The total size of uploaded files exceeds the limit. Please reduce file sizes or upload fewer files.",
		"max_size_mb":                s.cfg.MaxContentMB,
		"individual_figure_limit_mb": s.cfg.MaxFigureMB,
		"max_figures":                common.MaxFigures,
		"tips":                       uploadTips,
	}
	if uploaded > 0 {
		body["error"] = "Total upload size too large"
		body["uploaded_size_mb"] = uploaded >> 20
		body["message"] = fmt.Sprintf("Your upload is %dMB, but the limit is %dMB. Please reduce file sizes.", uploaded>>20, s.cfg.MaxContentMB)
	}
	c.JSON(http.StatusRequestEntityTooLarge, body)
}

// parseForm reads the multipart body within the upload limit. It writes
// the error response itself and reports whether the handler may go on.
func (s *Server) parseForm(c *gin.Context) (*multipart.Form, bool) {
	limit := s.cfg.MaxContentBytes()
	if c.Request.ContentLength > limit {
		s.tooLarge(c, c.Request.ContentLength)
		return nil, false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	form, err := c.MultipartForm()
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			s.tooLarge(c, 0)
			return nil, false
		}
		s.reject(c, http.StatusBadRequest, "bad_form", "Could not read the upload form.")
		return nil, false
	}
	return form, true
}

func formFile(form *multipart.Form, key string) *multipart.FileHeader {
	files := form.File[key]
	if len(files) == 0 || files[0].Filename == "" {
		return nil
	}
	return files[0]
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// uploadPath is where one request file is stored. The request prefix
// keeps concurrent uploads of the same name apart.
func (s *Server) uploadPath(reqID, filename string) string {
	name := common.SanitizeFilename(filename)
	if name == "" {
		name = "upload"
	}
	return filepath.Join(s.cfg.UploadDir, reqID+"_"+name)
}

// figureDescriptions decodes {"1": {"description": "..."}} into slot order
func figureDescriptions(raw string) ([]string, error) {
	out := make([]string, common.MaxFigures)
	if raw == "" {
		return out, nil
	}
	var parsed map[string]struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return out, err
	}
	for key, v := range parsed {
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 || n > common.MaxFigures {
			continue
		}
		out[n-1] = strings.TrimSpace(v.Description)
	}
	return out, nil
}

func (s *Server) handleUpload(c *gin.Context) {
	form, ok := s.parseForm(c)
	if !ok {
		return
	}
	reqID := uuid.NewString()[:8]
	log := s.log.With().Str("request_id", reqID).Logger()

	var cleanup []string
	succeeded := false
	defer func() {
		if !succeeded {
			s.cleaner.Remove(cleanup, false)
		}
	}()

	// Figures
	figures := make([]string, common.MaxFigures)
	var totalFigures int64
	for i := 1; i <= common.MaxFigures; i++ {
		fh := formFile(form, fmt.Sprintf("figure%d_file", i))
		if fh == nil {
			continue
		}
		if !common.HasExt(fh.Filename, figureExts...) {
			s.reject(c, http.StatusBadRequest, "bad_extension", fmt.Sprintf("Figure %d image must be PNG, JPG, or JPEG.", i))
			return
		}
		if fh.Size > s.cfg.MaxFigureBytes() {
			s.metrics.UploadsRejected.WithLabelValues("too_large").Inc()
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("Figure %d is too large (%dMB). Maximum size per figure is %dMB.", i, fh.Size>>20, s.cfg.MaxFigureMB),
			})
			return
		}
		totalFigures += fh.Size
		if totalFigures > s.cfg.MaxContentBytes() {
			s.tooLarge(c, totalFigures)
			return
		}
		path := s.uploadPath(reqID, fmt.Sprintf("figure%d_%s", i, fh.Filename))
		if err := c.SaveUploadedFile(fh, path); err != nil {
			log.Error().Err(err).Int("figure", i).Msg("failed to store figure")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not store the uploaded figure."})
			return
		}
		cleanup = append(cleanup, path)
		if err := common.ValidateImage(path, s.cfg.MaxFigureBytes()); err != nil {
			s.reject(c, statusFor(err), "invalid_image", fmt.Sprintf("Figure %d: %s", i, errorMessage(err)))
			return
		}
		figures[i-1] = path
	}
	descriptions, err := figureDescriptions(formValue(form, "figure_descriptions"))
	if err != nil {
		log.Warn().Err(err).Msg("ignoring malformed figure descriptions")
	}

	useDummy, provider := s.settings.get()
	if requested := formValue(form, "ai_provider"); requested != "" {
		name, ok := ai.NormalizeProvider(requested)
		if !ok {
			s.reject(c, http.StatusBadRequest, "bad_provider", fmt.Sprintf("Unknown AI provider %q.", requested))
			return
		}
		provider = name
	}

	// PDF, required outside dummy mode
	req := common.PosterRequest{
		OutputDir:          s.cfg.UploadDir,
		Provider:           provider,
		Figures:            figures,
		FigureDescriptions: descriptions,
		UseDummy:           useDummy,
	}
	if useDummy {
		if !s.requester.DummyStatus().Available {
			s.reject(c, http.StatusBadRequest, "no_dummy_data", "Dummy data not found. Please process a PDF in API mode first to create dummy data.")
			return
		}
		req.OutputName = reqID + "_" + common.PosterFileName("dummy_data.pdf", s.now())
	} else {
		fh := formFile(form, "pdf_file")
		if fh == nil {
			s.reject(c, http.StatusBadRequest, "missing_pdf", "Please upload a PDF file for API mode.")
			return
		}
		if !common.HasExt(fh.Filename, ".pdf") {
			s.reject(c, http.StatusBadRequest, "bad_extension", "PDF file must have .pdf extension.")
			return
		}
		path := s.uploadPath(reqID, fh.Filename)
		if err := c.SaveUploadedFile(fh, path); err != nil {
			log.Error().Err(err).Msg("failed to store pdf")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not store the uploaded PDF."})
			return
		}
		cleanup = append(cleanup, path)
		info, err := common.ValidatePDF(path)
		if err != nil {
			s.reject(c, http.StatusBadRequest, "invalid_pdf", errorMessage(err))
			return
		}
		log.Info().Int("pages", info.PageCount).Str("pdf", fh.Filename).Msg("pdf accepted")
		req.PDFPath = path
		req.OutputName = reqID + "_" + common.PosterFileName(fh.Filename, s.now())
		req.AutoFigures = s.cfg.AutoFigures
	}

	// Template: an uploaded file wins over a library selection
	if fh := formFile(form, "template_file"); fh != nil {
		if !common.HasExt(fh.Filename, ".pptx") {
			s.reject(c, http.StatusBadRequest, "bad_extension", "Template file must have .pptx extension.")
			return
		}
		path := s.uploadPath(reqID, fh.Filename)
		if err := c.SaveUploadedFile(fh, path); err != nil {
			log.Error().Err(err).Msg("failed to store template")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not store the uploaded template."})
			return
		}
		cleanup = append(cleanup, path)
		req.TemplatePath = path
	} else {
		path, err := s.library.Resolve(formValue(form, "selected_template"))
		if err != nil {
			msg := "No template selected and default template not found. Please upload a PowerPoint template or select from library."
			if sel := formValue(form, "selected_template"); sel != "" && sel != "default" {
				msg = "Selected template not found in library."
			}
			s.reject(c, http.StatusBadRequest, "bad_template", msg)
			return
		}
		req.TemplatePath = path
	}

	var res *poster.Result
	err = s.pool.Do(c.Request.Context(), func() error {
		var runErr error
		res, runErr = s.pipeline.Run(c.Request.Context(), req)
		return runErr
	})
	if err != nil {
		log.Error().Err(err).Msg("poster generation failed")
		if res != nil && res.OutputPath != "" {
			cleanup = append(cleanup, res.OutputPath)
		}
		c.JSON(statusFor(err), gin.H{"error": "Error creating presentation: " + errorMessage(err)})
		return
	}

	succeeded = true
	s.cleaner.Remove(cleanup, true)

	usedProvider := res.Provider
	if usedProvider == "" {
		usedProvider = provider
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        fmt.Sprintf("Academic poster created successfully using %s!", modeName(useDummy)),
		"filename":       res.Filename,
		"extracted_data": res.Content,
		"mode_used":      modeName(useDummy),
		"ai_provider":    s.providerInfo(usedProvider),
		"mapping":        res.Report,
		"archive_url":    res.ArchiveURL,
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	name := common.SanitizeFilename(c.Param("filename"))
	if name == "" || name != c.Param("filename") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename."})
		return
	}
	path := filepath.Join(s.cfg.UploadDir, name)
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found."})
		return
	}
	c.FileAttachment(path, name)
	if s.cleaner.Remove([]string{path}, false) > 0 {
		s.log.Info().Str("file", name).Msg("cleaned up after download")
	}
}
