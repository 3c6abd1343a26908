package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"posterpro/ai"
	"posterpro/common"
	"posterpro/notify"
	"posterpro/templates"
)

func (s *Server) handleGetMode(c *gin.Context) {
	dummy, _ := s.settings.get()
	c.JSON(http.StatusOK, gin.H{
		"use_dummy_data": dummy,
		"mode_name":      modeName(dummy),
	})
}

func (s *Server) handleSetMode(c *gin.Context) {
	var body struct {
		UseDummyData bool `json:"use_dummy_data"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No JSON data provided"})
		return
	}
	s.settings.setDummy(body.UseDummyData)
	s.log.Info().Str("mode", modeName(body.UseDummyData)).Msg("mode changed")
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"use_dummy_data": body.UseDummyData,
		"message":        "Switched to " + modeName(body.UseDummyData),
	})
}

func (s *Server) handleGetProvider(c *gin.Context) {
	_, current := s.settings.get()
	available := gin.H{}
	for _, name := range ai.ProviderOrder {
		available[name] = gin.H{
			"name":       providerName[name],
			"configured": s.requester.HasProvider(name),
			"model":      s.providerModel(name),
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"provider":            current,
		"available_providers": available,
	})
}

func (s *Server) handleSetProvider(c *gin.Context) {
	var body struct {
		Provider string `json:"provider"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No JSON data provided"})
		return
	}
	name, ok := ai.NormalizeProvider(body.Provider)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": `Invalid provider. Must be "openai", "anthropic" or "gemini"`})
		return
	}
	if !s.requester.HasProvider(name) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": providerName[name] + " API key not configured"})
		return
	}
	s.settings.setProvider(name)
	s.log.Info().Str("provider", name).Msg("provider changed")
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"provider": name,
		"message":  "Switched to " + providerName[name],
	})
}

func (s *Server) handleDummyStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.requester.DummyStatus())
}

func (s *Server) handleListTemplates(c *gin.Context) {
	list, err := s.library.List()
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": errorMessage(err)})
		return
	}
	if list == nil {
		list = []templates.Info{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"templates": list,
		"count":     len(list),
	})
}

func (s *Server) handleUploadTemplate(c *gin.Context) {
	form, ok := s.parseForm(c)
	if !ok {
		return
	}
	fh := formFile(form, "template_file")
	if fh == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No template file provided"})
		return
	}
	tier, err := templates.ParseTier(formValue(form, "tier"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errorMessage(err)})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Could not read template file"})
		return
	}
	defer f.Close()
	name, err := s.library.Save(fh.Filename, f, tier)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": errorMessage(err)})
		return
	}

	resp := gin.H{
		"success":  true,
		"message":  fmt.Sprintf("Template %q uploaded successfully", name),
		"filename": name,
		"folder":   tier,
	}
	if pv := formFile(form, "preview_file"); pv != nil {
		pf, err := pv.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Could not read preview file"})
			return
		}
		defer pf.Close()
		preview, err := s.library.SavePreview(name, pv.Filename, pf, tier)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"success": false, "error": errorMessage(err)})
			return
		}
		resp["preview"] = preview
	}
	s.log.Info().Str("template", name).Str("tier", string(tier)).Msg("template added to library")
	c.JSON(http.StatusOK, resp)
}

func (s *Server) archiveTemplate(c *gin.Context, filename string) {
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No filename provided"})
		return
	}
	moved, err := s.library.Archive(filename)
	if err != nil {
		status := statusFor(err)
		msg := errorMessage(err)
		if errors.Is(err, common.ErrTemplateNotFound) {
			msg = "Template not found"
		}
		c.JSON(status, gin.H{"success": false, "error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        fmt.Sprintf("Template %q archived successfully", filename),
		"archived_files": moved,
	})
}

func (s *Server) handleArchiveTemplate(c *gin.Context) {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON body"})
		return
	}
	s.archiveTemplate(c, body.Filename)
}

func (s *Server) handleDeleteTemplate(c *gin.Context) {
	s.archiveTemplate(c, c.Param("filename"))
}

func (s *Server) handleTemplatePreview(c *gin.Context) {
	path, err := s.library.Preview(c.Param("filename"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "Preview not found"})
		return
	}
	c.File(path)
}

func (s *Server) handleTemplateShapes(c *gin.Context) {
	shapes, err := s.library.Shapes(c.Param("filename"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": errorMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"filename": c.Param("filename"),
		"shapes":   shapes,
		"count":    len(shapes),
	})
}

func (s *Server) handlePremiumTemplates(c *gin.Context) {
	list := s.library.Catalog().PremiumTemplates()
	c.JSON(http.StatusOK, gin.H{"success": true, "premium_templates": list, "count": len(list)})
}

func (s *Server) handleComingSoonTemplates(c *gin.Context) {
	list := s.library.Catalog().ComingSoonTemplates()
	c.JSON(http.StatusOK, gin.H{"success": true, "coming_soon_templates": list, "count": len(list)})
}

// templateListEdit is one of the catalog list mutations plus the wording
// used in its responses.
type templateListEdit struct {
	apply func(name string) bool
	done  string // "added to premium list"
	noop  string // "is already premium"
}

func (s *Server) editTemplateList(edit templateListEdit) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			TemplateName string `json:"template_name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.TemplateName) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Template name required"})
			return
		}
		name := strings.TrimSpace(body.TemplateName)
		if !edit.apply(name) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("Template %q %s", name, edit.noop)})
			return
		}
		s.log.Info().Str("template", name).Msg("template " + edit.done)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("Template %q %s", name, edit.done)})
	}
}

func (s *Server) handleAddPremium() gin.HandlerFunc {
	return s.editTemplateList(templateListEdit{
		apply: s.library.Catalog().AddPremium,
		done:  "added to premium list",
		noop:  "is already premium",
	})
}

func (s *Server) handleRemovePremium() gin.HandlerFunc {
	return s.editTemplateList(templateListEdit{
		apply: s.library.Catalog().RemovePremium,
		done:  "removed from premium list",
		noop:  "is not in premium list",
	})
}

func (s *Server) handleAddComingSoon() gin.HandlerFunc {
	return s.editTemplateList(templateListEdit{
		apply: s.library.Catalog().AddComingSoon,
		done:  "added to coming soon list",
		noop:  "is already in coming soon list",
	})
}

func (s *Server) handleRemoveComingSoon() gin.HandlerFunc {
	return s.editTemplateList(templateListEdit{
		apply: s.library.Catalog().RemoveComingSoon,
		done:  "removed from coming soon list",
		noop:  "is not in coming soon list",
	})
}

func (s *Server) handleDescriptions(c *gin.Context) {
	descriptions := s.library.Catalog().Descriptions
	if descriptions == nil {
		descriptions = map[string]templates.Description{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "descriptions": descriptions})
}

func (s *Server) handleDescription(c *gin.Context) {
	d, ok := s.library.Catalog().Description(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Template description not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "description": d})
}

func (s *Server) handleUploadLimits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"max_content_length_mb": s.cfg.MaxContentMB,
		"max_figure_size_mb":    s.cfg.MaxFigureMB,
		"max_figures":           common.MaxFigures,
		"allowed_extensions":    []string{"pdf", "pptx", "png", "jpg", "jpeg"},
		"tips": []string{
			"If you get 413 errors, try compressing your images",
			"Use JPG instead of PNG for photos",
			"Reduce image resolution to 300 DPI or less",
			"Upload fewer figures if needed",
		},
	})
}

func (s *Server) handleCleanup(c *gin.Context) {
	body := struct {
		DaysOld int `json:"days_old"`
	}{DaysOld: 1}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid JSON body"})
			return
		}
	}
	res, err := s.cleaner.Sweep(body.DaysOld, s.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cleanup failed: " + errorMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       fmt.Sprintf("Cleanup completed. Removed %d old files.", res.FilesRemoved),
		"files_before":  res.FilesBefore,
		"files_after":   res.FilesAfter,
		"files_removed": res.FilesRemoved,
	})
}

func (s *Server) handleCleanupStatus(c *gin.Context) {
	st, err := s.cleaner.Status()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"auto_cleanup_enabled": st.AutoCleanup,
		"keep_final_output":    st.KeepFinalOutput,
		"upload_folder":        s.cfg.UploadDir,
		"files_count":          st.FilesCount,
		"total_size_mb":        st.TotalSizeMB,
		"files":                st.Files,
	})
}

// handleSubscribe answers success once the form is valid. Delivery
// problems are logged and never shown to the visitor.
func (s *Server) handleSubscribe(c *gin.Context) {
	var signup notify.Signup
	if err := c.ShouldBindJSON(&signup); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Name and email are required"})
		return
	}
	if err := s.notifier.Validate(&signup); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errorMessage(err)})
		return
	}

	meta := notify.Meta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent(), At: s.now()}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	if err := s.notifier.Notify(ctx, signup, meta); err != nil {
		if errors.Is(err, notify.ErrNotConfigured) {
			s.log.Warn().Str("email", signup.Email).Msg("signup received but email is not configured")
		} else {
			s.log.Error().Err(err).Str("email", signup.Email).Msg("signup email failed")
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Thank you! We'll notify you when we launch.",
	})
}
