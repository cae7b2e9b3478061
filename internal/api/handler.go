package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"examscan-pipeline/internal/cache"
	"examscan-pipeline/internal/config"
	"examscan-pipeline/internal/gateway"
	"examscan-pipeline/internal/importer"
	"examscan-pipeline/internal/logger"
	"examscan-pipeline/internal/model"
	"examscan-pipeline/internal/reconcile"
	"examscan-pipeline/internal/storage"
	"examscan-pipeline/internal/validate"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

type Handler struct {
	resolver   *validate.Resolver
	gateway    *gateway.Gateway
	reconciler *reconcile.Reconciler
	cache      *cache.Store
	importer   *importer.Importer
	objects    storage.ObjectStore
	rdb        *redis.Client
	cfg        *config.Config
	log        zerolog.Logger
}

func NewHandler(
	resolver *validate.Resolver,
	gw *gateway.Gateway,
	reconciler *reconcile.Reconciler,
	cacheStore *cache.Store,
	imp *importer.Importer,
	objects storage.ObjectStore,
	rdb *redis.Client,
	cfg *config.Config,
) *Handler {
	return &Handler{
		resolver:   resolver,
		gateway:    gw,
		reconciler: reconciler,
		cache:      cacheStore,
		importer:   imp,
		objects:    objects,
		rdb:        rdb,
		cfg:        cfg,
		log:        logger.Get(),
	}
}

type validateRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	SectionID string `json:"section_id"`
	Offline   bool   `json:"offline"`
}

func (h *Handler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var result model.ValidationResult
	if req.Offline {
		result = h.resolver.ValidateOffline(c.Request.Context(), req.StudentID, req.SectionID)
	} else {
		result = h.resolver.Validate(c.Request.Context(), req.StudentID, req.SectionID)
	}

	c.JSON(http.StatusOK, gin.H{
		"student_id": result.StudentID,
		"status":     result.Status,
		"source":     result.Source,
		"message":    result.Message,
		"is_valid":   result.IsValid(),
		"student":    result.Student,
	})
}

type saveRequest struct {
	ExamID string             `json:"exam_id" binding:"required"`
	Graded model.GradedResult `json:"graded" binding:"required"`
}

func (h *Handler) SaveGrade(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	outcome := h.gateway.Save(c.Request.Context(), req.Graded, req.ExamID)

	// Pending is deliberately distinct from saved: the caller must be able to
	// tell an already-durable record from one still waiting on the network.
	status := http.StatusCreated
	switch outcome.Status {
	case model.SaveStatusPending:
		status = http.StatusAccepted
	case model.SaveStatusDuplicate:
		status = http.StatusConflict
	case model.SaveStatusError:
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, outcome)
}

func (h *Handler) TriggerDrain(c *gin.Context) {
	if h.rdb != nil && h.cfg.Redis.DrainTrigger != "" {
		if err := h.rdb.LPush(c.Request.Context(), h.cfg.Redis.DrainTrigger, "drain").Err(); err == nil {
			c.JSON(http.StatusAccepted, gin.H{"message": "Drain signalled"})
			return
		}
		h.log.Warn().Msg("Drain trigger push failed, draining inline")
	}

	go func() {
		if err := h.reconciler.DrainQueue(context.Background()); err != nil {
			h.log.Error().Err(err).Msg("Inline drain failed")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"message": "Drain started"})
}

type refreshRequest struct {
	SectionID string `json:"section_id"`
}

func (h *Handler) RefreshCache(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	count, err := h.cache.Refresh(c.Request.Context(), req.SectionID)
	if err != nil {
		h.log.Error().Err(err).Msg("Cache refresh failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Cache refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": count})
}

func (h *Handler) CacheMetadata(c *gin.Context) {
	meta, err := h.cache.Metadata(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"last_sync_at":       meta.LastSyncAt,
		"student_count":      meta.StudentCount,
		"expires_at":         meta.ExpiresAt,
		"is_expired":         meta.IsExpired(time.Now()),
		"size_in_bytes":      meta.SizeInBytes,
		"encryption_enabled": meta.EncryptionEnabled,
	})
}

func (h *Handler) ClearCache(c *gin.Context) {
	if err := h.cache.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared"})
}

func (h *Handler) SearchStudents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, total, err := h.cache.Search(c.Request.Context(), cache.SearchQuery{
		Text:       c.Query("q"),
		SectionID:  c.Query("section"),
		ActiveOnly: c.Query("active") == "true",
		SortBy:     c.Query("sort"),
		SortDesc:   c.Query("desc") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": records, "total": total})
}

func (h *Handler) ProcessImport(c *gin.Context) {
	data, meta, ok := h.importPayload(c)
	if !ok {
		return
	}

	result, err := h.importer.ProcessImport(c.Request.Context(), data, meta, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Import failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

// importPayload accepts either a direct multipart upload or a reference to
// an object already uploaded to the file store.
func (h *Handler) importPayload(c *gin.Context) ([]byte, importer.FileMeta, bool) {
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable upload"})
			return nil, importer.FileMeta{}, false
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable upload"})
			return nil, importer.FileMeta{}, false
		}
		return data, importer.FileMeta{
			FileName:    file.Filename,
			ContentType: file.Header.Get("Content-Type"),
		}, true
	}

	var ref struct {
		S3Key string `json:"s3_key"`
	}
	if err := c.ShouldBindJSON(&ref); err != nil || ref.S3Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a file upload or s3_key"})
		return nil, importer.FileMeta{}, false
	}
	if h.objects == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File storage not configured"})
		return nil, importer.FileMeta{}, false
	}

	data, err := h.objects.Fetch(c.Request.Context(), ref.S3Key)
	if err != nil {
		h.log.Error().Err(err).Str("key", ref.S3Key).Msg("Failed to fetch import file")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch import file"})
		return nil, importer.FileMeta{}, false
	}
	return data, importer.FileMeta{FileName: ref.S3Key}, true
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.App.Name,
		"version": h.cfg.App.Version,
	})
}
