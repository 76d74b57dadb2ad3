package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"resumatch/internal/api/middleware"
	"resumatch/internal/database"
	"resumatch/internal/errcode"
	"resumatch/internal/extract"
	"resumatch/internal/match"
	"resumatch/internal/metrics"
	"resumatch/internal/storage"
)

// 原始实现缺省的职位描述占位文本，保持不变。
const defaultJobDescription = "Sample job description"

const lastAnalysisTTL = 24 * time.Hour

const metadataExcerptLimit = 500

// ObjectStore 是分析流程需要的对象存储能力子集。
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// 简历只接受文档格式；职位描述额外放开纯文本。
var (
	resumeExts = map[string]bool{".pdf": true, ".doc": true, ".docx": true}
	jobExts    = map[string]bool{".pdf": true, ".doc": true, ".docx": true, ".txt": true}
)

// AnalysisHandler 编排一次完整的简历分析：
// 病毒扫描、落盘、文本提取、打分、入库、会话缓存。
type AnalysisHandler struct {
	store          *database.Store
	objectStore    ObjectStore
	redis          redis.UniversalClient
	logger         *slog.Logger
	clamdAddr      string
	maxUploadBytes int64

	extractText func(data []byte, filename string) (string, error)
}

// NewAnalysisHandler 构造 AnalysisHandler。
func NewAnalysisHandler(store *database.Store, objectStore ObjectStore, redisClient redis.UniversalClient, logger *slog.Logger, clamdAddr string, maxUploadBytes int64) *AnalysisHandler {
	return &AnalysisHandler{
		store:          store,
		objectStore:    objectStore,
		redis:          redisClient,
		logger:         logger,
		clamdAddr:      clamdAddr,
		maxUploadBytes: maxUploadBytes,
		extractText:    extract.Text,
	}
}

// analysisResponse 是一次分析的完整返回，同时作为会话缓存的载体。
type analysisResponse struct {
	Filename        string    `json:"filename"`
	Score           float64   `json:"score"`
	SkillsMatched   string    `json:"skills_matched"`
	MatchedSkills   []string  `json:"matched_skills"`
	MissingSkills   []string  `json:"missing_skills"`
	KeywordCoverage float64   `json:"keyword_coverage"`
	Experience      string    `json:"experience"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// Analyze 接收简历与职位描述，同步完成整个打分流水线。
// 所有失败只终结本次请求；临时文件在成功与失败路径上都会清理。
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	logger := middleware.LoggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	resumeFile, err := c.FormFile("resume")
	if err != nil {
		logger.Info("analysis rejected: resume missing", slog.Int("errcode", errcode.ValidationFailed))
		metrics.CountAnalysis("rejected")
		BadRequest(c, "please upload a resume")
		return
	}

	if !resumeExts[strings.ToLower(filepath.Ext(resumeFile.Filename))] {
		logger.Info("analysis rejected: unsupported resume format",
			slog.String("filename", resumeFile.Filename),
			slog.Int("errcode", errcode.UnsupportedFormat),
		)
		metrics.CountAnalysis("rejected")
		BadRequest(c, "resume must be a pdf, doc or docx file")
		return
	}

	resumeData, err := h.readUpload(resumeFile)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	if err := h.scanForViruses(resumeData); err != nil {
		logger.Info("analysis rejected: malicious upload", slog.Any("error", err))
		metrics.CountAnalysis("rejected")
		BadRequest(c, "malicious file detected")
		return
	}

	ctx := c.Request.Context()

	resumeText, err := h.extractViaTempFile(resumeData, resumeFile.Filename)
	if err != nil {
		h.replyExtractionError(c, logger, resumeFile.Filename, err)
		return
	}

	jobText, err := h.resolveJobText(c)
	if err != nil {
		h.replyExtractionError(c, logger, "job description", err)
		return
	}

	result := match.Score(resumeText, jobText)

	objectKey, err := h.storeUpload(ctx, userID, resumeFile.Filename, resumeData)
	if err != nil {
		logger.Error("store resume upload failed", slog.Any("error", err))
		Internal(c, "failed to store resume")
		return
	}

	meta, err := json.Marshal(database.AnalysisMetadata{
		Version:       database.MetadataVersion,
		TextExcerpt:   excerpt(resumeText, metadataExcerptLimit),
		JobExcerpt:    excerpt(jobText, metadataExcerptLimit),
		MatchedSkills: result.MatchedTerms,
		MissingSkills: result.MissingTerms,
	})
	if err != nil {
		logger.Error("marshal analysis metadata failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	score := result.Score
	record := database.File{
		UserID:    &userID,
		Filename:  resumeFile.Filename,
		Kind:      database.KindResume,
		Score:     &score,
		Metadata:  meta,
		ObjectKey: objectKey,
	}
	if err := h.store.CreateFile(ctx, &record); err != nil {
		logger.Error("persist analysis failed", slog.Any("error", err))
		Internal(c, "failed to save analysis")
		return
	}

	response := analysisResponse{
		Filename:        resumeFile.Filename,
		Score:           result.Score,
		SkillsMatched:   fmt.Sprintf("%d/%d", len(result.MatchedTerms), len(result.MatchedTerms)+len(result.MissingTerms)),
		MatchedSkills:   result.MatchedTerms,
		MissingSkills:   result.MissingTerms,
		KeywordCoverage: result.KeywordCoverage,
		Experience:      result.Experience,
		AnalyzedAt:      record.CreatedAt,
	}

	if err := h.cacheLastAnalysis(ctx, userID, response); err != nil {
		// 缓存失败不影响本次结果，只是“最近一次分析”暂不可取。
		logger.Error("cache last analysis failed", slog.Any("error", err))
	}

	metrics.CountAnalysis("ok")
	logger.Info("analysis complete",
		slog.Uint64("file_id", uint64(record.ID)),
		slog.Float64("score", result.Score),
		slog.Int("matched", len(result.MatchedTerms)),
		slog.Int("missing", len(result.MissingTerms)),
	)
	c.JSON(http.StatusOK, response)
}

// GetLatest 返回会话持有的最近一次分析结果。
func (h *AnalysisHandler) GetLatest(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	raw, err := h.redis.Get(c.Request.Context(), lastAnalysisKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			NotFound(c, "no analysis in this session")
			return
		}
		middleware.LoggerFromContext(c).Error("load last analysis failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	var response analysisResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		middleware.LoggerFromContext(c).Error("decode last analysis failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, response)
}

// ClearLatest 显式丢弃会话中的分析结果（界面上的 New Analysis）。
func (h *AnalysisHandler) ClearLatest(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	if err := h.redis.Del(c.Request.Context(), lastAnalysisKey(userID)).Err(); err != nil {
		middleware.LoggerFromContext(c).Error("clear last analysis failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDownloadLink 为本人某条分析记录的原始文件生成限时下载链接。
func (h *AnalysisHandler) GetDownloadLink(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	fileID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid record id")
		return
	}

	ctx := c.Request.Context()
	record, err := h.store.FindUserFile(ctx, userID, uint(fileID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "record not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load record failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if record.ObjectKey == "" {
		NotFound(c, "no stored document for this record")
		return
	}

	url, err := h.objectStore.GeneratePresignedURL(ctx, record.ObjectKey, 10*time.Minute)
	if err != nil {
		if storage.IsNoSuchKey(err) {
			NotFound(c, "stored document no longer exists")
			return
		}
		middleware.LoggerFromContext(c).Error("generate download link failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

var resumeTips = []string{
	"Highlight specific achievements with quantifiable results.",
	"Tailor your skills to match the job description.",
	"Use action verbs like 'developed' or 'optimized'.",
	"Keep the resume to one page if under 10 years of experience.",
	"Include a professional summary.",
}

// GetTips 返回静态的简历建议列表。
func (h *AnalysisHandler) GetTips(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tips": resumeTips})
}

func (h *AnalysisHandler) readUpload(file *multipart.FileHeader) ([]byte, error) {
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", h.maxUploadBytes)
	}
	reader, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

// scanForViruses 在配置了 clamd 时扫描上传内容。
func (h *AnalysisHandler) scanForViruses(data []byte) error {
	if h.clamdAddr == "" {
		return nil
	}

	clamdClient := clamd.NewClamd(h.clamdAddr)
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := clamdClient.ScanStream(bytes.NewReader(data), abortChan)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}
	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return fmt.Errorf("scan verdict %s", result.Status)
		}
	}
	return nil
}

// extractViaTempFile 将上传内容落到临时文件再走提取器，
// 无论成功失败临时文件都会被删除。
func (h *AnalysisHandler) extractViaTempFile(data []byte, filename string) (string, error) {
	tmp, err := os.CreateTemp("", "upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	spooled, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", fmt.Errorf("read temp file: %w", err)
	}
	return h.extractText(spooled, filename)
}

// resolveJobText 解析职位描述：上传文件优先，其次手填文本，
// 两者都缺省时沿用原始实现的占位描述。
func (h *AnalysisHandler) resolveJobText(c *gin.Context) (string, error) {
	if jobFile, err := c.FormFile("job_file"); err == nil {
		if !jobExts[strings.ToLower(filepath.Ext(jobFile.Filename))] {
			return "", extract.ErrUnsupportedFormat
		}
		data, err := h.readUpload(jobFile)
		if err != nil {
			return "", err
		}
		return h.extractViaTempFile(data, jobFile.Filename)
	}

	if text := strings.TrimSpace(c.PostForm("job_text")); text != "" {
		return text, nil
	}
	return defaultJobDescription, nil
}

func (h *AnalysisHandler) storeUpload(ctx context.Context, userID uint, filename string, data []byte) (string, error) {
	objectKey := fmt.Sprintf("resumes/%d/%s%s", userID, uuid.NewString(), strings.ToLower(filepath.Ext(filename)))
	contentType := "application/octet-stream"
	if _, err := h.objectStore.UploadFile(ctx, objectKey, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("upload object %q: %w", objectKey, err)
	}
	return objectKey, nil
}

func (h *AnalysisHandler) cacheLastAnalysis(ctx context.Context, userID uint, response analysisResponse) error {
	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("marshal last analysis: %w", err)
	}
	return h.redis.Set(ctx, lastAnalysisKey(userID), payload, lastAnalysisTTL).Err()
}

func (h *AnalysisHandler) replyExtractionError(c *gin.Context, logger *slog.Logger, source string, err error) {
	metrics.CountAnalysis("rejected")
	if errors.Is(err, extract.ErrUnsupportedFormat) {
		logger.Info("analysis rejected: unsupported format",
			slog.String("source", source),
			slog.Int("errcode", errcode.UnsupportedFormat),
		)
		BadRequest(c, "unsupported document format")
		return
	}
	logger.Info("extraction failed",
		slog.String("source", source),
		slog.Any("error", err),
	)
	Unprocessable(c, "could not extract text from document")
}

func lastAnalysisKey(userID uint) string {
	return fmt.Sprintf("analysis:last:%d", userID)
}

// excerpt 截断文本供元数据存储。
func excerpt(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
