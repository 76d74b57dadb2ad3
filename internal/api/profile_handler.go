package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"resumatch/internal/api/middleware"
	"resumatch/internal/database"
)

// ProfileHandler 负责个人资料与分析历史。
type ProfileHandler struct {
	store  *database.Store
	logger *slog.Logger
}

// NewProfileHandler 构造 ProfileHandler。
func NewProfileHandler(store *database.Store, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{store: store, logger: logger}
}

type profileResponse struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// GetProfile 返回当前用户的基本信息。
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	user, err := h.store.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		middleware.LoggerFromContext(c).Error("load profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, profileResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	})
}

type updateProfileRequest struct {
	Name string `json:"name" binding:"required,min=1,max=128"`
}

// UpdateProfile 更新姓名。邮箱与角色不可修改。
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	if err := h.store.UpdateUserName(ctx, userID, req.Name); err != nil {
		middleware.LoggerFromContext(c).Error("update profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.Status(http.StatusOK)
}

type analysisListItem struct {
	ID         uint      `json:"id"`
	Filename   string    `json:"filename"`
	Score      float64   `json:"score"`
	Verdict    string    `json:"verdict"`
	UploadedAt time.Time `json:"uploaded_at"`
	Matched    []string  `json:"matched_skills,omitempty"`
	Missing    []string  `json:"missing_skills,omitempty"`
}

// ListAnalyses 按上传时间列出当前用户的简历分析历史。
func (h *ProfileHandler) ListAnalyses(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	files, err := h.store.ListUserResumes(c.Request.Context(), userID)
	if err != nil {
		middleware.LoggerFromContext(c).Error("list analyses failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]analysisListItem, 0, len(files))
	for _, f := range files {
		score := 0.0
		if f.Score != nil {
			score = *f.Score
		}
		item := analysisListItem{
			ID:         f.ID,
			Filename:   f.Filename,
			Score:      score,
			Verdict:    verdictForScore(score),
			UploadedAt: f.CreatedAt,
		}
		if len(f.Metadata) > 0 {
			var meta database.AnalysisMetadata
			if err := json.Unmarshal(f.Metadata, &meta); err == nil {
				item.Matched = meta.MatchedSkills
				item.Missing = meta.MissingSkills
			}
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// verdictForScore 映射看板用的评级：>=80 High，>=60 Medium，其余 Low。
func verdictForScore(score float64) string {
	switch {
	case score >= 80:
		return "High"
	case score >= 60:
		return "Medium"
	default:
		return "Low"
	}
}
