package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"resumatch/internal/api/middleware"
	"resumatch/internal/database"
)

// 导出与展示时技能列表最多取前 20 项。
const skillListLimit = 20

const textSampleLimit = 100

// PlacementHandler 提供安置端的统计看板、候选人列表与导出。
type PlacementHandler struct {
	store  *database.Store
	logger *slog.Logger
}

// NewPlacementHandler 构造 PlacementHandler。
func NewPlacementHandler(store *database.Store, logger *slog.Logger) *PlacementHandler {
	return &PlacementHandler{store: store, logger: logger}
}

type statsResponse struct {
	TotalCandidates int64   `json:"total_candidates"`
	HighMatch       int64   `json:"high_match"`
	MediumMatch     int64   `json:"medium_match"`
	AverageScore    float64 `json:"average_score"`
}

// GetStats 返回简历总量、高匹配数量与平均分。
func (h *PlacementHandler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		middleware.LoggerFromContext(c).Error("load stats failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, statsResponse{
		TotalCandidates: stats.Total,
		HighMatch:       stats.HighMatch,
		MediumMatch:     stats.Total - stats.HighMatch,
		AverageScore:    stats.AverageScore,
	})
}

type resumeRecordItem struct {
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Filename   string    `json:"filename"`
	Score      string    `json:"score"`
	UploadDate time.Time `json:"upload_date"`
	TextSample string    `json:"text_sample"`
}

// ListResumes 列出全部候选人的简历记录。
func (h *PlacementHandler) ListResumes(c *gin.Context) {
	records, err := h.store.ListResumeRecords(c.Request.Context())
	if err != nil {
		middleware.LoggerFromContext(c).Error("list resumes failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]resumeRecordItem, 0, len(records))
	for _, r := range records {
		meta := decodeMetadata(r.Metadata)
		items = append(items, resumeRecordItem{
			Name:       r.Name,
			Email:      r.Email,
			Filename:   r.Filename,
			Score:      formatScore(r.Score),
			UploadDate: r.UploadDate,
			TextSample: textSample(meta.TextExcerpt),
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ExportCSV 导出全部求职者的简历记录为 CSV。
// 行数等于求职者账号名下 kind=resume 的记录数。
func (h *PlacementHandler) ExportCSV(c *gin.Context) {
	records, err := h.store.ListStudentResumeRecords(c.Request.Context())
	if err != nil {
		middleware.LoggerFromContext(c).Error("export failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="all_students.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	header := []string{"Name", "Email", "Filename", "Score", "Upload Date", "Matched Skills", "Missing Skills", "Text Sample"}
	if err := w.Write(header); err != nil {
		middleware.LoggerFromContext(c).Error("write csv header failed", slog.Any("error", err))
		return
	}

	for _, r := range records {
		meta := decodeMetadata(r.Metadata)
		row := []string{
			r.Name,
			r.Email,
			r.Filename,
			formatScore(r.Score),
			r.UploadDate.Format("2006-01-02 15:04:05"),
			joinSkills(meta.MatchedSkills),
			joinSkills(meta.MissingSkills),
			textSample(meta.TextExcerpt),
		}
		if err := w.Write(row); err != nil {
			middleware.LoggerFromContext(c).Error("write csv row failed", slog.Any("error", err))
			return
		}
	}
	w.Flush()
}

func decodeMetadata(raw []byte) database.AnalysisMetadata {
	var meta database.AnalysisMetadata
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &meta)
	}
	return meta
}

// formatScore 按界面约定输出整数分加百分号。
func formatScore(score float64) string {
	return fmt.Sprintf("%.0f%%", score)
}

func joinSkills(skills []string) string {
	if len(skills) > skillListLimit {
		skills = skills[:skillListLimit]
	}
	return strings.Join(skills, ", ")
}

// textSample 取摘要前 100 字符并追加省略号。
func textSample(text string) string {
	if len(text) > textSampleLimit {
		text = text[:textSampleLimit]
	}
	return text + "..."
}
