package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 用户角色。注册时固定，后续不可通过任何接口变更。
const (
	RoleStudent   = "student"
	RolePlacement = "placement"
)

// 上传文件类别。
const (
	KindResume         = "resume"
	KindJobDescription = "job_description"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Name         string `gorm:"size:128"`
	Email        string `gorm:"uniqueIndex;size:255"`
	PasswordHash string `gorm:"size:255"`
	Role         string `gorm:"size:32;index"`
	Files        []File `gorm:"constraint:OnDelete:SET NULL"`
}

// File 表示一次分析产生的上传记录，插入后不再修改。
// UserID 可为空以兼容匿名流程；CreatedAt 即上传时间。
type File struct {
	gorm.Model
	UserID    *uint          `gorm:"index"`
	Filename  string         `gorm:"size:255"`
	Kind      string         `gorm:"size:32;index"`
	Score     *float64
	Metadata  datatypes.JSON `gorm:"type:jsonb"`
	ObjectKey string         `gorm:"size:512"`
}

// JobPosting 在建库时声明，但当前没有任何流程使用（保留为后续扩展的桩）。
type JobPosting struct {
	gorm.Model
	Title       string `gorm:"size:255"`
	Description string
}

// MetadataVersion 是当前 AnalysisMetadata 的格式版本。
const MetadataVersion = 1

// AnalysisMetadata 是 File.Metadata 的结构化形式，带版本号以便演进。
type AnalysisMetadata struct {
	Version       int      `json:"version"`
	TextExcerpt   string   `json:"text"`
	JobExcerpt    string   `json:"jd_text"`
	MatchedSkills []string `json:"matched_skills"`
	MissingSkills []string `json:"missing_skills"`
}
