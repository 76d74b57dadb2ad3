package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrDuplicateEmail 表示注册邮箱已存在。
var ErrDuplicateEmail = errors.New("email already registered")

// ErrNotFound 表示记录不存在。查无此人属于预期结果而非系统故障。
var ErrNotFound = gorm.ErrRecordNotFound

// Store 封装全部持久化操作。每个写入都是独立的单条插入/更新，
// 不需要跨行事务。
type Store struct {
	db *gorm.DB
}

// NewStore 构造 Store。
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateUser 创建用户，邮箱唯一约束冲突时返回 ErrDuplicateEmail。
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindUserByEmail 按邮箱查找用户。
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserByID 按 ID 查找用户。
func (s *Store) FindUserByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserName 更新用户姓名。资料页只允许改名。
func (s *Store) UpdateUserName(ctx context.Context, id uint, name string) error {
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("name", name).Error; err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	return nil
}

// CreateFile 插入一条分析记录。上传时间由数据库侧的 CreatedAt 决定。
func (s *Store) CreateFile(ctx context.Context, file *File) error {
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("create file record: %w", err)
	}
	return nil
}

// FindUserFile 查找归属某用户的单条上传记录。
func (s *Store) FindUserFile(ctx context.Context, userID, fileID uint) (*File, error) {
	var file File
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", fileID, userID).
		First(&file).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

// ListUserResumes 按上传时间列出某用户的简历分析记录。
func (s *Store) ListUserResumes(ctx context.Context, userID uint) ([]File, error) {
	var files []File
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, KindResume).
		Order("created_at ASC").
		Find(&files).Error; err != nil {
		return nil, fmt.Errorf("list user resumes: %w", err)
	}
	return files, nil
}

// ResumeStats 汇总全部简历记录的统计值。
type ResumeStats struct {
	Total        int64
	HighMatch    int64
	AverageScore float64
}

// HighMatchThreshold 是看板中“高匹配”的分数线。
const HighMatchThreshold = 80.0

// Stats 计算简历总数、高匹配数量与平均分。无记录时平均分为 0。
func (s *Store) Stats(ctx context.Context) (ResumeStats, error) {
	var stats ResumeStats
	db := s.db.WithContext(ctx).Model(&File{})

	if err := db.Where("kind = ?", KindResume).Count(&stats.Total).Error; err != nil {
		return ResumeStats{}, fmt.Errorf("count resumes: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&File{}).
		Where("kind = ? AND score >= ?", KindResume, HighMatchThreshold).
		Count(&stats.HighMatch).Error; err != nil {
		return ResumeStats{}, fmt.Errorf("count high match: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&File{}).
		Where("kind = ?", KindResume).
		Select("COALESCE(AVG(score), 0)").
		Scan(&stats.AverageScore).Error; err != nil {
		return ResumeStats{}, fmt.Errorf("average score: %w", err)
	}
	return stats, nil
}

// ResumeRecord 是面向安置端视图/导出的联表行。
type ResumeRecord struct {
	Name       string
	Email      string
	Filename   string
	Score      float64
	Metadata   []byte
	UploadDate time.Time
}

// ListResumeRecords 列出全部简历记录及其归属用户。
func (s *Store) ListResumeRecords(ctx context.Context) ([]ResumeRecord, error) {
	return s.resumeRecords(ctx, false)
}

// ListStudentResumeRecords 列出归属求职者账号的简历记录，供导出使用。
func (s *Store) ListStudentResumeRecords(ctx context.Context) ([]ResumeRecord, error) {
	return s.resumeRecords(ctx, true)
}

func (s *Store) resumeRecords(ctx context.Context, studentsOnly bool) ([]ResumeRecord, error) {
	query := s.db.WithContext(ctx).Model(&File{}).
		Select("users.name, users.email, files.filename, COALESCE(files.score, 0) AS score, files.metadata, files.created_at AS upload_date").
		Joins("JOIN users ON users.id = files.user_id").
		Where("files.kind = ?", KindResume)
	if studentsOnly {
		query = query.Where("users.role = ?", RoleStudent)
	}

	var records []ResumeRecord
	if err := query.Order("files.created_at ASC").Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("list resume records: %w", err)
	}
	return records, nil
}
