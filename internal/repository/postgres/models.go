package postgres

import (
	"strconv"
	"strings"
	"time"

	"github.com/MarkPereverzov/Memberly/internal/domain"
)

// AccountModel is the gorm model for pooled accounts
type AccountModel struct {
	ID              uint   `gorm:"primaryKey"`
	Phone           string `gorm:"uniqueIndex;not null"`
	SessionName     string `gorm:"not null"`
	IsActive        bool   `gorm:"not null;default:true"`
	AssignedTargets string // comma-separated target ids; empty = unrestricted
	DeactivatedFor  string
	LastUsed        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the table name for AccountModel
func (AccountModel) TableName() string {
	return "accounts"
}

// ToEntity converts the model to a domain entity
func (m *AccountModel) ToEntity() *domain.Account {
	return &domain.Account{
		Phone:           m.Phone,
		SessionName:     m.SessionName,
		IsActive:        m.IsActive,
		AssignedTargets: parseTargetIDs(m.AssignedTargets),
		LastUsed:        m.LastUsed,
	}
}

// TargetModel is the gorm model for invitation targets
type TargetModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement:false"`
	Name        string `gorm:"not null"`
	InviteRef   string `gorm:"not null"`
	IsActive    bool   `gorm:"not null;default:true"`
	MemberCount int
	RefreshedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for TargetModel
func (TargetModel) TableName() string {
	return "targets"
}

// ToEntity converts the model to a domain entity
func (m *TargetModel) ToEntity() *domain.Target {
	return &domain.Target{
		ID:          m.ID,
		Name:        m.Name,
		InviteRef:   m.InviteRef,
		IsActive:    m.IsActive,
		MemberCount: m.MemberCount,
		RefreshedAt: m.RefreshedAt,
	}
}

// WhitelistModel is the gorm model for whitelist entries
type WhitelistModel struct {
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"`
	Username  string
	AddedBy   int64
	ExpiresAt time.Time
	IsActive  bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for WhitelistModel
func (WhitelistModel) TableName() string {
	return "whitelist"
}

// ToEntity converts the model to a domain entity
func (m *WhitelistModel) ToEntity() *domain.WhitelistEntry {
	return &domain.WhitelistEntry{
		UserID:    m.UserID,
		Username:  m.Username,
		AddedBy:   m.AddedBy,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
		IsActive:  m.IsActive,
	}
}

// BlacklistModel is the gorm model for blacklist entries
type BlacklistModel struct {
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"`
	Username  string
	Reason    string
	AddedBy   int64
	IsActive  bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for BlacklistModel
func (BlacklistModel) TableName() string {
	return "blacklist"
}

// ToEntity converts the model to a domain entity
func (m *BlacklistModel) ToEntity() *domain.BlacklistEntry {
	return &domain.BlacklistEntry{
		UserID:    m.UserID,
		Username:  m.Username,
		Reason:    m.Reason,
		AddedBy:   m.AddedBy,
		CreatedAt: m.CreatedAt,
		IsActive:  m.IsActive,
	}
}

// AttemptModel is the gorm model for the append-only invitation audit log
type AttemptModel struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       int64  `gorm:"index;not null"`
	TargetID     int64  `gorm:"index;not null"`
	TargetName   string
	AccountPhone string
	Outcome      string `gorm:"not null"`
	Detail       string
	CreatedAt    time.Time
}

// TableName returns the table name for AttemptModel
func (AttemptModel) TableName() string {
	return "invitation_attempts"
}

// ToEntity converts the model to a domain entity
func (m *AttemptModel) ToEntity() *domain.InvitationAttempt {
	return &domain.InvitationAttempt{
		UserID:       m.UserID,
		TargetID:     m.TargetID,
		TargetName:   m.TargetName,
		AccountPhone: m.AccountPhone,
		Outcome:      domain.OutcomeTag(m.Outcome),
		Detail:       m.Detail,
		CreatedAt:    m.CreatedAt,
	}
}

func parseTargetIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

func formatTargetIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
