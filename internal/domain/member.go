package domain

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// MembershipTier gates the AI-assisted recommendation paths.
type MembershipTier string

const (
	TierBasic   MembershipTier = "basic"
	TierPremium MembershipTier = "premium"
	TierElite   MembershipTier = "elite"
)

// Valid reports whether t is a known tier.
func (t MembershipTier) Valid() bool {
	return t == TierBasic || t == TierPremium || t == TierElite
}

// Member is the recommendation-relevant slice of a gym member profile.
// Embedding is nil until a profile embedding has been generated.
type Member struct {
	ID                string           `gorm:"type:text;primaryKey" json:"id"`
	Name              string           `gorm:"type:text" json:"name"`
	Embedding         *pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	FitnessGoals      StringArray      `gorm:"type:text" json:"fitness_goals"`
	MedicalConditions StringArray      `gorm:"type:text" json:"medical_conditions"`
	Tier              MembershipTier   `gorm:"column:membership_tier;type:text;default:basic" json:"membership_tier"`
	AIOptIn           bool             `gorm:"column:ai_opt_in;default:false" json:"ai_opt_in"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TableName returns the database table name for Member.
func (Member) TableName() string {
	return "members"
}

// HasEmbedding reports whether a non-empty profile embedding is stored.
func (m *Member) HasEmbedding() bool {
	return m.Embedding != nil && len(m.Embedding.Slice()) > 0
}

// EmbeddingSlice returns the stored embedding or nil.
func (m *Member) EmbeddingSlice() []float32 {
	if m.Embedding == nil {
		return nil
	}
	return m.Embedding.Slice()
}

// MemberProfileUpdate carries the optional fields of a profile change.
// Nil fields are left untouched.
type MemberProfileUpdate struct {
	FitnessGoals      *[]string       `json:"fitness_goals,omitempty"`
	MedicalConditions *[]string       `json:"medical_conditions,omitempty"`
	Tier              *MembershipTier `json:"membership_tier,omitempty"`
	AIOptIn           *bool           `json:"ai_opt_in,omitempty"`
}
