package repository

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/timmy/gymflow/internal/domain"
	"gorm.io/gorm"
)

// MemberRepository handles member profile reads and the profile fields the
// recommendation engine is allowed to write.
type MemberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new MemberRepository.
func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Create inserts a new member record.
func (r *MemberRepository) Create(ctx context.Context, member *domain.Member) error {
	return r.db.WithContext(ctx).Create(member).Error
}

// GetByID retrieves a member by ID.
// Returns ErrNotFound when no member matches.
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	var member domain.Member
	if err := r.db.WithContext(ctx).First(&member, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &member, nil
}

// UpdateProfile persists the recommendation-relevant profile fields. A
// member without goals has no profile embedding, so the stored one is
// cleared along with them.
func (r *MemberRepository) UpdateProfile(ctx context.Context, member *domain.Member) error {
	updates := map[string]interface{}{
		"fitness_goals":      member.FitnessGoals,
		"medical_conditions": member.MedicalConditions,
		"membership_tier":    member.Tier,
		"ai_opt_in":          member.AIOptIn,
		"updated_at":         time.Now(),
	}
	if len(member.FitnessGoals.Normalized()) == 0 {
		updates["embedding"] = nil
	}
	return r.db.WithContext(ctx).Model(&domain.Member{}).
		Where("id = ?", member.ID).
		Updates(updates).Error
}

// UpdateEmbedding stores a freshly generated profile embedding.
func (r *MemberRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	return r.db.WithContext(ctx).Model(&domain.Member{}).
		Where("id = ?", id).
		Update("embedding", &vec).Error
}

// ListIDsMissingEmbedding returns up to limit member IDs without an embedding.
// With force set, all members are returned.
func (r *MemberRepository) ListIDsMissingEmbedding(ctx context.Context, limit int, force bool) ([]string, error) {
	var ids []string
	query := r.db.WithContext(ctx).Model(&domain.Member{})
	if !force {
		query = query.Where("embedding IS NULL")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListRecentlyActiveIDs returns members with attendance or bookings since the
// given time, most active first. Used to pick cache-warming targets.
func (r *MemberRepository) ListRecentlyActiveIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	type row struct {
		MemberID string
		Total    int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Raw(`
		SELECT member_id, COUNT(*) AS total FROM (
			SELECT member_id FROM attendances WHERE attended_at >= ?
			UNION ALL
			SELECT member_id FROM bookings WHERE booked_at >= ?
		) activity
		GROUP BY member_id
		ORDER BY total DESC, member_id
		LIMIT ?`, since, since, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, rw := range rows {
		ids[i] = rw.MemberID
	}
	return ids, nil
}
