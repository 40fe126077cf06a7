package domain

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// ClassCategory is the kind of workout a class offers.
type ClassCategory string

const (
	CategoryYoga     ClassCategory = "yoga"
	CategoryPilates  ClassCategory = "pilates"
	CategoryHIIT     ClassCategory = "hiit"
	CategoryCardio   ClassCategory = "cardio"
	CategoryStrength ClassCategory = "strength"
	CategoryCycling  ClassCategory = "cycling"
	CategoryDance    ClassCategory = "dance"
	CategoryBoxing   ClassCategory = "boxing"
	CategoryMobility ClassCategory = "mobility"
	CategoryCrossfit ClassCategory = "crossfit"
)

// IsHighIntensity reports whether the category is considered high intensity
// for medical contraindication checks.
func (c ClassCategory) IsHighIntensity() bool {
	switch c {
	case CategoryHIIT, CategoryCardio, CategoryCycling, CategoryBoxing, CategoryCrossfit:
		return true
	}
	return false
}

// Valid reports whether c is a known category.
func (c ClassCategory) Valid() bool {
	switch c {
	case CategoryYoga, CategoryPilates, CategoryHIIT, CategoryCardio, CategoryStrength,
		CategoryCycling, CategoryDance, CategoryBoxing, CategoryMobility, CategoryCrossfit:
		return true
	}
	return false
}

// Difficulty is the class difficulty tier. DifficultyAdvanced is the highest.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	return d == DifficultyBeginner || d == DifficultyIntermediate || d == DifficultyAdvanced
}

// Class is a bookable class definition.
type Class struct {
	ID                 string           `gorm:"type:text;primaryKey" json:"id"`
	Name               string           `gorm:"type:text;not null" json:"name"`
	Description        string           `gorm:"type:text" json:"description"`
	Category           ClassCategory    `gorm:"type:text;index:idx_classes_category" json:"category"`
	Difficulty         Difficulty       `gorm:"type:text" json:"difficulty"`
	Capacity           int              `json:"capacity"`
	DurationMinutes    int              `json:"duration_minutes"`
	Equipment          StringArray      `gorm:"type:text" json:"equipment"`
	Active             bool             `gorm:"index:idx_classes_active;not null" json:"active"`
	Embedding          *pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	EmbeddingUpdatedAt *time.Time       `json:"embedding_updated_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// TableName returns the database table name for Class.
func (Class) TableName() string {
	return "classes"
}

// HasEmbedding reports whether the class has a stored embedding.
func (c *Class) HasEmbedding() bool {
	return c.Embedding != nil && len(c.Embedding.Slice()) > 0
}

// EmbeddingFieldsChanged reports whether any field that feeds the class
// embedding text differs between before and after.
func EmbeddingFieldsChanged(before, after *Class) bool {
	if before == nil || after == nil {
		return true
	}
	return before.Name != after.Name ||
		before.Description != after.Description ||
		before.Category != after.Category ||
		before.Difficulty != after.Difficulty ||
		before.DurationMinutes != after.DurationMinutes ||
		!before.Equipment.Equal(after.Equipment)
}

// ClassUpdate carries the optional fields of a class change.
type ClassUpdate struct {
	Name            *string        `json:"name,omitempty"`
	Description     *string        `json:"description,omitempty"`
	Category        *ClassCategory `json:"category,omitempty"`
	Difficulty      *Difficulty    `json:"difficulty,omitempty"`
	Capacity        *int           `json:"capacity,omitempty"`
	DurationMinutes *int           `json:"duration_minutes,omitempty"`
	Equipment       *[]string      `json:"equipment,omitempty"`
	Active          *bool          `json:"active,omitempty"`
}

// Apply copies the set fields onto c.
func (u *ClassUpdate) Apply(c *Class) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.Category != nil {
		c.Category = *u.Category
	}
	if u.Difficulty != nil {
		c.Difficulty = *u.Difficulty
	}
	if u.Capacity != nil {
		c.Capacity = *u.Capacity
	}
	if u.DurationMinutes != nil {
		c.DurationMinutes = *u.DurationMinutes
	}
	if u.Equipment != nil {
		c.Equipment = StringArray(*u.Equipment)
	}
	if u.Active != nil {
		c.Active = *u.Active
	}
}
