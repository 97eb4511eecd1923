package transport

import "github.com/fastygo/catalog/domain"

type CreateCategoryRequest struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Slug             string `json:"slug"`
	ParentID         string `json:"parent_id"`
	IsActive         *bool  `json:"is_active"`
	Order            int    `json:"order"`
	FeaturedPriority int    `json:"featured_priority"`
}

// MoveCategoryRequest re-parents a category; an empty or null parent_id makes it a root.
type MoveCategoryRequest struct {
	ParentID *string `json:"parent_id"`
}

type FeaturedRequest struct {
	Featured *bool `json:"featured" validate:"required"`
}

type ActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type ReorderRequest struct {
	Items []domain.OrderPair `json:"items" validate:"required,min=1,max=1000,dive"`
}

type ItemEventRequest struct {
	Event          string `json:"event"`
	CategoryID     string `json:"category_id"`
	FromCategoryID string `json:"from_category_id"`
	Kind           string `json:"kind"`
	ItemID         string `json:"item_id"`
}

// ToEvent converts the payload into the domain event.
func (r ItemEventRequest) ToEvent() domain.ItemEvent {
	return domain.ItemEvent{
		Name:           r.Event,
		CategoryID:     r.CategoryID,
		FromCategoryID: r.FromCategoryID,
		Kind:           domain.ItemKind(r.Kind),
		ItemID:         r.ItemID,
	}
}
