package domain

// Item lifecycle events reported by the catalog item repository.
const (
	EventItemAssigned   = "item.assigned"
	EventItemRemoved    = "item.removed"
	EventItemReassigned = "item.reassigned"
)

// ItemEvent tells the metrics that an item entered, left or changed category.
type ItemEvent struct {
	Name           string   `json:"event" validate:"required,oneof=item.assigned item.removed item.reassigned"`
	CategoryID     string   `json:"category_id" validate:"required"`
	FromCategoryID string   `json:"from_category_id,omitempty" validate:"required_if=Name item.reassigned"`
	Kind           ItemKind `json:"kind" validate:"required,oneof=product auction"`
	ItemID         string   `json:"item_id" validate:"required"`
}
