package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/catalog/domain"
)

func TestDispatcherRoutesByName(t *testing.T) {
	d := NewDispatcher()
	var got domain.ItemEvent
	d.Register(domain.EventItemAssigned, func(_ context.Context, e domain.ItemEvent) error {
		got = e
		return nil
	})

	event := domain.ItemEvent{Name: domain.EventItemAssigned, CategoryID: "c1", Kind: domain.ItemKindProduct, ItemID: "p1"}
	require.NoError(t, d.Dispatch(context.Background(), event))
	assert.Equal(t, event, got)
	assert.Equal(t, []string{domain.EventItemAssigned}, d.Registered())
}

func TestDispatcherRejectsInvalidEvents(t *testing.T) {
	d := NewDispatcher()
	d.Register(domain.EventItemReassigned, func(context.Context, domain.ItemEvent) error { return nil })

	cases := map[string]domain.ItemEvent{
		"missing category": {Name: domain.EventItemAssigned, Kind: domain.ItemKindProduct, ItemID: "p1"},
		"unknown kind":     {Name: domain.EventItemAssigned, CategoryID: "c1", Kind: "service", ItemID: "p1"},
		"unknown event":    {Name: "item.sold", CategoryID: "c1", Kind: domain.ItemKindProduct, ItemID: "p1"},
		"reassign no from": {Name: domain.EventItemReassigned, CategoryID: "c1", Kind: domain.ItemKindProduct, ItemID: "p1"},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			err := d.Dispatch(context.Background(), event)
			require.Error(t, err)
			assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
		})
	}
}

func TestDispatcherUnregisteredHandler(t *testing.T) {
	d := NewDispatcher()
	err := d.Dispatch(context.Background(), domain.ItemEvent{Name: domain.EventItemRemoved, CategoryID: "c1", Kind: domain.ItemKindProduct, ItemID: "p1"})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}
