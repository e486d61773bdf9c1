package service

import (
	"testing"

	"kitchen-display/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySeededWithDefaults(t *testing.T) {
	r := NewKitchenRegistry(DefaultKitchens())
	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "hot-line", list[0].ID)
	assert.Equal(t, "bar", list[2].ID)
}

func TestRegistryCRUD(t *testing.T) {
	r := NewKitchenRegistry(nil)
	changes := 0
	r.OnChange(func() { changes++ })

	inactive := false
	k, err := r.Add(KitchenConfigRequest{
		Name:         "  Pastry ",
		Type:         "cold",
		Stations:     []models.Station{"Dessert", "dessert", "bakery"},
		Active:       &inactive,
		DisplayOrder: 4,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, k.ID)
	assert.Equal(t, "Pastry", k.Name)
	assert.False(t, k.Active)
	assert.Equal(t, []models.Station{models.StationDessert, "bakery"}, k.Stations)

	toggled, err := r.Toggle(k.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Active)

	updated, err := r.Update(k.ID, KitchenConfigRequest{Name: "Pastry Corner", Stations: []models.Station{models.StationDessert}})
	require.NoError(t, err)
	assert.Equal(t, "Pastry Corner", updated.Name)
	assert.True(t, updated.Active, "active flag kept when omitted")

	got, err := r.Get(k.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	require.NoError(t, r.Delete(k.ID))
	_, err = r.Get(k.ID)
	assert.ErrorIs(t, err, ErrKitchenNotFound)
	assert.Equal(t, 4, changes)
}

func TestRegistryErrors(t *testing.T) {
	r := NewKitchenRegistry(DefaultKitchens())

	_, err := r.Add(KitchenConfigRequest{Name: " "})
	assert.ErrorIs(t, err, ErrInvalidKitchen)

	_, err = r.Add(KitchenConfigRequest{Name: "Bar 2", RefreshIntervalSeconds: -1})
	assert.ErrorIs(t, err, ErrInvalidKitchen)

	_, err = r.Update("missing", KitchenConfigRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrKitchenNotFound)

	_, err = r.Toggle("missing")
	assert.ErrorIs(t, err, ErrKitchenNotFound)

	assert.ErrorIs(t, r.Delete("missing"), ErrKitchenNotFound)
}

func TestRegistryReturnsCopies(t *testing.T) {
	r := NewKitchenRegistry(DefaultKitchens())
	list := r.List()
	list[0].Stations[0] = "mutated"

	k, err := r.Get("hot-line")
	require.NoError(t, err)
	assert.Equal(t, models.StationGrill, k.Stations[0])
}
