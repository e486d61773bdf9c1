package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"kitchen-display/internal/models"
	"kitchen-display/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KitchenConfigRequest is the body for adding or editing a kitchen
type KitchenConfigRequest struct {
	Name                   string           `json:"name" binding:"required"`
	Type                   string           `json:"type"`
	Stations               []models.Station `json:"stations"`
	Active                 *bool            `json:"active,omitempty"`
	DisplayOrder           int              `json:"display_order"`
	RefreshIntervalSeconds int              `json:"refresh_interval_seconds"`
}

// KitchenRegistry holds operator-defined kitchens in memory
type KitchenRegistry struct {
	mu       sync.RWMutex
	kitchens map[string]models.KitchenConfig
	onChange func()
	logger   *zap.Logger
}

// DefaultKitchens is the configuration a fresh display starts with
func DefaultKitchens() []models.KitchenConfig {
	return []models.KitchenConfig{
		{ID: "hot-line", Name: "Hot Line", Type: "hot", Stations: []models.Station{models.StationGrill, models.StationMain}, Active: true, DisplayOrder: 1},
		{ID: "cold-line", Name: "Cold Line", Type: "cold", Stations: []models.Station{models.StationSalad, models.StationDessert}, Active: true, DisplayOrder: 2},
		{ID: "bar", Name: "Bar", Type: "bar", Stations: []models.Station{models.StationBeverage}, Active: true, DisplayOrder: 3},
	}
}

// NewKitchenRegistry creates a registry seeded with kitchens
func NewKitchenRegistry(seed []models.KitchenConfig) *KitchenRegistry {
	r := &KitchenRegistry{
		kitchens: make(map[string]models.KitchenConfig, len(seed)),
		logger:   util.GetLogger(),
	}
	for _, k := range seed {
		r.kitchens[k.ID] = cloneKitchen(k)
	}
	return r
}

// OnChange registers fn to run after every successful mutation
func (r *KitchenRegistry) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// List returns every kitchen sorted by display order
func (r *KitchenRegistry) List() []models.KitchenConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.KitchenConfig, 0, len(r.kitchens))
	for _, k := range r.kitchens {
		out = append(out, cloneKitchen(k))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns one kitchen
func (r *KitchenRegistry) Get(id string) (models.KitchenConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.kitchens[id]
	if !ok {
		return models.KitchenConfig{}, ErrKitchenNotFound
	}
	return cloneKitchen(k), nil
}

// Add creates a kitchen with a generated id. New kitchens are active unless
// the request says otherwise.
func (r *KitchenRegistry) Add(req KitchenConfigRequest) (models.KitchenConfig, error) {
	if err := validateKitchen(req); err != nil {
		return models.KitchenConfig{}, err
	}

	k := models.KitchenConfig{ID: uuid.NewString(), Active: true}
	applyKitchenRequest(&k, req)

	r.mu.Lock()
	r.kitchens[k.ID] = k
	r.mu.Unlock()

	r.logger.Info("Kitchen added", zap.String("kitchen_id", k.ID), zap.String("name", k.Name))
	r.changed()
	return cloneKitchen(k), nil
}

// Update replaces the editable fields of a kitchen
func (r *KitchenRegistry) Update(id string, req KitchenConfigRequest) (models.KitchenConfig, error) {
	if err := validateKitchen(req); err != nil {
		return models.KitchenConfig{}, err
	}

	r.mu.Lock()
	k, ok := r.kitchens[id]
	if !ok {
		r.mu.Unlock()
		return models.KitchenConfig{}, ErrKitchenNotFound
	}
	applyKitchenRequest(&k, req)
	r.kitchens[id] = k
	r.mu.Unlock()

	r.logger.Info("Kitchen updated", zap.String("kitchen_id", id))
	r.changed()
	return cloneKitchen(k), nil
}

// Delete removes a kitchen
func (r *KitchenRegistry) Delete(id string) error {
	r.mu.Lock()
	if _, ok := r.kitchens[id]; !ok {
		r.mu.Unlock()
		return ErrKitchenNotFound
	}
	delete(r.kitchens, id)
	r.mu.Unlock()

	r.logger.Info("Kitchen deleted", zap.String("kitchen_id", id))
	r.changed()
	return nil
}

// Toggle flips the active flag
func (r *KitchenRegistry) Toggle(id string) (models.KitchenConfig, error) {
	r.mu.Lock()
	k, ok := r.kitchens[id]
	if !ok {
		r.mu.Unlock()
		return models.KitchenConfig{}, ErrKitchenNotFound
	}
	k.Active = !k.Active
	r.kitchens[id] = k
	r.mu.Unlock()

	r.logger.Info("Kitchen toggled", zap.String("kitchen_id", id), zap.Bool("active", k.Active))
	r.changed()
	return cloneKitchen(k), nil
}

func (r *KitchenRegistry) changed() {
	r.mu.RLock()
	fn := r.onChange
	r.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func validateKitchen(req KitchenConfigRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidKitchen)
	}
	if req.RefreshIntervalSeconds < 0 {
		return fmt.Errorf("%w: refresh interval must not be negative", ErrInvalidKitchen)
	}
	for _, st := range req.Stations {
		if strings.TrimSpace(string(st)) == "" {
			return fmt.Errorf("%w: empty station id", ErrInvalidKitchen)
		}
	}
	return nil
}

// applyKitchenRequest copies request fields onto k. Unknown station ids are
// kept; the aggregator reports them as warnings.
func applyKitchenRequest(k *models.KitchenConfig, req KitchenConfigRequest) {
	k.Name = strings.TrimSpace(req.Name)
	k.Type = req.Type
	k.DisplayOrder = req.DisplayOrder
	k.RefreshIntervalSeconds = req.RefreshIntervalSeconds
	if req.Active != nil {
		k.Active = *req.Active
	}

	seen := make(map[models.Station]bool, len(req.Stations))
	k.Stations = make([]models.Station, 0, len(req.Stations))
	for _, st := range req.Stations {
		st = models.NormalizeStation(st)
		if !seen[st] {
			seen[st] = true
			k.Stations = append(k.Stations, st)
		}
	}
}

func cloneKitchen(k models.KitchenConfig) models.KitchenConfig {
	out := k
	out.Stations = append([]models.Station(nil), k.Stations...)
	return out
}
