package sim

import (
	"math/rand"
	"sort"

	"github.com/pthm-cable/brawl/components"
	"github.com/pthm-cable/brawl/config"
	"github.com/pthm-cable/brawl/systems"
)

// FoodID identifies a food item.
type FoodID uint32

type foodItem struct {
	ID    FoodID
	Pos   components.Position
	Age   float64
	Value float64
}

// foodField holds the food items of the arena, ordered by id, plus a spatial
// index over them.
type foodField struct {
	cfg      config.ForagingConfig
	items    []foodItem
	index    *systems.SpatialIndex[FoodID]
	nextID   FoodID
	spawnAcc float64
}

func newFoodField(cfg config.ForagingConfig, width, height, cellSize float64) *foodField {
	return &foodField{
		cfg:    cfg,
		index:  systems.NewSpatialIndex[FoodID](width, height, cellSize),
		nextID: 1,
	}
}

// Len returns the number of food items.
func (f *foodField) Len() int {
	return len(f.items)
}

func (f *foodField) spawn(pos components.Position) FoodID {
	id := f.nextID
	f.nextID++
	f.items = append(f.items, foodItem{ID: id, Pos: pos, Value: f.cfg.FoodValue})
	f.index.Insert(id, pos)
	return id
}

// seed places the initial food.
func (f *foodField) seed(env *systems.Environment, rng *rand.Rand) {
	for i := 0; i < f.cfg.InitialFood && f.Len() < f.maxFood(); i++ {
		f.spawn(env.SampleFertile(rng))
	}
}

func (f *foodField) maxFood() int {
	if f.cfg.MaxFood <= 0 {
		return f.cfg.InitialFood
	}
	return f.cfg.MaxFood
}

// step ages food, drops expired items and spawns new ones at the configured
// rate. Returns the number of items that expired.
func (f *foodField) step(dt float64, env *systems.Environment, rng *rand.Rand) int {
	expired := 0
	if f.cfg.FoodLifetime > 0 {
		kept := f.items[:0]
		for _, it := range f.items {
			it.Age += dt
			if it.Age >= f.cfg.FoodLifetime {
				f.index.Remove(it.ID)
				expired++
				continue
			}
			kept = append(kept, it)
		}
		f.items = kept
	}

	if f.cfg.SpawnRate > 0 {
		f.spawnAcc += f.cfg.SpawnRate * dt
		for f.spawnAcc >= 1 {
			f.spawnAcc--
			if f.Len() >= f.maxFood() {
				continue
			}
			f.spawn(env.SampleFertile(rng))
		}
	}
	return expired
}

// nearest returns the closest food within maxDistance.
func (f *foodField) nearest(pos components.Position, maxDistance float64) (FoodID, components.Position, bool) {
	id, _, ok := f.index.QueryNearest(pos, maxDistance)
	if !ok {
		return 0, components.Position{}, false
	}
	p, _ := f.index.Position(id)
	return id, p, true
}

// take removes the item and returns its value.
func (f *foodField) take(id FoodID) (float64, bool) {
	i := sort.Search(len(f.items), func(i int) bool { return f.items[i].ID >= id })
	if i == len(f.items) || f.items[i].ID != id {
		return 0, false
	}
	value := f.items[i].Value
	f.items = append(f.items[:i], f.items[i+1:]...)
	f.index.Remove(id)
	return value, true
}
