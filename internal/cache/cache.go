// Package cache holds the vehicles registered in the current session so
// recording handlers can associate moves and states without a DB read.
package cache

import (
	"sort"
	"sync"

	"github.com/kartsync/kartsync/pkg/core"
)

// VehicleCache caches vehicles when they are spawned.
type VehicleCache struct {
	m        sync.RWMutex
	vehicles map[string]core.VehicleInfo
}

func NewVehicleCache() *VehicleCache {
	return &VehicleCache{
		vehicles: make(map[string]core.VehicleInfo),
	}
}

func (c *VehicleCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.vehicles = make(map[string]core.VehicleInfo)
}

func (c *VehicleCache) Get(id string) (core.VehicleInfo, bool) {
	c.m.RLock()
	defer c.m.RUnlock()
	v, ok := c.vehicles[id]
	return v, ok
}

func (c *VehicleCache) Add(v core.VehicleInfo) {
	c.m.Lock()
	defer c.m.Unlock()
	c.vehicles[v.ID] = v
}

func (c *VehicleCache) Remove(id string) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.vehicles, id)
}

func (c *VehicleCache) Len() int {
	c.m.RLock()
	defer c.m.RUnlock()
	return len(c.vehicles)
}

// All returns the cached vehicles ordered by join time, then id.
func (c *VehicleCache) All() []core.VehicleInfo {
	c.m.RLock()
	out := make([]core.VehicleInfo, 0, len(c.vehicles))
	for _, v := range c.vehicles {
		out = append(out, v)
	}
	c.m.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinTime.Equal(out[j].JoinTime) {
			return out[i].JoinTime.Before(out[j].JoinTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
