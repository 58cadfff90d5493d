// Package devicestore mirrors the Base 3's LCS device table: for each
// discovered peripheral it tracks mode and address range, and computes
// the follow-up queries a CONFIG response requires (spec §4.7).
package devicestore

import (
	"sync"

	"github.com/pytrain/pytrain/internal/pdi"
)

// Device is one discovered LCS peripheral.
type Device struct {
	Type     pdi.LCSDeviceType
	TmccID   int
	Mode     int
	BaseAddr int
}

// Store is the process-wide LCS device table. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	devices map[pdi.LCSDeviceType]map[int]*Device
}

// New returns an empty device store.
func New() *Store {
	return &Store{devices: make(map[pdi.LCSDeviceType]map[int]*Device)}
}

// Register records a device's CONFIG response and returns the follow-up
// tmcc_id queries it implies (currently computed for ASC2; other device
// types return nil until their mode tables are modeled).
func (s *Store) Register(d Device) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devices[d.Type] == nil {
		s.devices[d.Type] = make(map[int]*Device)
	}
	cp := d
	s.devices[d.Type][d.TmccID] = &cp

	if d.Type == pdi.LCSASC2 {
		return pdi.ASC2FollowUpQueries(pdi.ASC2Mode(d.Mode), d.BaseAddr)
	}
	return nil
}

// Get returns the recorded device for (deviceType, tmccID), if any.
func (s *Store) Get(deviceType pdi.LCSDeviceType, tmccID int) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.devices[deviceType]
	if !ok {
		return Device{}, false
	}
	d, ok := m[tmccID]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// All returns every registered device of deviceType.
func (s *Store) All(deviceType pdi.LCSDeviceType) []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Device, 0, len(s.devices[deviceType]))
	for _, d := range s.devices[deviceType] {
		out = append(out, *d)
	}
	return out
}
