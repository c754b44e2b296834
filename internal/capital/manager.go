package capital

import (
	"fmt"
	"log"
	"math"
	"sync"

	"PatternScout/internal/model"
)

// Manager handles the deployable capital pool with concurrency safety.
// Entries reserve capital, closes release it; quantities are always a
// whole number of lots.
type Manager struct {
	mu       sync.Mutex
	state    *model.CapitalState
	filePath string
}

// NewManager creates a Manager, loading or initializing state from disk.
func NewManager(filePath string, totalCapital float64) (*Manager, error) {
	if totalCapital <= 0 {
		return nil, fmt.Errorf("total capital must be positive, got %.2f", totalCapital)
	}
	state, err := LoadState(filePath)
	if err != nil {
		return nil, err
	}

	// Initialize if fresh state
	if state.TotalCapital == 0 {
		state.TotalCapital = totalCapital
		state.Available = totalCapital
	}

	m := &Manager{state: state, filePath: filePath}
	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}

// GetState returns a copy of the current capital state.
func (m *Manager) GetState() model.CapitalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.state
}

// Quantity sizes a position at the given entry price: available
// capital divided by the cost of one lot, floored to whole lots. A
// zero return means the entry should be skipped.
func (m *Manager) Quantity(entryPrice float64, lotSize int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entryPrice <= 0 || lotSize <= 0 {
		return 0
	}
	lots := int(math.Floor(m.state.Available / (entryPrice * float64(lotSize))))
	if lots <= 0 {
		return 0
	}
	return lots * lotSize
}

// Reserve deducts the cost of an opened position from the pool.
func (m *Manager) Reserve(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Available -= amount
	if m.state.Available < 0 {
		m.state.Available = 0
	}
	if err := m.save(); err != nil {
		log.Printf("[ERROR] save capital state: %v", err)
	}
}

// Release returns the proceeds of a closed position to the pool.
func (m *Manager) Release(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Available += amount
	if err := m.save(); err != nil {
		log.Printf("[ERROR] save capital state: %v", err)
	}
}

func (m *Manager) save() error {
	return SaveState(m.filePath, m.state)
}
