package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// orderStateDoc is the on-disk shape of one persisted OrderState record.
type orderStateDoc struct {
	Status      string         `json:"status"`
	ExchangeIDs map[string]string `json:"exchange_ids"`
	Fills       []model.Fill   `json:"fills"`
	Plan        *model.TradePlan `json:"plan"`
}

// OrderStateStore owns the single JSON document keyed by plan_id, with a
// single-writer discipline: every mutation holds the same lock a read
// would need, so observers always see a consistent snapshot.
type OrderStateStore struct {
	mu   sync.Mutex
	path string
}

// NewOrderStateStore returns a store backed by path, creating its parent
// directory if needed.
func NewOrderStateStore(path string) (*OrderStateStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("orderstate: create dir: %w", err)
	}
	return &OrderStateStore{path: path}, nil
}

func (s *OrderStateStore) load() (map[string]orderStateDoc, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]orderStateDoc{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("orderstate: read: %w", err)
	}
	if len(raw) == 0 {
		return map[string]orderStateDoc{}, nil
	}
	var doc map[string]orderStateDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("orderstate: decode: %w", err)
	}
	return doc, nil
}

// save performs an atomic replace: write to a temp file in the same
// directory, then rename over the target.
func (s *OrderStateStore) save(doc map[string]orderStateDoc) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("orderstate: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("orderstate: write temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("orderstate: rename: %w", err)
	}
	return nil
}

// SaveIntent persists the initial "intent" record for a freshly minted
// plan_id.
func (s *OrderStateStore) SaveIntent(planID string, plan *model.TradePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc[planID] = orderStateDoc{
		Status:      model.StatusIntent.String(),
		ExchangeIDs: map[string]string{},
		Fills:       []model.Fill{},
		Plan:        plan,
	}
	return s.save(doc)
}

// UpdateStatus transitions a plan's status and merges in any new exchange
// ids, enforcing the monotonic status ordering.
func (s *OrderStateStore) UpdateStatus(planID string, to model.OrderStatus, exchangeIDs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	entry, ok := doc[planID]
	if !ok {
		entry = orderStateDoc{Status: model.StatusIntent.String(), ExchangeIDs: map[string]string{}}
	}
	from := parseStatus(entry.Status)
	if !model.CanTransition(from, to) {
		return model.NewError(model.ErrInvalidSetup, "illegal order status transition: "+entry.Status+" -> "+to.String())
	}
	entry.Status = to.String()
	if entry.ExchangeIDs == nil {
		entry.ExchangeIDs = map[string]string{}
	}
	for k, v := range exchangeIDs {
		entry.ExchangeIDs[k] = v
	}
	doc[planID] = entry
	return s.save(doc)
}

// AppendFill appends a fill record for planID.
func (s *OrderStateStore) AppendFill(planID string, fill model.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	entry := doc[planID]
	entry.Fills = append(entry.Fills, fill)
	doc[planID] = entry
	return s.save(doc)
}

// Get returns the current record for planID.
func (s *OrderStateStore) Get(planID string) (*model.OrderState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, false, err
	}
	entry, ok := doc[planID]
	if !ok {
		return nil, false, nil
	}
	return &model.OrderState{
		PlanID:      planID,
		Status:      parseStatus(entry.Status),
		ExchangeIDs: entry.ExchangeIDs,
		Fills:       entry.Fills,
		Plan:        entry.Plan,
	}, true, nil
}

// LoadOpenOrders returns every record whose status is not terminal.
func (s *OrderStateStore) LoadOpenOrders() ([]*model.OrderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	var open []*model.OrderState
	for planID, entry := range doc {
		status := parseStatus(entry.Status)
		if status.Terminal() {
			continue
		}
		open = append(open, &model.OrderState{
			PlanID: planID, Status: status, ExchangeIDs: entry.ExchangeIDs,
			Fills: entry.Fills, Plan: entry.Plan,
		})
	}
	return open, nil
}

func parseStatus(s string) model.OrderStatus {
	switch s {
	case "working":
		return model.StatusWorking
	case "filled":
		return model.StatusFilled
	case "rejected":
		return model.StatusRejected
	case "canceled":
		return model.StatusCanceled
	case "amended":
		return model.StatusAmended
	default:
		return model.StatusIntent
	}
}
