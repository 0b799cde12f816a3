package bot

// Conversation stages for the inventory counting flow. Branch, category,
// item and kind are picked through inline buttons; only the quantity is
// typed, so that is the single stage where free text matters.
const (
	stageIdle     = ""
	stageQuantity = "quantity"
)

type userState struct {
	stage  string
	branch string
	itemID int64
	kind   string
}

func (s *Service) state(userID int64) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID]
}

func (s *Service) setState(userID int64, st *userState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = st
}

func (s *Service) clearState(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}
