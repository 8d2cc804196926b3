package provider

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dravya/backend/internal/money"
)

// Sandbox is an in-process rail for local runs without PROVIDER_BASE_URL.
// It accepts every transfer and settles it on the first status query.
// Narrations containing "FAIL" are reported failed instead.
type Sandbox struct {
	mu        sync.Mutex
	transfers map[string]*Status
	balance   money.Amount
}

func NewSandbox(balance money.Amount) *Sandbox {
	return &Sandbox{transfers: make(map[string]*Status), balance: balance}
}

var _ Provider = (*Sandbox)(nil)

func (s *Sandbox) SubmitTransfer(ctx context.Context, t Transfer) (*Acceptance, error) {
	if err := ctx.Err(); err != nil {
		return nil, unreachable("initiate", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[t.Reference]; ok {
		return &Acceptance{Accepted: false, Message: "duplicate merchant_reference_id"}, nil
	}
	if s.balance.LessThan(t.Amount) {
		return &Acceptance{Accepted: false, Message: "insufficient provider balance"}, nil
	}
	s.balance = s.balance.Sub(t.Amount)
	st := &Status{State: StateProcessing, ProviderTxnID: "SBX" + token(12)}
	if strings.Contains(strings.ToUpper(t.Narration), "FAIL") {
		st.State = StateFailed
		st.Error = "beneficiary bank declined"
	}
	s.transfers[t.Reference] = st
	return &Acceptance{Accepted: true, ProviderTxnID: st.ProviderTxnID}, nil
}

func (s *Sandbox) QueryStatus(ctx context.Context, reference string) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, unreachable("status", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.transfers[reference]
	if !ok {
		return &Status{State: StateUnknown, Error: "transaction not found"}, nil
	}
	if st.State == StateProcessing {
		st.State = StateSuccess
		st.UTR = "UTR" + token(10)
	}
	out := *st
	return &out, nil
}

func (s *Sandbox) AccountBalance(ctx context.Context) (*Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, unreachable("balance", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Balance{Balance: s.balance, Currency: "INR"}, nil
}

func token(n int) string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:n])
}
