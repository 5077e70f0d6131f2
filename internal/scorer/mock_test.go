package scorer

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCompleter implements Completer for testing.
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Completion), args.Error(1)
}

func (m *MockCompleter) Model() string {
	return "mock-model"
}
