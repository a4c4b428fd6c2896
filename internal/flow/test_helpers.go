package flow

import (
	"context"
	"sync"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

// MockLanguageModel records requests and returns a fixed reply. With Block set
// it waits for the context to end, which exercises collaborator timeouts.
type MockLanguageModel struct {
	mu       sync.Mutex
	Reply    string
	Err      error
	Block    bool
	Requests []models.RespondRequest
}

func (m *MockLanguageModel) Respond(ctx context.Context, req models.RespondRequest) (string, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	reply, err, block := m.Reply, m.Err, m.Block
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply, err
}

// Calls returns how many requests were made.
func (m *MockLanguageModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// MockPlanGenerator returns queued results in order; the last one repeats.
// Without results it returns SamplePlan.
type MockPlanGenerator struct {
	mu       sync.Mutex
	Results  []models.PlanResult
	Err      error
	Requests []string
}

func (m *MockPlanGenerator) GeneratePlan(ctx context.Context, request, userID, sessionID string) (models.PlanResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, request)
	if m.Err != nil {
		return models.PlanResult{}, m.Err
	}
	if len(m.Results) == 0 {
		return models.PlanResult{Type: models.PlanResultPlan, Plan: SamplePlan()}, nil
	}
	res := m.Results[0]
	if len(m.Results) > 1 {
		m.Results = m.Results[1:]
	}
	return res, nil
}

// SamplePlan is a minimal valid plan.
func SamplePlan() *models.WorkoutPlan {
	return &models.WorkoutPlan{
		Name:            "Total Body Base",
		WorkoutType:     models.WorkoutStrength,
		DurationMinutes: 30,
		Exercises: []models.Exercise{
			{Name: "Glute Bridge", Sets: 3, Reps: "15", RestSeconds: 45},
			{Name: "Bird Dog", Sets: 3, Reps: "10", RestSeconds: 45},
		},
	}
}
