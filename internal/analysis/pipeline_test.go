package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kalambet/doomclock/internal/agent"
	"github.com/kalambet/doomclock/internal/session"
	"github.com/kalambet/doomclock/internal/storage"
)

type agentFunc func(ctx context.Context, prompt string) (string, error)

func (f agentFunc) Invoke(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

func respond(text string) agent.Client {
	return agentFunc(func(context.Context, string) (string, error) { return text, nil })
}

var kim = Profile{Name: "Kim", Role: "Developer", Strengths: "analysis", Hobbies: "gaming"}

type fixture struct {
	store   *storage.Store
	machine *session.Machine
}

func newFixture(t *testing.T, sessionID string) fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := session.NewMachine(store, zaptest.NewLogger(t))
	require.NoError(t, m.Start(context.Background(), storage.Session{
		ID: sessionID, Name: kim.Name, Role: kim.Role, Strengths: kim.Strengths, Hobbies: kim.Hobbies,
	}))
	return fixture{store: store, machine: m}
}

func (f fixture) run(t *testing.T, client agent.Client, results ResultWriter, sessionID string) storage.Session {
	t.Helper()
	if results == nil {
		results = f.store
	}
	NewPipeline(client, results, f.machine, zaptest.NewLogger(t)).Run(context.Background(), sessionID, kim)

	s, err := f.store.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	return s
}

func TestRun_CompletesKim(t *testing.T) {
	f := newFixture(t, "kim")
	var prompt string
	client := agentFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```json\n" + kimDocument + "\n```", nil
	})

	s := f.run(t, client, nil, "kim")
	assert.Contains(t, prompt, "Name: Kim")

	assert.Equal(t, storage.StatusCompleted, s.Status)
	require.NotNil(t, s.Horizon)
	assert.Equal(t, 5.0, *s.Horizon)

	risks, err := f.store.ListSkillRisks(context.Background(), "kim")
	require.NoError(t, err)
	assert.Len(t, risks, 3)

	cards, err := f.store.ListCareerCards(context.Background(), "kim")
	require.NoError(t, err)
	require.Len(t, cards, 3)
	for i, c := range cards {
		assert.Equal(t, i, c.CardIndex)
	}

	out, err := f.machine.Read(context.Background(), "kim")
	require.NoError(t, err)
	assert.Len(t, out.SkillRisks, 3)
	assert.Len(t, out.CareerCards, 3)
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name       string
		client     agent.Client
		wantReason string
	}{
		{
			name:       "unparsable",
			client:     respond("The future is bright, no JSON today."),
			wantReason: ReasonMalformedResult,
		},
		{
			name:       "no cards",
			client:     respond(`{"horizon": 3, "skill_risks": [{"skill_name": "x", "probability": 5, "time_horizon": 1}]}`),
			wantReason: ReasonMalformedResult,
		},
		{
			name: "agent error",
			client: agentFunc(func(context.Context, string) (string, error) {
				return "", fmt.Errorf("invoke: %w", agent.ErrAgent)
			}),
			wantReason: ReasonAgent,
		},
		{
			name: "panic",
			client: agentFunc(func(context.Context, string) (string, error) {
				panic("nil map somewhere")
			}),
			wantReason: ReasonInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "s1")
			s := f.run(t, tt.client, nil, "s1")

			assert.Equal(t, storage.StatusError, s.Status)
			assert.Equal(t, tt.wantReason, s.ErrorReason)
			assert.Nil(t, s.Horizon)

			out, err := f.machine.Read(context.Background(), "s1")
			require.NoError(t, err)
			assert.Empty(t, out.SkillRisks)
			assert.Empty(t, out.CareerCards)
		})
	}
}

type flakyWriter struct {
	*storage.Store
}

func (flakyWriter) PutCareerCard(context.Context, storage.CareerCard) error {
	return fmt.Errorf("put: %w: %w", storage.ErrStore, errors.New("throttled"))
}

func TestRun_PersistFailureLeavesNoCompletion(t *testing.T) {
	f := newFixture(t, "s1")
	s := f.run(t, respond(kimDocument), flakyWriter{f.store}, "s1")

	assert.Equal(t, storage.StatusError, s.Status)
	assert.Equal(t, ReasonStore, s.ErrorReason)
}

func TestRun_CancelledContextStillRecordsError(t *testing.T) {
	f := newFixture(t, "s1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := agentFunc(func(ctx context.Context, _ string) (string, error) {
		return "", ctx.Err()
	})
	NewPipeline(client, f.store, f.machine, nil).Run(ctx, "s1", kim)

	s, err := f.store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusError, s.Status)
	assert.Equal(t, ReasonInternal, s.ErrorReason)
}

func TestRun_AlreadyTerminalIsNotOverwritten(t *testing.T) {
	f := newFixture(t, "s1")
	f.machine.Fail(context.Background(), "s1", "expired")

	s := f.run(t, respond(kimDocument), nil, "s1")
	assert.Equal(t, storage.StatusError, s.Status)
	assert.Equal(t, "expired", s.ErrorReason)
}
