package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ventalink/lead-voice-service/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return st
}

func TestGetCreatesDefaultRecord(t *testing.T) {
	st := newTestStore(t)

	rec := st.Get("+573000000001")

	assert.Equal(t, domain.StageInitial, rec.Stage)
	assert.Equal(t, domain.CallStatusPending, rec.CallStatus)
	assert.Empty(t, rec.Transcript)
	assert.False(t, rec.Greeting.Ready)
	assert.False(t, rec.Greeting.GenerationStarted)
}

func TestNormalizeLeadID(t *testing.T) {
	assert.Equal(t, "573000000001", NormalizeLeadID("+57 300 000 0001"))
	assert.Equal(t, "573000000001", NormalizeLeadID("573000000001"))
	assert.Equal(t, "14155550100", NormalizeLeadID("+1 (415) 555-0100"))
	assert.Equal(t, "unknown", NormalizeLeadID(""))
	assert.Equal(t, "unknown", NormalizeLeadID("anonymous"))
}

func TestLeadIDVariantsShareOneRecord(t *testing.T) {
	st := newTestStore(t)

	st.Update("+573000000001", func(r *domain.ConversationRecord) {
		r.LeadName = "Ana Test"
	})

	rec := st.Get("57 300 000 0001")
	assert.Equal(t, "Ana Test", rec.LeadName)
}

func TestGreetingReadyLatchesOnce(t *testing.T) {
	st := newTestStore(t)
	lead := "+573000000001"

	st.MarkGreetingReady(lead, "/tmp/a.wav", "http://example.com/audio/a.wav", false)
	st.MarkGreetingReady(lead, "/tmp/b.wav", "http://example.com/audio/b.wav", true)

	rec := st.Get(lead)
	assert.True(t, rec.Greeting.Ready)
	assert.Equal(t, "http://example.com/audio/a.wav", rec.Greeting.PublicURL)
	assert.False(t, rec.Greeting.UsedFallback)
}

func TestGreetingFallbackUpgradedByRealArtifact(t *testing.T) {
	st := newTestStore(t)
	lead := "+573000000001"

	st.MarkGreetingReady(lead, "", "", true)
	st.MarkGreetingReady(lead, "/tmp/b.wav", "http://example.com/audio/b.wav", false)

	rec := st.Get(lead)
	assert.True(t, rec.Greeting.Ready)
	assert.False(t, rec.Greeting.UsedFallback)
	assert.Equal(t, "http://example.com/audio/b.wav", rec.Greeting.PublicURL)

	// A later fallback never downgrades the real artifact.
	st.MarkGreetingReady(lead, "", "", true)
	assert.False(t, st.Get(lead).Greeting.UsedFallback)
}

func TestGreetingReadyNeverReverts(t *testing.T) {
	st := newTestStore(t)
	lead := "+573000000001"

	st.MarkGreetingReady(lead, "/tmp/a.wav", "http://example.com/audio/a.wav", false)
	st.Update(lead, func(r *domain.ConversationRecord) {
		r.Greeting.Ready = false
	})

	assert.True(t, st.Get(lead).Greeting.Ready)
}

func TestWaitGreetingReady(t *testing.T) {
	st := newTestStore(t)
	lead := "+573000000001"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.False(t, st.WaitGreetingReady(ctx, lead), "wait must time out before readiness")

	go func() {
		time.Sleep(10 * time.Millisecond)
		st.MarkGreetingReady(lead, "/tmp/a.wav", "http://example.com/audio/a.wav", false)
	}()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	assert.True(t, st.WaitGreetingReady(ctx2, lead))

	// Already-ready leads resolve immediately.
	ctx3, cancel3 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel3()
	assert.True(t, st.WaitGreetingReady(ctx3, lead))
}

func TestWaitGreetingReadySafeAcrossReschedules(t *testing.T) {
	st := newTestStore(t)
	lead := "+573000000001"

	// A reschedule swaps the readiness channel while a call-start handler may
	// still be waiting on it; neither side may corrupt the other.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
			st.WaitGreetingReady(ctx, lead)
			cancel()
		}
	}()

	for i := 0; i < 50; i++ {
		st.MarkGreetingReady(lead, "/tmp/a.wav", "http://example.com/audio/a.wav", false)
		st.ResetForCall(lead, "Ana Test")
	}
	<-done

	st.MarkGreetingReady(lead, "/tmp/a.wav", "http://example.com/audio/a.wav", false)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, st.WaitGreetingReady(ctx, lead))
}

func TestTranscriptOrder(t *testing.T) {
	st := newTestStore(t)
	lead := "+573000000001"

	st.AppendTranscript(lead, domain.MessageRoleUser, "hola")
	st.AppendTranscript(lead, domain.MessageRoleAssistant, "hola, soy Ana")

	rec := st.Get(lead)
	require.Len(t, rec.Transcript, 2)
	assert.Equal(t, domain.MessageRoleUser, rec.Transcript[0].Role)
	assert.Equal(t, "hola", rec.Transcript[0].Text)
	assert.Equal(t, domain.MessageRoleAssistant, rec.Transcript[1].Role)
	assert.Equal(t, "hola, soy Ana", rec.Transcript[1].Text)
}

func TestTranscriptConcurrentAppendsLoseNothing(t *testing.T) {
	st := newTestStore(t)
	lead := "+573000000001"

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				st.AppendTranscript(lead, domain.MessageRoleUser, fmt.Sprintf("w%d-%d", id, j))
			}
		}(i)
	}
	wg.Wait()

	rec := st.Get(lead)
	assert.Len(t, rec.Transcript, writers*perWriter)
}

func TestAdvanceStageMonotonic(t *testing.T) {
	st := newTestStore(t)
	lead := "+573000000001"

	st.AdvanceStage(lead, domain.StageCallCompleted)
	st.AdvanceStage(lead, domain.StageCallInProgress)

	assert.Equal(t, domain.StageCallCompleted, st.Get(lead).Stage)

	st.AdvanceStage(lead, domain.StageReadyForHuman)
	assert.Equal(t, domain.StageReadyForHuman, st.Get(lead).Stage)
}

func TestResetForCall(t *testing.T) {
	st := newTestStore(t)
	lead := "+573000000001"

	st.AppendTranscript(lead, domain.MessageRoleUser, "hola")
	st.MarkGreetingReady(lead, "/tmp/a.wav", "http://example.com/audio/a.wav", false)
	st.SaveAnalysis(lead, domain.DefaultAnalysis())

	rec := st.ResetForCall(lead, "Ana Test")

	assert.Equal(t, "Ana Test", rec.LeadName)
	assert.Equal(t, domain.StageCallInProgress, rec.Stage)
	assert.Equal(t, domain.CallStatusInProgress, rec.CallStatus)
	assert.True(t, rec.Greeting.GenerationStarted)
	assert.False(t, rec.Greeting.Ready)
	assert.Empty(t, rec.Transcript)
	assert.Nil(t, rec.Analysis)

	// The previous attempt's readiness must not leak into the new one.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.False(t, st.WaitGreetingReady(ctx, lead))

	st.MarkGreetingReady(lead, "/tmp/b.wav", "http://example.com/audio/b.wav", false)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	assert.True(t, st.WaitGreetingReady(ctx2, lead))
}

func TestRecordSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	st1, err := NewStore(dir)
	require.NoError(t, err)
	st1.Update("+573000000001", func(r *domain.ConversationRecord) {
		r.LeadName = "Ana Test"
		r.Stage = domain.StageCallCompleted
	})
	st1.AppendTranscript("+573000000001", domain.MessageRoleUser, "hola")

	st2, err := NewStore(dir)
	require.NoError(t, err)
	rec := st2.Get("573000000001")

	assert.Equal(t, "Ana Test", rec.LeadName)
	assert.Equal(t, domain.StageCallCompleted, rec.Stage)
	require.Len(t, rec.Transcript, 1)
	assert.Equal(t, "hola", rec.Transcript[0].Text)
}
