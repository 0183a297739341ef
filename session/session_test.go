package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eduassist/tutorbridge/domain"
	"github.com/stretchr/testify/require"
)

func msg(role domain.Role, content string) domain.Message {
	return domain.Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

func TestGetOrCreateAssignsUUID(t *testing.T) {
	m := NewManager()
	id, history := m.GetOrCreate("")
	require.NotEmpty(t, id)
	require.Empty(t, history)

	id2, _ := m.GetOrCreate(id)
	require.Equal(t, id, id2)
}

func TestAppendGrowsHistoryByTwoPerTurn(t *testing.T) {
	m := NewManager()
	id, _ := m.GetOrCreate("")

	for i := 0; i < 3; i++ {
		m.Append(id, msg(domain.RoleUser, "q"), msg(domain.RoleAssistant, "a"))
	}

	history, err := m.History(id)
	require.NoError(t, err)
	require.Len(t, history, 6)
}

func TestHistoryBoundedByMaxHistoryMessages(t *testing.T) {
	m := NewManager(WithMaxHistoryMessages(4))
	id, _ := m.GetOrCreate("")

	for i := 0; i < 10; i++ {
		m.Append(id, msg(domain.RoleUser, fmt.Sprintf("q%d", i)), msg(domain.RoleAssistant, fmt.Sprintf("a%d", i)))
	}

	history, err := m.History(id)
	require.NoError(t, err)
	require.Len(t, history, 4)
	require.Equal(t, "q8", history[0].Content)
}

func TestAppendUserOnlyAddsSingleMessage(t *testing.T) {
	m := NewManager()
	id, _ := m.GetOrCreate("")

	m.AppendUserOnly(id, msg(domain.RoleUser, "only this"))

	history, err := m.History(id)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestClearEmptiesHistoryWithoutDeletingSession(t *testing.T) {
	m := NewManager()
	id, _ := m.GetOrCreate("")
	m.Append(id, msg(domain.RoleUser, "q"), msg(domain.RoleAssistant, "a"))

	require.NoError(t, m.Clear(id))

	history, err := m.History(id)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestHistoryUnknownSessionReturnsNotFound(t *testing.T) {
	m := NewManager()
	_, err := m.History("does-not-exist")
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDifferentSessionsDoNotBlockEachOther(t *testing.T) {
	m := NewManager()
	idA, _ := m.GetOrCreate("")
	idB, _ := m.GetOrCreate("")

	unlockA := m.Lock(idA)
	done := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		unlockB := m.Lock(idB)
		defer unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking a different session blocked on session A's lock")
	}
	wg.Wait()
	unlockA()
}
