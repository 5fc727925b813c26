package reconnectclient

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	data map[string]string
}

func newMemStorage() *memStorage { return &memStorage{data: make(map[string]string)} }

func (s *memStorage) Load(key string) (string, bool) {
	v, ok := s.data[key]
	return v, ok
}
func (s *memStorage) Save(key, value string) { s.data[key] = value }
func (s *memStorage) Delete(key string)      { delete(s.data, key) }

func newTestManager(storage Storage) *Manager {
	return New(nil, storage, Listeners{})
}

func TestManager_PersistAndLoadSession_RoundTrips(t *testing.T) {
	storage := newMemStorage()
	m := newTestManager(storage)

	m.PersistSession(PersistedSession{SessionID: "s1", ParticipantID: "p1", SessionToken: "tok", Nickname: "nick"})
	m.PersistLastKnownQuestion("q1")

	loaded, lastQuestion, ok := m.LoadPersisted()
	require.True(t, ok)
	assert.Equal(t, "s1", loaded.SessionID)
	assert.Equal(t, "q1", lastQuestion)
}

func TestManager_LoadPersisted_MissingReturnsFalse(t *testing.T) {
	m := newTestManager(newMemStorage())
	_, _, ok := m.LoadPersisted()
	assert.False(t, ok)
}

func TestManager_LoadPersisted_ExpiredSessionIsCleared(t *testing.T) {
	storage := newMemStorage()
	m := newTestManager(storage)

	stale := PersistedSession{SessionID: "s1", Timestamp: time.Now().Add(-10 * time.Minute)}
	raw, _ := json.Marshal(stale)
	storage.Save("quizlive.session", string(raw))

	_, _, ok := m.LoadPersisted()
	assert.False(t, ok)
	_, stillThere := storage.Load("quizlive.session")
	assert.False(t, stillThere)
}

func TestManager_LoadPersisted_MalformedBlobIsCleared(t *testing.T) {
	storage := newMemStorage()
	storage.Save("quizlive.session", "not json")
	m := newTestManager(storage)

	_, _, ok := m.LoadPersisted()
	assert.False(t, ok)
}

func TestManager_NextDelay_GrowsExponentiallyUpToMax(t *testing.T) {
	m := newTestManager(newMemStorage())
	m.initialDelay = time.Second
	m.multiplier = 2.0
	m.maxDelay = 10 * time.Second

	assert.Equal(t, 1*time.Second, m.nextDelay(1))
	assert.Equal(t, 2*time.Second, m.nextDelay(2))
	assert.Equal(t, 4*time.Second, m.nextDelay(3))
	assert.Equal(t, 10*time.Second, m.nextDelay(10)) // clamped
}

func TestManager_Status_DefaultsToDisconnected(t *testing.T) {
	m := newTestManager(newMemStorage())
	assert.Equal(t, StatusDisconnected, m.Status())
}

func TestManager_SetStatus_NotifiesListener(t *testing.T) {
	var got Status
	m := New(nil, newMemStorage(), Listeners{OnStatusChange: func(s Status) { got = s }})
	m.setStatus(StatusConnected)
	assert.Equal(t, StatusConnected, got)
	assert.Equal(t, StatusConnected, m.Status())
}

func TestManager_Close_SetsStatusDisconnectedAndMarksServerClose(t *testing.T) {
	m := newTestManager(newMemStorage())
	m.setStatus(StatusConnected)
	m.Close()
	assert.Equal(t, StatusDisconnected, m.Status())
	assert.True(t, m.serverClose)
}
