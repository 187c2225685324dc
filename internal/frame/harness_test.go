package frame

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	hydra "github.com/collective/volto-hydra"
)

const (
	adminOrigin = "https://admin.example.com"
	frameOrigin = "https://frontend.example.com"
)

// adminStub stands in for the admin controller in component tests: it
// records everything the frame sends and can answer as the admin origin.
type adminStub struct {
	end *hydra.LoopbackEnd

	mu   sync.Mutex
	msgs map[hydra.MessageType][]hydra.Message
}

func newAdminStub(end *hydra.LoopbackEnd) *adminStub {
	s := &adminStub{end: end, msgs: make(map[hydra.MessageType][]hydra.Message)}
	end.SetReceiver(func(d hydra.Delivery) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.msgs[d.Message.Type] = append(s.msgs[d.Message.Type], d.Message)
	})
	return s
}

func (s *adminStub) send(t *testing.T, typ hydra.MessageType, payload any) {
	t.Helper()
	m, err := hydra.NewMessage(typ, payload)
	require.NoError(t, err)
	require.NoError(t, s.end.Send(m))
}

func (s *adminStub) count(typ hydra.MessageType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs[typ])
}

func (s *adminStub) last(typ hydra.MessageType) (hydra.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.msgs[typ]
	if len(ms) == 0 {
		return hydra.Message{}, false
	}
	return ms[len(ms)-1], true
}

func (s *adminStub) all(typ hydra.MessageType) []hydra.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]hydra.Message, len(s.msgs[typ]))
	copy(out, s.msgs[typ])
	return out
}

// newFrameRouter builds a loopback with the frame router on one end and an
// admin stub on the other.
func newFrameRouter(t *testing.T) (*hydra.Router, *adminStub, *hydra.Loopback) {
	t.Helper()
	lb := hydra.NewLoopback(adminOrigin, frameOrigin)
	t.Cleanup(lb.Close)
	router := hydra.NewRouter(lb.B, adminOrigin, false)
	router.Start()
	stub := newAdminStub(lb.A)
	return router, stub, lb
}

func richRef(uid, field string) hydra.EditableField {
	return hydra.EditableField{BlockUID: uid, Field: field, Kind: hydra.FieldRichText}
}

func plainRef(uid, field string) hydra.EditableField {
	return hydra.EditableField{BlockUID: uid, Field: field, Kind: hydra.FieldPlainText}
}
