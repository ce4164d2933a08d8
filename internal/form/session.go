package form

import (
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// Choice is a selectable option rendered by the transport. Token comes back
// through Engine.Choice.
type Choice struct {
	Token string
	Label string
}

type Link struct {
	Label string
	URL   string
}

// Reply is the outbound effect of handling one event. A reply without
// choices is a plain notice.
type Reply struct {
	Text    string
	Choices []Choice
	Link    *Link
}

type User struct {
	ID          int64
	Username    string
	DisplayName string
}

// StatusView is the read-only state shown by /settings.
type StatusView struct {
	Stage   string
	Consent *bool
}

type Session struct {
	UserID    int64
	Consent   *bool
	Answers   map[Field]string
	StartedAt time.Time

	machine *fsm.FSM
	mu      sync.Mutex
}

func newSession(userID int64, machine *fsm.FSM) *Session {
	return &Session{
		UserID:    userID,
		Answers:   make(map[Field]string),
		StartedAt: time.Now(),
		machine:   machine,
	}
}

func (s *Session) Stage() string {
	return s.machine.Current()
}

func (s *Session) idle() bool {
	return s.machine.Is(StageIdle)
}

func (s *Session) reset() {
	s.Answers = make(map[Field]string)
	s.machine.SetState(StageIdle)
}
