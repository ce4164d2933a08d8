package form

import (
	"errors"
	"fmt"
	"strings"

	"github.com/looplab/fsm"

	"leadform-bot/internal/models"
)

// Field is the lead attribute a step fills in.
type Field string

const (
	FieldConsent Field = "consent"
	FieldFIO     Field = "fio"
	FieldEmail   Field = "email"
	FieldGender  Field = "gender"
	FieldTopic   Field = "topic"
	FieldDetails Field = "details"
)

const (
	StageIdle = "idle"

	eventAdvance = "advance"
	eventDecline = "decline"
)

// StageFor is the state name of the step with the given key.
func StageFor(key string) string {
	return "awaiting_" + key
}

type ValidationError struct {
	Field   Field
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator turns raw user text into the stored value or returns a
// *ValidationError whose message is shown to the user.
type Validator func(field Field, raw string) (string, error)

// RequireText accepts any non-blank text, trimmed.
func RequireText(message string) Validator {
	return func(field Field, raw string) (string, error) {
		v := strings.TrimSpace(raw)
		if v == "" {
			return "", &ValidationError{Field: field, Message: message}
		}
		return v, nil
	}
}

// Email accepts text matching local-part@domain.tld after trimming.
func Email(message string) Validator {
	return func(field Field, raw string) (string, error) {
		v := strings.TrimSpace(raw)
		if !models.IsValidEmail(v) {
			return "", &ValidationError{Field: field, Message: message}
		}
		return v, nil
	}
}

type Option struct {
	Token string
	Label string
	Value string
	// Declines ends the conversation without collecting anything else.
	Declines bool
}

type Step struct {
	Key      string
	Field    Field
	Prompt   string
	Options  []Option
	Validate Validator
}

func (s Step) IsChoice() bool {
	return len(s.Options) > 0
}

func (s Step) option(token string) (Option, bool) {
	for _, o := range s.Options {
		if o.Token == token {
			return o, true
		}
	}
	return Option{}, false
}

func (s Step) optionByLabel(text string) (Option, bool) {
	text = strings.TrimSpace(text)
	for _, o := range s.Options {
		if strings.EqualFold(o.Label, text) {
			return o, true
		}
	}
	return Option{}, false
}

func (s Step) declinable() bool {
	for _, o := range s.Options {
		if o.Declines {
			return true
		}
	}
	return false
}

func (s Step) choices() []Choice {
	out := make([]Choice, 0, len(s.Options))
	for _, o := range s.Options {
		out = append(out, Choice{Token: o.Token, Label: o.Label})
	}
	return out
}

// Flow is an ordered question sequence plus the texts around it.
type Flow struct {
	Name     string
	Greeting string
	Steps    []Step

	// SiteLink is attached to the greeting and to the decline notice.
	SiteLink *Link
	Declined string

	Success     func(leadID int64) string
	SuccessLink *Link
}

func (f Flow) Validate() error {
	if len(f.Steps) == 0 {
		return errors.New("flow has no steps")
	}
	if f.Success == nil {
		return errors.New("flow has no success message")
	}

	keys := make(map[string]bool)
	tokens := make(map[string]bool)
	hasEmail := false
	for i, st := range f.Steps {
		if st.Key == "" {
			return fmt.Errorf("step %d has no key", i)
		}
		if keys[st.Key] {
			return fmt.Errorf("duplicate step key %q", st.Key)
		}
		keys[st.Key] = true

		if st.Field == FieldEmail {
			hasEmail = true
		}
		if !st.IsChoice() && st.Validate == nil {
			return fmt.Errorf("text step %q has no validator", st.Key)
		}
		for _, o := range st.Options {
			if tokens[o.Token] {
				return fmt.Errorf("duplicate option token %q", o.Token)
			}
			tokens[o.Token] = true
			if o.Declines && st.Field != FieldConsent {
				return fmt.Errorf("step %q: only the consent step may decline", st.Key)
			}
		}
	}
	if !hasEmail {
		return errors.New("flow does not collect an email")
	}
	return nil
}

func (f Flow) step(stage string) (Step, int, bool) {
	for i, st := range f.Steps {
		if StageFor(st.Key) == stage {
			return st, i, true
		}
	}
	return Step{}, -1, false
}

func (f Flow) newMachine() *fsm.FSM {
	var evs fsm.Events
	for i, st := range f.Steps {
		dst := StageIdle
		if i+1 < len(f.Steps) {
			dst = StageFor(f.Steps[i+1].Key)
		}
		evs = append(evs, fsm.EventDesc{Name: eventAdvance, Src: []string{StageFor(st.Key)}, Dst: dst})
		if st.declinable() {
			evs = append(evs, fsm.EventDesc{Name: eventDecline, Src: []string{StageFor(st.Key)}, Dst: StageIdle})
		}
	}
	return fsm.NewFSM(StageFor(f.Steps[0].Key), evs, fsm.Callbacks{})
}
