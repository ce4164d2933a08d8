// Package form runs the per-user question flow that turns a chat into a lead.
//
// The engine is transport agnostic: it consumes start/choice/text events for
// a user and returns the Reply to show. Invalid input never advances a
// session. Errors returned by the engine are internal (storage, impossible
// state) and are meant to be logged and answered with a generic apology.
package form

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"leadform-bot/internal/events"
	"leadform-bot/internal/metrics"
	"leadform-bot/internal/models"
	"leadform-bot/pkg/logger"
)

var ErrUnknownStage = errors.New("unknown conversation stage")

const (
	msgUnknownAction  = "Неизвестное действие. Используйте /start."
	msgChooseOption   = "Пожалуйста, выберите один из вариантов."
	msgUseStart       = "Чтобы начать, используйте /start."
	msgFeedbackThanks = "Спасибо! Мы учтём ваше мнение."
	msgCancelled      = "Ок, прервали. /start — начать заново."
)

type LeadSaver interface {
	Add(in models.NewLead) (int64, error)
}

// DefaultNotifyTimeout bounds a single Notifier call.
const DefaultNotifyTimeout = 30 * time.Second

// Notifier is told about every persisted lead, e.g. to email the course link.
// It runs in the background and must honor ctx.
type Notifier interface {
	LeadSubmitted(ctx context.Context, lead models.Lead) error
}

type Engine struct {
	flow     Flow
	leads    LeadSaver
	recorder events.Recorder
	notifier Notifier
	log      *zap.Logger

	notifyTimeout time.Duration
	pending       sync.WaitGroup

	mu       sync.Mutex
	sessions map[int64]*Session
}

type EngineOption func(*Engine)

func WithRecorder(r events.Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

func WithNotifyTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.notifyTimeout = d }
}

func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

func New(flow Flow, leads LeadSaver, opts ...EngineOption) (*Engine, error) {
	if err := flow.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow %q: %w", flow.Name, err)
	}
	if leads == nil {
		return nil, errors.New("lead saver is required")
	}

	e := &Engine{
		flow:          flow,
		leads:         leads,
		recorder:      events.Nop{},
		log:           zap.NewNop(),
		notifyTimeout: DefaultNotifyTimeout,
		sessions:      make(map[int64]*Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Flow() Flow {
	return e.flow
}

// Start (re)initializes the user's session at the first step. Unsaved
// answers from a previous session are dropped.
func (e *Engine) Start(ctx context.Context, user User) (Reply, error) {
	sess := newSession(user.ID, e.flow.newMachine())

	e.mu.Lock()
	e.sessions[user.ID] = sess
	e.mu.Unlock()

	metrics.RecordConversationStart()
	e.audit(ctx, user.ID, "start", nil)

	first := e.flow.Steps[0]
	return Reply{
		Text:    e.flow.Greeting + "\n\n" + first.Prompt,
		Choices: first.choices(),
		Link:    e.flow.SiteLink,
	}, nil
}

func (e *Engine) Choice(ctx context.Context, user User, token string) (Reply, error) {
	sess := e.session(user.ID)
	if sess == nil {
		return Reply{Text: msgUnknownAction}, nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.idle() {
		return Reply{Text: msgUnknownAction}, nil
	}

	step, err := e.currentStep(sess)
	if err != nil {
		return Reply{}, err
	}

	opt, ok := step.option(token)
	if !ok {
		e.log.Debug("Unrecognized choice token",
			zap.Int64(logger.FieldUserID, user.ID),
			zap.String(logger.FieldStage, sess.Stage()),
			zap.String("token", token))
		return Reply{Text: msgUnknownAction}, nil
	}
	return e.applyOption(ctx, user, sess, step, opt)
}

// Text handles free text. A pending step always takes the text as its
// answer; only a user with nothing pending can leave feedback.
func (e *Engine) Text(ctx context.Context, user User, raw string) (Reply, error) {
	sess := e.session(user.ID)
	if sess == nil {
		return e.feedback(ctx, user, raw)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.idle() {
		return e.feedback(ctx, user, raw)
	}

	step, err := e.currentStep(sess)
	if err != nil {
		return Reply{}, err
	}

	if step.IsChoice() {
		if opt, ok := step.optionByLabel(raw); ok {
			return e.applyOption(ctx, user, sess, step, opt)
		}
		metrics.RecordValidationFailure(step.Key)
		return Reply{Text: msgChooseOption + "\n\n" + step.Prompt, Choices: step.choices()}, nil
	}

	value, err := step.Validate(step.Field, raw)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			metrics.RecordValidationFailure(step.Key)
			return Reply{Text: ve.Message}, nil
		}
		return Reply{}, fmt.Errorf("failed to validate %s: %w", step.Key, err)
	}

	sess.Answers[step.Field] = value
	return e.advance(ctx, user, sess, step)
}

// Cancel drops any unsaved answers and leaves the user idle.
func (e *Engine) Cancel(ctx context.Context, user User) Reply {
	if sess := e.session(user.ID); sess != nil {
		sess.mu.Lock()
		if !sess.idle() {
			sess.reset()
			e.audit(ctx, user.ID, "cancel", nil)
		}
		sess.mu.Unlock()
	}
	return Reply{Text: msgCancelled}
}

func (e *Engine) Status(userID int64) StatusView {
	sess := e.session(userID)
	if sess == nil {
		return StatusView{Stage: StageIdle}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	view := StatusView{Stage: sess.Stage()}
	if sess.Consent != nil {
		c := *sess.Consent
		view.Consent = &c
	}
	return view
}

func (e *Engine) session(userID int64) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[userID]
}

func (e *Engine) currentStep(sess *Session) (Step, error) {
	step, _, ok := e.flow.step(sess.Stage())
	if !ok {
		return Step{}, fmt.Errorf("%w: %q", ErrUnknownStage, sess.Stage())
	}
	return step, nil
}

func (e *Engine) applyOption(ctx context.Context, user User, sess *Session, step Step, opt Option) (Reply, error) {
	if step.Field == FieldConsent {
		consent := !opt.Declines
		sess.Consent = &consent
		metrics.RecordConsent(opt.Value)
		e.audit(ctx, user.ID, "consent_"+opt.Value, nil)
	}

	if opt.Declines {
		if err := sess.machine.Event(ctx, eventDecline); err != nil {
			return Reply{}, fmt.Errorf("failed to decline at %s: %w", step.Key, err)
		}
		sess.Answers = make(map[Field]string)
		return Reply{Text: e.flow.Declined, Link: e.flow.SiteLink}, nil
	}

	sess.Answers[step.Field] = opt.Value
	return e.advance(ctx, user, sess, step)
}

func (e *Engine) advance(ctx context.Context, user User, sess *Session, step Step) (Reply, error) {
	_, idx, _ := e.flow.step(sess.Stage())
	if idx == len(e.flow.Steps)-1 {
		return e.complete(ctx, user, sess, step)
	}

	if err := sess.machine.Event(ctx, eventAdvance); err != nil {
		return Reply{}, fmt.Errorf("failed to advance from %s: %w", step.Key, err)
	}
	if step.Field != FieldConsent {
		e.audit(ctx, user.ID, step.Key+"_ok", nil)
	}

	next, err := e.currentStep(sess)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: next.Prompt, Choices: next.choices()}, nil
}

// complete persists the lead before leaving the last step, so a storage
// failure keeps the user on that step and the answer can be resent.
func (e *Engine) complete(ctx context.Context, user User, sess *Session, step Step) (Reply, error) {
	in := models.NewLead{
		FIO:      sess.Answers[FieldFIO],
		Email:    sess.Answers[FieldEmail],
		Gender:   sess.Answers[FieldGender],
		UserID:   user.ID,
		Username: user.Username,
		Topic:    sess.Answers[FieldTopic],
		Details:  sess.Answers[FieldDetails],
	}
	if in.FIO == "" {
		in.FIO = user.DisplayName
	}

	id, err := e.leads.Add(in)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to save lead: %w", err)
	}

	if err := sess.machine.Event(ctx, eventAdvance); err != nil {
		return Reply{}, fmt.Errorf("failed to finish after lead %d: %w", id, err)
	}

	metrics.RecordLeadSubmitted()
	e.log.Info("Lead submitted",
		zap.Int64(logger.FieldLeadID, id),
		zap.Int64(logger.FieldUserID, user.ID),
		zap.String("flow", e.flow.Name))

	e.audit(ctx, user.ID, step.Key+"_ok", nil)
	e.record(ctx, events.New(models.EventTypeLead, user.ID, "", leadPayload(id, in)))

	if e.notifier != nil {
		e.notify(ctx, models.Lead{
			ID:       id,
			FIO:      in.FIO,
			Email:    in.Email,
			Gender:   in.Gender,
			Status:   models.StatusNew,
			UserID:   in.UserID,
			Username: in.Username,
			Topic:    in.Topic,
			Details:  in.Details,
		})
	}

	return Reply{Text: e.flow.Success(id), Link: e.flow.SuccessLink}, nil
}

// notify hands the lead to the notifier without holding up the update loop.
// The call outlives the update but not notifyTimeout.
func (e *Engine) notify(ctx context.Context, lead models.Lead) {
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()

		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.notifyTimeout)
		defer cancel()

		if err := e.notifier.LeadSubmitted(nctx, lead); err != nil {
			e.log.Warn("Failed to notify about lead", zap.Int64(logger.FieldLeadID, lead.ID), zap.Error(err))
		}
	}()
}

// Wait blocks until background notifications have finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

func (e *Engine) feedback(ctx context.Context, user User, raw string) (Reply, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Reply{Text: msgUseStart}, nil
	}

	ev := events.New(models.EventTypeFeedback, user.ID, "", map[string]string{"text": text})
	if err := e.recorder.Record(ctx, ev); err != nil {
		return Reply{}, fmt.Errorf("failed to record feedback: %w", err)
	}
	metrics.RecordFeedback()
	return Reply{Text: msgFeedbackThanks}, nil
}

// audit records a lifecycle event. These are best effort.
func (e *Engine) audit(ctx context.Context, userID int64, stage string, payload map[string]string) {
	e.record(ctx, events.New(models.EventTypeEvent, userID, stage, payload))
}

func (e *Engine) record(ctx context.Context, ev models.Event) {
	if err := e.recorder.Record(ctx, ev); err != nil {
		e.log.Warn("Failed to record event",
			zap.String("type", string(ev.Type)),
			zap.String(logger.FieldStage, ev.Stage),
			zap.Int64(logger.FieldUserID, ev.UserID),
			zap.Error(err))
	}
}

func leadPayload(id int64, in models.NewLead) map[string]string {
	return map[string]string{
		"lead_id": fmt.Sprint(id),
		"fio":     in.FIO,
		"email":   in.Email,
		"gender":  in.Gender,
		"topic":   in.Topic,
		"details": in.Details,
	}
}
