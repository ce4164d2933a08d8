package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversationsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "form_conversations_started_total",
			Help: "Total number of conversations started or restarted",
		},
	)

	consentAnswers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_consent_answers_total",
			Help: "Consent answers by outcome",
		},
		[]string{"answer"},
	)

	validationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "form_validation_failures_total",
			Help: "Rejected answers by step",
		},
		[]string{"step"},
	)

	leadsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leads_submitted_total",
			Help: "Total number of leads persisted",
		},
	)

	feedbackReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_received_total",
			Help: "Total number of feedback messages captured",
		},
	)

	adminCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_commands_total",
			Help: "Admin commands by command and result",
		},
		[]string{"command", "result"},
	)

	handlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handler_errors_total",
			Help: "Internal errors surfaced to users as an apology",
		},
		[]string{"kind"},
	)
)

func RecordConversationStart() {
	conversationsStarted.Inc()
}

func RecordConsent(answer string) {
	consentAnswers.WithLabelValues(answer).Inc()
}

func RecordValidationFailure(step string) {
	validationFailures.WithLabelValues(step).Inc()
}

func RecordLeadSubmitted() {
	leadsSubmitted.Inc()
}

func RecordFeedback() {
	feedbackReceived.Inc()
}

func RecordAdminCommand(command, result string) {
	adminCommands.WithLabelValues(command, result).Inc()
}

func RecordHandlerError(kind string) {
	handlerErrors.WithLabelValues(kind).Inc()
}
