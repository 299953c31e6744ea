package domain

import "time"

// Outcome is how a single turn was resolved.
type Outcome string

const (
	OutcomeEscalated        Outcome = "escalated"
	OutcomeOffTopic         Outcome = "off_topic"
	OutcomeIntentMatched    Outcome = "intent_matched"
	OutcomeFallbackAnswered Outcome = "fallback_answered"
)

// Turn is a single processed user message and the reply it produced.
type Turn struct {
	UserInput           string    `json:"user_input"`
	Language            string    `json:"language,omitempty"`
	Translated          string    `json:"translated_input"`
	Outcome             Outcome   `json:"outcome"`
	Response            string    `json:"response"`
	UsedExternalService bool      `json:"used_external_service"`
	Timestamp           time.Time `json:"timestamp"`
}

// Ticket is a pending request for a human agent.
type Ticket struct {
	Number      string    `json:"ticket_number"`
	StudentName string    `json:"student_name"`
	Email       string    `json:"email"`
	Question    string    `json:"question"`
	Timestamp   time.Time `json:"timestamp"`
}
