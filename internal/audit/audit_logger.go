package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	UserID    int64     `json:"user_id"`
	Entity    string    `json:"entity"`
	EntityID  int64     `json:"entity_id"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type Logger struct {
	output func(format string, v ...any)
}

func NewLogger() *Logger {
	return &Logger{output: log.Printf}
}

func (a *Logger) LogContact(eventType string, userID, contactID int64) {
	a.log(Event{
		EventType: eventType,
		UserID:    userID,
		Entity:    "contact",
		EntityID:  contactID,
		Status:    "SUCCESS",
	})
}

func (a *Logger) LogDebt(eventType string, userID, debtID int64, details map[string]string) {
	a.log(Event{
		EventType: eventType,
		UserID:    userID,
		Entity:    "debt",
		EntityID:  debtID,
		Status:    "SUCCESS",
		Details:   details,
	})
}

func (a *Logger) LogUser(eventType string, userID int64, email string) {
	a.log(Event{
		EventType: eventType,
		UserID:    userID,
		Entity:    "user",
		EntityID:  userID,
		Status:    "SUCCESS",
		Details:   map[string]string{"email": email},
	})
}

func (a *Logger) LogError(eventType string, userID int64, err error) {
	a.log(Event{
		EventType: eventType,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	event.ID = uuid.NewString()
	event.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(event)
	a.output("AUDIT: %s", string(data))
}
