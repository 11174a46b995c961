// Package events produces the domain events webhooks subscribe to and
// records analytics events into a bounded buffer with a pluggable sink.
package events

import (
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/webhook"
)

// APIVersion stamps every produced event.
const APIVersion = "v1"

// Event types, dotted; the first segment is the category.
const (
	TypeGoalCompleted     = "goal.completed"
	TypeGoalCreated       = "goal.created"
	TypeQuestStarted      = "quest.started"
	TypeQuestCompleted    = "quest.completed"
	TypeStepCompleted     = "step.completed"
	TypeSparkCreated      = "spark.created"
	TypeMemoryStored      = "memory.stored"
	TypeChatMessageSent   = "chat.message_sent"
	TypeUserRegistered    = "user.registered"
	TypeReminderTriggered = "reminder.triggered"
	TypeSystemMaintenance = "system.maintenance"
)

// Factory stamps events with ids, timestamps, api version, and the
// running environment.
type Factory struct {
	environment string
	clock       clockwork.Clock
}

// NewFactory builds an event factory for the environment.
func NewFactory(environment string, clock clockwork.Clock) *Factory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Factory{environment: environment, clock: clock}
}

// New builds an event of any dotted type.
func (f *Factory) New(eventType, userID string, data map[string]any) webhook.Event {
	return webhook.Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		Category:    webhook.CategoryOf(eventType),
		UserID:      userID,
		Timestamp:   f.clock.Now().UTC(),
		Data:        data,
		APIVersion:  APIVersion,
		Environment: f.environment,
	}
}

// GoalCompleted marks a goal as done.
func (f *Factory) GoalCompleted(userID, goalID, title string) webhook.Event {
	return f.New(TypeGoalCompleted, userID, map[string]any{
		"goalId": goalID, "title": title,
	})
}

// GoalCreated announces a new goal.
func (f *Factory) GoalCreated(userID, goalID, title string) webhook.Event {
	return f.New(TypeGoalCreated, userID, map[string]any{
		"goalId": goalID, "title": title,
	})
}

// QuestStarted announces a quest kickoff.
func (f *Factory) QuestStarted(userID, questID, name string) webhook.Event {
	return f.New(TypeQuestStarted, userID, map[string]any{
		"questId": questID, "name": name,
	})
}

// QuestCompleted marks a quest as done.
func (f *Factory) QuestCompleted(userID, questID, name string) webhook.Event {
	return f.New(TypeQuestCompleted, userID, map[string]any{
		"questId": questID, "name": name,
	})
}

// StepCompleted marks one step of a quest as done.
func (f *Factory) StepCompleted(userID, questID, stepID string) webhook.Event {
	return f.New(TypeStepCompleted, userID, map[string]any{
		"questId": questID, "stepId": stepID,
	})
}

// SparkCreated announces a captured idea.
func (f *Factory) SparkCreated(userID, sparkID string) webhook.Event {
	return f.New(TypeSparkCreated, userID, map[string]any{
		"sparkId": sparkID,
	})
}

// MemoryStored announces a persisted memory.
func (f *Factory) MemoryStored(userID, memoryID string) webhook.Event {
	return f.New(TypeMemoryStored, userID, map[string]any{
		"memoryId": memoryID,
	})
}

// ChatMessageSent announces one conversation turn.
func (f *Factory) ChatMessageSent(userID, conversationID string, tokens int64) webhook.Event {
	return f.New(TypeChatMessageSent, userID, map[string]any{
		"conversationId": conversationID, "tokens": tokens,
	})
}

// UserRegistered announces a new account.
func (f *Factory) UserRegistered(userID string) webhook.Event {
	return f.New(TypeUserRegistered, userID, map[string]any{})
}

// ReminderTriggered announces a reminder dispatched over a channel.
func (f *Factory) ReminderTriggered(userID, reminderID, channel, title string) webhook.Event {
	return f.New(TypeReminderTriggered, userID, map[string]any{
		"reminderId": reminderID, "channel": channel, "title": title,
	})
}

// SystemMaintenance announces a maintenance window with a severity
// webhooks can filter on.
func (f *Factory) SystemMaintenance(severity, message string) webhook.Event {
	ev := f.New(TypeSystemMaintenance, "", map[string]any{
		"message": message,
	})
	ev.Severity = severity
	return ev
}
