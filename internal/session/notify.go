package session

// Level is the tone of a notice
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is a short user-facing message about an operation
type Notice struct {
	Level   Level
	Message string
}

// Notifier shows notices to the user
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// NopNotifier drops every notice
type NopNotifier struct{}

func (NopNotifier) Notify(Notice) {}
