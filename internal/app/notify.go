package app

// Notice is a transient, dismissible notification. Controllers emit one
// for every normalized failure (and selected successes); the rendering
// layer decides how long it stays on screen.
type Notice struct {
	Title  string
	Detail string
	IsErr  bool
}

// Notifier receives notices. A nil Notifier is valid and drops them.
type Notifier func(Notice)

func (n Notifier) send(notice Notice) {
	if n != nil {
		n(notice)
	}
}
