package domain

// Session is one reflection journey ("stack") owned by a user.
type Session struct {
	ID        SessionID
	UserID    UserID
	CreatedAt Timestamp
	UpdatedAt Timestamp

	Title     string
	StackType StackType
	Domain    LifeDomain
	Subject   string

	// CurrentQuestion is the zero-based index of the question the user is
	// expected to answer next.
	CurrentQuestion int
	Status          Status
	CompletedAt     *Timestamp
}

// IsCompleted reports whether the session reached its summary.
func (s *Session) IsCompleted() bool {
	return s.Status == StatusCompleted
}

// OwnedBy reports whether userID owns the session.
func (s *Session) OwnedBy(userID UserID) bool {
	return s.UserID == userID
}

// Message is one turn in a session transcript.
type Message struct {
	ID        MessageID
	SessionID SessionID
	Author    Role
	Text      string
	CreatedAt Timestamp

	// QuestionNumber is the 1-based number of the question an assistant
	// turn asks. Nil for user turns and for the closing summary.
	QuestionNumber *int
}

// CountAssistant returns how many messages in msgs were written by the assistant.
func CountAssistant(msgs []*Message) int {
	n := 0
	for _, m := range msgs {
		if m.Author == RoleAssistant {
			n++
		}
	}
	return n
}
