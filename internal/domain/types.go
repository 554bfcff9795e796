package domain

import "time"

type SessionID string
type UserID string
type MessageID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StackType tags the reflection template a session follows.
type StackType string

const (
	StackGratitude StackType = "gratitude"
	StackAnger     StackType = "anger"
	StackFear      StackType = "fear"
	StackSuffering StackType = "suffering"
	StackIdea      StackType = "idea"
)

// LifeDomain is the area of life a stack is declared against.
type LifeDomain string

const (
	DomainPersonal      LifeDomain = "personal"
	DomainRelationships LifeDomain = "relationships"
	DomainHealth        LifeDomain = "health"
	DomainWork          LifeDomain = "work"
	DomainFinances      LifeDomain = "finances"
	DomainSpirituality  LifeDomain = "spirituality"
	DomainOther         LifeDomain = "other"
)

var lifeDomains = map[LifeDomain]struct{}{
	DomainPersonal:      {},
	DomainRelationships: {},
	DomainHealth:        {},
	DomainWork:          {},
	DomainFinances:      {},
	DomainSpirituality:  {},
	DomainOther:         {},
}

// Valid reports whether d belongs to the closed set of life domains.
func (d LifeDomain) Valid() bool {
	_, ok := lifeDomains[d]
	return ok
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Timestamp = time.Time
