package domain

import "time"

// AccessLevel is the ordinal permission level of a user.
type AccessLevel int

const (
	AccessLevelRequester AccessLevel = 1
	AccessLevelAnalyst   AccessLevel = 2
	AccessLevelManager   AccessLevel = 3
	AccessLevelAdmin     AccessLevel = 4
)

// AtLeast reports whether l satisfies min.
func (l AccessLevel) AtLeast(min AccessLevel) bool {
	return l >= min
}

// User is an account that opens or works tickets.
type User struct {
	ID          int64
	Name        string
	Email       string
	AccessLevel AccessLevel
	Active      bool
	CreatedAt   time.Time
}
