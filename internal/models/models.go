package models

import "time"

// Role is a membership role inside a group. Roles form a total order used
// for authorization checks: admin > moderator > user.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

var roleLevels = map[Role]int{
	RoleUser:      1,
	RoleModerator: 2,
	RoleAdmin:     3,
}

// Level returns the rank of the role in the ordering. Unknown roles rank
// below every valid role.
func (r Role) Level() int {
	return roleLevels[r]
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return r.Level() >= min.Level()
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	GlobalRole  Role   `json:"role"`
	LastGroupID *int64 `json:"last_group_id,omitempty"`
}

type Group struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	InvitationCode string    `json:"invitation_code"`
	Description    *string   `json:"description,omitempty"`
	LogoURL        *string   `json:"logo_url,omitempty"`
	OwnerID        int64     `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type Membership struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	GroupID  int64     `json:"group_id"`
	Role     Role      `json:"role"`
	Nickname *string   `json:"nickname,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
	Active   bool      `json:"active"`
}

type Session struct {
	Token     string
	UserID    int64
	GroupID   *int64
	ExpiresAt time.Time
}

type Suggestion struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"-"`
	Title     string    `json:"title"`
	Author    *string   `json:"author,omitempty"`
	YouTube   *string   `json:"youtube,omitempty"`
	VersionOf *string   `json:"versionOf,omitempty"`
	Likes     int       `json:"likes"`
	CreatorID int64     `json:"creatorId"`
	Creator   string    `json:"creator"`
	CreatedAt time.Time `json:"createdAt"`
}

// Rehearsal is a song being worked on, with per-user practice levels and
// notes keyed by username.
type Rehearsal struct {
	ID        int64          `json:"id"`
	GroupID   int64          `json:"-"`
	Title     string         `json:"title"`
	Author    *string        `json:"author,omitempty"`
	YouTube   *string        `json:"youtube,omitempty"`
	Spotify   *string        `json:"spotify,omitempty"`
	VersionOf *string        `json:"versionOf,omitempty"`
	Levels    map[string]int `json:"levels"`
	Notes     map[string]string `json:"notes"`
	Mastered  bool           `json:"mastered"`
	CreatorID int64          `json:"creatorId"`
	Creator   string         `json:"creator"`
	CreatedAt time.Time      `json:"createdAt"`
}

type Performance struct {
	ID        int64     `json:"id"`
	GroupID   int64     `json:"-"`
	Name      string    `json:"name"`
	Date      string    `json:"date"`
	Location  *string   `json:"location,omitempty"`
	Songs     []int64   `json:"songs"`
	CreatorID int64     `json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Settings struct {
	GroupID   int64  `json:"-"`
	GroupName string `json:"groupName"`
	DarkMode  bool   `json:"darkMode"`
	Template  string `json:"template"`
}
