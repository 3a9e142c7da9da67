package users

import "time"

// DefaultAvatar is assigned to profiles created without one.
const DefaultAvatar = "https://static.meridian.local/avatars/default.gif"

// User represents a principal account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Enable       bool      `json:"enable"`
	CreatedAt    time.Time `json:"createTime"`
	UpdatedAt    time.Time `json:"updateTime"`
}

// Profile holds the optional contact and display attributes of a user.
type Profile struct {
	ID       int64   `json:"id"`
	UserID   int64   `json:"userId"`
	Gender   *int    `json:"gender"`
	Avatar   string  `json:"avatar"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	NickName *string `json:"nickName"`
}

// RoleSummary is the role shape embedded in user listings.
type RoleSummary struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Enable bool   `json:"enable"`
}

// DetailedUser augments a user with roles and profile attributes for the
// management listing.
type DetailedUser struct {
	User
	Roles  []RoleSummary `json:"roles"`
	Gender *int          `json:"gender"`
	Avatar string        `json:"avatar"`
	Email  *string       `json:"email"`
}
