package model

import "time"

// UserRole is the role of a user in the tracker
type UserRole string

const (
	UserRoleAdmin  UserRole = "ADMIN"
	UserRoleMember UserRole = "MEMBER"
)

// User is a person tasks can be assigned to
type User struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `gorm:"index" json:"email"`
	Role      UserRole  `gorm:"not null" json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for User
func (User) TableName() string { return "users" }
