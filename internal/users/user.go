package users

import "time"

// User is an identity record. It is created at registration and immutable
// afterwards; there is no update path.
type User struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name         string    `gorm:"column:name;size:190;not null"`
	Username     string    `gorm:"column:username;size:190;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password;type:text;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing user records.
func (User) TableName() string {
	return "users"
}
