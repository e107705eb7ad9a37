package posts

import "time"

// Post is the root of a discussion: a user-supplied starting number that
// replies derive new values from. Immutable after creation.
type Post struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        int64     `gorm:"column:user_id;not null;index"`
	InitialNumber float64   `gorm:"column:initial_number;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing posts.
func (Post) TableName() string {
	return "posts"
}

// Node is a reply in the discussion tree: an arithmetic operation applied to
// its parent's value. A nil ParentID means the node replies directly to the
// post. Immutable after creation.
type Node struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	PostID       int64     `gorm:"column:post_id;not null;index"`
	ParentID     *int64    `gorm:"column:parent_id"`
	UserID       int64     `gorm:"column:user_id;not null"`
	Operation    string    `gorm:"column:operation;size:8;not null"`
	OperandValue float64   `gorm:"column:operand_value;not null"`
	ResultValue  float64   `gorm:"column:result_value;not null"`
	Depth        int       `gorm:"column:depth;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing reply nodes.
func (Node) TableName() string {
	return "nodes"
}
