package domain

import "time"

type Branch struct {
	ID        int64     `db:"id" json:"id"`
	Location  string    `db:"location" json:"location"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	ManagerID int64     `db:"manager_id" json:"managerId"`
}
