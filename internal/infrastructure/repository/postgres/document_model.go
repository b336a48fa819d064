package postgres

import "time"

const documentsTable = "documents"

type documentTableModel struct {
	Collection string    `db:"collection"`
	ID         string    `db:"id"`
	Data       string    `db:"data"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type documentInsertModel struct {
	Collection string `db:"collection"`
	ID         string `db:"id"`
	Data       string `db:"data"`
}
