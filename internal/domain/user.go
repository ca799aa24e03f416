package domain

import "time"

// User is a Telegram account that has interacted with the bot.
type User struct {
	ID        int64
	Username  string
	FullName  string
	CreatedAt time.Time
}
