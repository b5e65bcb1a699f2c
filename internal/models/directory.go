package models

// Member is a user known to be present in a channel.
type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ChannelID string `json:"channel_id"`
}

// Channel is a conversation the bot can see.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Role is a named group of users.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
