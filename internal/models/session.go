package models

import "time"

// ChatSession is an archived conversation snapshot.
type ChatSession struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Messages  []Message `json:"messages" yaml:"messages"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// User is the signed-in profile.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}
