package models

import (
	"time"

	"chatzalo/pkg/utils"
)

const RequestPending = "pending"

type FriendRequest struct {
	Email  string    `json:"email"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	FullName     string          `json:"fullName"`
	Avatar       string          `json:"avatar,omitempty"`
	Phone        string          `json:"phoneNumber,omitempty"`
	PasswordHash string          `json:"passwordHash"`
	Friends      []string        `json:"friends"`
	SentRequests []FriendRequest `json:"sentRequests,omitempty"`
	RecvRequests []FriendRequest `json:"receivedRequests,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Profile is the public view of a user.
type Profile struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar,omitempty"`
	Phone    string `json:"phoneNumber,omitempty"`
}

func (u *User) Profile() Profile {
	name := u.FullName
	if name == "" {
		name = u.Email
	}
	return Profile{Email: u.Email, FullName: name, Avatar: u.Avatar, Phone: u.Phone}
}

func (u *User) IsFriend(email string) bool { return utils.Contains(u.Friends, email) }

func (u *User) HasSentTo(email string) bool {
	return indexRequest(u.SentRequests, email) >= 0
}

func (u *User) HasReceivedFrom(email string) bool {
	return indexRequest(u.RecvRequests, email) >= 0
}

// DropRequests removes any pending request to or from email.
func (u *User) DropRequests(email string) {
	u.SentRequests = removeRequest(u.SentRequests, email)
	u.RecvRequests = removeRequest(u.RecvRequests, email)
}

func indexRequest(reqs []FriendRequest, email string) int {
	for i, r := range reqs {
		if r.Email == email {
			return i
		}
	}
	return -1
}

func removeRequest(reqs []FriendRequest, email string) []FriendRequest {
	out := reqs[:0:0]
	for _, r := range reqs {
		if r.Email != email {
			out = append(out, r)
		}
	}
	return out
}
