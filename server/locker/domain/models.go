package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// ParseRole returns the role named by a token claim. Unknown or empty
// claims report ok=false.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RolePatient:
		return RolePatient, true
	case RoleDoctor:
		return RoleDoctor, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

func (r Role) String() string {
	return string(r)
}

type AccessType string

const (
	AccessAssigned AccessType = "assigned"
	AccessShared   AccessType = "shared"
)

// Document is the client's read-only projection of a backend file record.
type Document struct {
	DocID              string     `json:"docId"`
	OwnerUID           string     `json:"ownerUid"`
	OriginalFilename   string     `json:"originalFilename"`
	AccessType         AccessType `json:"accessType,omitempty"`
	IsVisibleToPatient bool       `json:"isVisibleToPatient"`
}

type Conversation struct {
	ConversationID string   `json:"conversationId"`
	Participants   []string `json:"participants"`
	LastMessage    string   `json:"lastMessage"`
}

// Peer returns the participant that is not selfUID. A conversation with
// only the caller in it reports "Yourself".
func (c Conversation) Peer(selfUID string) string {
	for _, p := range c.Participants {
		if p != selfUID && p != "" {
			return p
		}
	}
	return "Yourself"
}

type Message struct {
	MessageID        string    `json:"messageId"`
	SenderUID        string    `json:"senderUid"`
	TextMessage      string    `json:"textMessage"`
	DocID            string    `json:"docId,omitempty"`
	OriginalFilename string    `json:"originalFilename,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

type Assignment struct {
	DoctorID    string   `json:"doctorId"`
	PatientUIDs []string `json:"patientUids"`
}

type UploadedFile struct {
	Filename string
	Content  []byte
}

type UploadResult struct {
	Message string `json:"message"`
	DocID   string `json:"docId"`
}

type CreatedUser struct {
	Message string `json:"message"`
	UID     string `json:"uid"`
}

// Attachment names a document sent along with a message.
type Attachment struct {
	DocID    string
	Filename string
}

type OutgoingMessage struct {
	RecipientEmail string
	Text           string
	Attachment     *Attachment
}
