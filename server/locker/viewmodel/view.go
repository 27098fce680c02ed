package viewmodel

import (
	"fmt"

	"hospital_locker/server/locker/domain"
)

// View is the render-ready structure for one role. Each role has exactly
// one implementation and Derive is the only place that switches on role.
type View interface {
	Role() domain.Role
}

type PatientView struct {
	Files []domain.Document `json:"files"`
}

func (PatientView) Role() domain.Role { return domain.RolePatient }

type ConversationSummary struct {
	ConversationID string `json:"conversationId"`
	With           string `json:"with"`
	LastMessage    string `json:"lastMessage"`
}

type DoctorView struct {
	Files         DoctorFiles           `json:"files"`
	Conversations []ConversationSummary `json:"conversations"`
}

func (DoctorView) Role() domain.Role { return domain.RoleDoctor }

type AdminView struct {
	Dashboard Dashboard `json:"dashboard"`
}

func (AdminView) Role() domain.Role { return domain.RoleAdmin }

func Derive(role domain.Role, s Snapshot) (View, error) {
	switch role {
	case domain.RolePatient:
		files := GroupForPatient(s.Files)
		if files == nil {
			files = []domain.Document{}
		}
		return PatientView{Files: files}, nil
	case domain.RoleDoctor:
		return DoctorView{
			Files:         GroupForDoctor(s.Files),
			Conversations: SummarizeConversations(s.Conversations, s.SelfUID),
		}, nil
	case domain.RoleAdmin:
		dashboard := s.Dashboard
		if dashboard == nil {
			dashboard = Dashboard{}
		}
		return AdminView{Dashboard: dashboard}, nil
	default:
		return nil, fmt.Errorf("no view for role %q", role)
	}
}

func SummarizeConversations(convos []domain.Conversation, selfUID string) []ConversationSummary {
	out := make([]ConversationSummary, 0, len(convos))
	for _, c := range convos {
		last := c.LastMessage
		if last == "" {
			last = "No message content"
		}
		out = append(out, ConversationSummary{
			ConversationID: c.ConversationID,
			With:           c.Peer(selfUID),
			LastMessage:    last,
		})
	}
	return out
}
