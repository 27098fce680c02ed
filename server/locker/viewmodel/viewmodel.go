// Package viewmodel turns raw backend snapshots into role-specific render
// structures. Nothing here performs I/O or mutates its inputs.
package viewmodel

import (
	"hospital_locker/server/locker/domain"
)

// Snapshot is the latest successfully fetched state of the session.
// The Loaded flags distinguish "fetched and empty" from "never fetched".
type Snapshot struct {
	SelfUID             string
	Files               []domain.Document
	FilesLoaded         bool
	Conversations       []domain.Conversation
	ConversationsLoaded bool
	Assignments         []domain.Assignment
	AssignmentsLoaded   bool
	Dashboard           Dashboard
}

type DoctorFiles struct {
	Assigned map[string][]domain.Document `json:"assigned"`
	Shared   []domain.Document            `json:"shared"`
	Dropped  int                          `json:"-"`
}

// Placed counts the documents that landed in either bucket.
func (d DoctorFiles) Placed() int {
	n := len(d.Shared)
	for _, docs := range d.Assigned {
		n += len(docs)
	}
	return n
}

type PatientFiles struct {
	UID   string            `json:"uid"`
	Files []domain.Document `json:"files"`
}

type DoctorAssignment struct {
	DoctorID string         `json:"doctorId"`
	Patients []PatientFiles `json:"patients"`
}

type Dashboard []DoctorAssignment

// GroupForPatient is the identity: patients see their own documents flat.
func GroupForPatient(files []domain.Document) []domain.Document {
	return files
}

// GroupForDoctor partitions on AccessType. Documents carrying neither tag
// are not visible to the doctor and are dropped.
func GroupForDoctor(files []domain.Document) DoctorFiles {
	out := DoctorFiles{
		Assigned: map[string][]domain.Document{},
		Shared:   []domain.Document{},
	}
	for _, f := range files {
		switch f.AccessType {
		case domain.AccessAssigned:
			out.Assigned[f.OwnerUID] = append(out.Assigned[f.OwnerUID], f)
		case domain.AccessShared:
			out.Shared = append(out.Shared, f)
		default:
			out.Dropped++
		}
	}
	return out
}

// BuildAdminDashboard joins every assigned patient against the documents
// they own. It stays empty until both files and assignments have loaded at
// least once; after that an empty list on either side is a valid input.
func BuildAdminDashboard(s Snapshot) Dashboard {
	if !s.FilesLoaded || !s.AssignmentsLoaded {
		return Dashboard{}
	}

	filesByOwner := make(map[string][]domain.Document)
	for _, f := range s.Files {
		filesByOwner[f.OwnerUID] = append(filesByOwner[f.OwnerUID], f)
	}

	dashboard := make(Dashboard, 0, len(s.Assignments))
	for _, a := range s.Assignments {
		patients := make([]PatientFiles, 0, len(a.PatientUIDs))
		seen := make(map[string]struct{}, len(a.PatientUIDs))
		for _, uid := range a.PatientUIDs {
			if _, ok := seen[uid]; ok {
				continue
			}
			seen[uid] = struct{}{}
			files := filesByOwner[uid]
			if files == nil {
				files = []domain.Document{}
			}
			patients = append(patients, PatientFiles{UID: uid, Files: files})
		}
		dashboard = append(dashboard, DoctorAssignment{DoctorID: a.DoctorID, Patients: patients})
	}
	return dashboard
}

// ApplyVisibilityToggle returns a dashboard where every occurrence of docID
// carries the new flag. Untouched doctors, patients and file slices are
// shared with the input. When docID is absent the input is returned as is
// and matched is false.
func ApplyVisibilityToggle(d Dashboard, docID string, visible bool) (out Dashboard, matched bool) {
	for i, doctor := range d {
		patients, ok := togglePatients(doctor.Patients, docID, visible)
		if !ok {
			continue
		}
		if !matched {
			out = make(Dashboard, len(d))
			copy(out, d)
			matched = true
		}
		out[i] = DoctorAssignment{DoctorID: doctor.DoctorID, Patients: patients}
	}
	if !matched {
		return d, false
	}
	return out, true
}

// ApplyVisibilityToFiles is the flat-list counterpart of
// ApplyVisibilityToggle, used to keep the raw snapshot in step.
func ApplyVisibilityToFiles(files []domain.Document, docID string, visible bool) ([]domain.Document, bool) {
	var out []domain.Document
	for i, f := range files {
		if f.DocID != docID {
			continue
		}
		if out == nil {
			out = make([]domain.Document, len(files))
			copy(out, files)
		}
		out[i].IsVisibleToPatient = visible
	}
	if out == nil {
		return files, false
	}
	return out, true
}

func togglePatients(patients []PatientFiles, docID string, visible bool) ([]PatientFiles, bool) {
	var out []PatientFiles
	for i, p := range patients {
		files, ok := ApplyVisibilityToFiles(p.Files, docID, visible)
		if !ok {
			continue
		}
		if out == nil {
			out = make([]PatientFiles, len(patients))
			copy(out, patients)
		}
		out[i] = PatientFiles{UID: p.UID, Files: files}
	}
	if out == nil {
		return patients, false
	}
	return out, true
}

// FindDocument looks a document up in the flat snapshot.
func FindDocument(files []domain.Document, docID string) (domain.Document, bool) {
	for _, f := range files {
		if f.DocID == docID {
			return f, true
		}
	}
	return domain.Document{}, false
}
