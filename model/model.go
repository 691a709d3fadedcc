// Package model defines the entities of the submission data model: the
// types persisted and returned by the metadata repository, independent
// of any particular storage backend.
package model

import (
	"encoding/json"
	"time"
)

// Project is created lazily on first observation of a project claim
// from the identity provider. It owns submissions.
type Project struct {
	ProjectId  string   `json:"projectId"`
	ExternalId string   `json:"externalId"`
	Templates  []string `json:"templates,omitempty"`
}

// User is created or updated on each successful login; Projects
// reflects the identity-provider claims observed at that moment.
type User struct {
	UserId     string   `json:"userId"`
	ExternalId string   `json:"externalId"`
	Name       string   `json:"name"`
	Projects   []string `json:"projects"`
}

// IngestStatus tracks a File's progress through out-of-band ingestion.
// It advances only along added -> verified -> ready, with failed
// reachable from any non-terminal state.
type IngestStatus string

const (
	IngestAdded    IngestStatus = "added"
	IngestVerified IngestStatus = "verified"
	IngestReady    IngestStatus = "ready"
	IngestFailed   IngestStatus = "failed"
)

// CanTransition reports whether the status may advance to next.
func (s IngestStatus) CanTransition(next IngestStatus) bool {
	if next == IngestFailed {
		return s != IngestReady
	}
	order := map[IngestStatus]int{IngestAdded: 0, IngestVerified: 1, IngestReady: 2}
	cur, curOk := order[s]
	nxt, nxtOk := order[next]
	return curOk && nxtOk && nxt == cur+1
}

// Submission is the unit of publication: a logical container grouping
// metadata objects and files under one project and one workflow.
//
// Document carries the authoritative JSON representation used for
// publish-time payloads (rems, doiInfo, and other workflow-specific
// blocks); Name, Folder, Title and Description duplicate the subset of
// Document that the repository indexes directly.
type Submission struct {
	SubmissionId string          `json:"submissionId"`
	Name         string          `json:"name"`
	ProjectId    string          `json:"projectId"`
	WorkflowName string          `json:"workflow"`
	Folder       string          `json:"folder,omitempty"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description,omitempty"`
	Document     json.RawMessage `json:"document"`
	IsPublished  bool            `json:"isPublished"`
	IsIngested   bool            `json:"isIngested"`
	PublishedAt  *time.Time      `json:"publishedAt,omitempty"`
	IngestedAt   *time.Time      `json:"ingestedAt,omitempty"`
	CreatedAt    time.Time       `json:"dateCreated"`
	ModifiedAt   time.Time       `json:"lastModified"`
}

// Object is a typed JSON document (optionally with an original XML
// serialization) describing one entity within a submission. It lives
// and dies with its submission (cascade delete) and cannot be mutated
// once the submission is published.
type Object struct {
	ObjectId     string          `json:"accessionId"`
	SubmissionId string          `json:"submissionId"`
	ProjectId    string          `json:"projectId"`
	ObjectType   string          `json:"schema"`
	Name         string          `json:"name,omitempty"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description,omitempty"`
	Document     json.RawMessage `json:"document"`
	XMLDocument  string          `json:"-"`
	HasXML       bool            `json:"-"`
	CreatedAt    time.Time       `json:"dateCreated"`
	ModifiedAt   time.Time       `json:"lastModified"`
}

// File tracks one attached payload's ingestion state.
type File struct {
	FileId              string       `json:"fileId"`
	SubmissionId         string       `json:"submissionId"`
	ObjectId             string       `json:"objectId,omitempty"`
	Path                 string       `json:"path"`
	Bytes                int64        `json:"bytes"`
	UnencryptedChecksum  string       `json:"unencryptedChecksum"`
	EncryptedChecksum    string       `json:"encryptedChecksum"`
	ChecksumMethod       string       `json:"checksumMethod"`
	IngestStatus         IngestStatus `json:"ingestStatus"`
	IngestError          string       `json:"ingestError,omitempty"`
	IngestErrorType      string       `json:"ingestErrorType,omitempty"`
	IngestErrorCount     int          `json:"ingestErrorCount"`
	CreatedAt            time.Time    `json:"dateCreated"`
	ModifiedAt           time.Time    `json:"lastModified"`
}

// Registration records the external identifiers obtained when a
// submission (or one of its objects) was published. ObjectId is set
// when the registration is for a specific object rather than the
// submission as a whole.
type Registration struct {
	RegistrationId   string    `json:"registrationId"`
	SubmissionId     string    `json:"submissionId"`
	ObjectId         string    `json:"objectId,omitempty"`
	ObjectType       string    `json:"objectType"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	DOI              string    `json:"doi"`
	MetaxId          string    `json:"metaxId,omitempty"`
	DataciteUrl      string    `json:"dataciteUrl,omitempty"`
	RemsUrl          string    `json:"remsUrl,omitempty"`
	RemsResourceId   string    `json:"remsResourceId,omitempty"`
	RemsCatalogueId  string    `json:"remsCatalogueId,omitempty"`
	CreatedAt        time.Time `json:"dateCreated"`
	ModifiedAt       time.Time `json:"lastModified"`
}

// ApiKey is an issued credential: UserKeyId is caller-chosen and unique
// per user, ApiKeyHash is the output of the (out-of-scope) hashing
// primitive applied to Salt+secret.
type ApiKey struct {
	KeyId      string    `json:"keyId"`
	UserId     string    `json:"userId"`
	UserKeyId  string    `json:"userKeyId"`
	ApiKeyHash string    `json:"-"`
	Salt       string    `json:"-"`
	CreatedAt  time.Time `json:"dateCreated"`
}
