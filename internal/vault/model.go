// Package vault owns the canonical set of vault items: their lifecycle
// (create, update, soft delete, restore, permanent delete) and the bounded
// version history that makes secret changes reversible.
package vault

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/keepershare/internal/common"
)

// MaxHistory is the number of prior versions kept per item.
const MaxHistory = 10

// FieldKind classifies a custom field.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldHidden FieldKind = "hidden"
	FieldURL    FieldKind = "url"
	FieldEmail  FieldKind = "email"
	FieldPhone  FieldKind = "phone"
)

func (k FieldKind) valid() bool {
	switch k {
	case FieldText, FieldHidden, FieldURL, FieldEmail, FieldPhone:
		return true
	}
	return false
}

// Tag is a named, colored label. Tags on an item form a set keyed by name.
type Tag struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type CustomField struct {
	Label string    `json:"label"`
	Value string    `json:"value"`
	Kind  FieldKind `json:"kind"`
}

// VersionSnapshot is an immutable copy of an item's versioned fields.
type VersionSnapshot struct {
	Secret    string    `json:"secret"`
	Username  string    `json:"username"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	ChangedAt time.Time `json:"changedAt"`
	ChangedBy string    `json:"changedBy"`
}

// Item is a secret record. Secret is plaintext while loaded; the whole item is
// encrypted before it reaches the persistence collaborator.
type Item struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Username          string            `json:"username"`
	Secret            string            `json:"secret"`
	URL               string            `json:"url"`
	Notes             string            `json:"notes,omitempty"`
	Tags              []Tag             `json:"tags,omitempty"`
	CustomFields      []CustomField     `json:"customFields,omitempty"`
	FolderID          *string           `json:"folderId,omitempty"`
	Favorite          bool              `json:"favorite"`
	Deleted           bool              `json:"deleted"`
	DeletedAt         *time.Time        `json:"deletedAt,omitempty"`
	BreachCount       *int              `json:"breachCount,omitempty"`
	LastBreachCheckAt *time.Time        `json:"lastBreachCheckAt,omitempty"`
	History           []VersionSnapshot `json:"history"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func (it *Item) snapshot(at time.Time, by string) VersionSnapshot {
	return VersionSnapshot{
		Secret:    it.Secret,
		Username:  it.Username,
		Title:     it.Title,
		URL:       it.URL,
		ChangedAt: at,
		ChangedBy: by,
	}
}

func (it *Item) apply(v VersionSnapshot) {
	it.Secret = v.Secret
	it.Username = v.Username
	it.Title = v.Title
	it.URL = v.URL
}

// pushHistory prepends v and drops the oldest entries beyond MaxHistory.
func (it *Item) pushHistory(v VersionSnapshot) {
	h := make([]VersionSnapshot, 0, min(len(it.History)+1, MaxHistory))
	h = append(h, v)
	h = append(h, it.History...)
	if len(h) > MaxHistory {
		h = h[:MaxHistory]
	}
	it.History = h
}

// Fields is the user-supplied input for Create and BulkCreate.
type Fields struct {
	Title        string        `json:"title"`
	Username     string        `json:"username"`
	Secret       string        `json:"secret"`
	URL          string        `json:"url"`
	Notes        string        `json:"notes"`
	Tags         []Tag         `json:"tags"`
	CustomFields []CustomField `json:"customFields"`
	FolderID     *string       `json:"folderId"`
}

func (f Fields) validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("title is required: %w", common.ErrValidationFailed)
	}
	if err := validateTags(f.Tags); err != nil {
		return err
	}
	return validateCustomFields(f.CustomFields)
}

// Patch carries the fields to change in Update. Nil pointers are left as is.
// Favorite and breach fields are deliberately absent: see SetFavorite and
// RecordBreachCheck.
type Patch struct {
	Title        *string        `json:"title,omitempty"`
	Username     *string        `json:"username,omitempty"`
	Secret       *string        `json:"secret,omitempty"`
	URL          *string        `json:"url,omitempty"`
	Notes        *string        `json:"notes,omitempty"`
	Tags         *[]Tag         `json:"tags,omitempty"`
	CustomFields *[]CustomField `json:"customFields,omitempty"`
	FolderID     **string       `json:"folderId,omitempty"`
}

func (p Patch) empty() bool {
	return p.Title == nil && p.Username == nil && p.Secret == nil && p.URL == nil &&
		p.Notes == nil && p.Tags == nil && p.CustomFields == nil && p.FolderID == nil
}

func (p Patch) fieldNames() []string {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(p.Title != nil, "title")
	add(p.Username != nil, "username")
	add(p.Secret != nil, "secret")
	add(p.URL != nil, "url")
	add(p.Notes != nil, "notes")
	add(p.Tags != nil, "tags")
	add(p.CustomFields != nil, "customFields")
	add(p.FolderID != nil, "folderId")
	return names
}

func (p Patch) validate() error {
	if p.empty() {
		return fmt.Errorf("empty patch: %w", common.ErrValidationFailed)
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("title is required: %w", common.ErrValidationFailed)
	}
	if p.Tags != nil {
		if err := validateTags(*p.Tags); err != nil {
			return err
		}
	}
	if p.CustomFields != nil {
		return validateCustomFields(*p.CustomFields)
	}
	return nil
}

func (p Patch) applyTo(it *Item) {
	if p.Title != nil {
		it.Title = strings.TrimSpace(*p.Title)
	}
	if p.Username != nil {
		it.Username = *p.Username
	}
	if p.Secret != nil {
		it.Secret = *p.Secret
	}
	if p.URL != nil {
		it.URL = *p.URL
	}
	if p.Notes != nil {
		it.Notes = *p.Notes
	}
	if p.Tags != nil {
		it.Tags = dedupeTags(*p.Tags)
	}
	if p.CustomFields != nil {
		it.CustomFields = append([]CustomField(nil), (*p.CustomFields)...)
	}
	if p.FolderID != nil {
		it.FolderID = *p.FolderID
	}
}

func validateTags(tags []Tag) error {
	for i, t := range tags {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("tags[%d]: name is required: %w", i, common.ErrValidationFailed)
		}
	}
	return nil
}

func validateCustomFields(fields []CustomField) error {
	for i, f := range fields {
		if strings.TrimSpace(f.Label) == "" {
			return fmt.Errorf("customFields[%d]: label is required: %w", i, common.ErrValidationFailed)
		}
		if !f.Kind.valid() {
			return fmt.Errorf("customFields[%d]: unknown kind %q: %w", i, f.Kind, common.ErrValidationFailed)
		}
	}
	return nil
}

// dedupeTags keeps the last occurrence of each tag name, in first-seen order.
func dedupeTags(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	pos := make(map[string]int, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		t.Name = strings.TrimSpace(t.Name)
		if i, ok := pos[t.Name]; ok {
			out[i] = t
			continue
		}
		pos[t.Name] = len(out)
		out = append(out, t)
	}
	return out
}
