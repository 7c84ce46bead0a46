package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	RoleContentCreator     = "content-creator"
	RoleEntrepreneur       = "entrepreneur"
	RoleSocialMediaManager = "social-media-manager"
)

// MaxPastOutputs caps the history kept on a user record. Older entries are
// dropped first.
const MaxPastOutputs = 50

var (
	// ErrInvalidRole reports a role outside the supported set.
	ErrInvalidRole = errors.New("invalid user role")
	// ErrInvalidProfile reports a role-specific profile that fails validation.
	ErrInvalidProfile = errors.New("invalid role profile")
	// ErrInvalidPersona reports a manual persona without any content.
	ErrInvalidPersona = errors.New("invalid persona")
)

// RoleProfile holds the answers a user gave for their role. Only the fields
// belonging to the role are populated.
type RoleProfile struct {
	ContentGenre        string `json:"contentGenre,omitempty"`
	BusinessCategory    string `json:"businessCategory,omitempty"`
	BusinessDescription string `json:"businessDescription,omitempty"`
	ClientType          string `json:"clientType,omitempty"`
	BusinessSize        string `json:"businessSize,omitempty"`
	SocialMediaNiche    string `json:"socialMediaNiche,omitempty"`
}

var (
	contentGenres      = []string{"educational", "entertainment", "gaming", "lifestyle", "music", "tech", "travel", "other"}
	businessCategories = []string{"ecommerce", "saas", "consulting", "agency", "retail", "manufacturing", "other"}
	clientTypes        = []string{"influencers", "small-businesses", "corporate", "individuals", "mixed"}
	businessSizes      = []string{"solo", "small-team", "medium", "large"}
	socialMediaNiches  = []string{"content-creation", "community-management", "marketing-campaigns", "analytics", "full-service"}
)

// ValidRole reports whether role is one of the supported user roles.
func ValidRole(role string) bool {
	switch role {
	case RoleContentCreator, RoleEntrepreneur, RoleSocialMediaManager:
		return true
	}
	return false
}

// ForRole validates the profile against role and returns a copy holding only
// the fields that role owns.
func (p RoleProfile) ForRole(role string) (RoleProfile, error) {
	switch role {
	case RoleContentCreator:
		if err := oneOf("contentGenre", p.ContentGenre, contentGenres); err != nil {
			return RoleProfile{}, err
		}
		return RoleProfile{ContentGenre: p.ContentGenre}, nil
	case RoleEntrepreneur:
		if err := oneOf("businessCategory", p.BusinessCategory, businessCategories); err != nil {
			return RoleProfile{}, err
		}
		description := strings.TrimSpace(p.BusinessDescription)
		if description == "" {
			return RoleProfile{}, fmt.Errorf("%w: businessDescription is required", ErrInvalidProfile)
		}
		return RoleProfile{BusinessCategory: p.BusinessCategory, BusinessDescription: description}, nil
	case RoleSocialMediaManager:
		if err := oneOf("clientType", p.ClientType, clientTypes); err != nil {
			return RoleProfile{}, err
		}
		if err := oneOf("businessSize", p.BusinessSize, businessSizes); err != nil {
			return RoleProfile{}, err
		}
		if err := oneOf("socialMediaNiche", p.SocialMediaNiche, socialMediaNiches); err != nil {
			return RoleProfile{}, err
		}
		return RoleProfile{ClientType: p.ClientType, BusinessSize: p.BusinessSize, SocialMediaNiche: p.SocialMediaNiche}, nil
	default:
		return RoleProfile{}, ErrInvalidRole
	}
}

func oneOf(field, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%w: %s must be one of %s", ErrInvalidProfile, field, strings.Join(allowed, ", "))
	}
	return nil
}

// ManualPersona is a persona the user described by hand instead of having it
// extracted from their channel.
type ManualPersona struct {
	Description    string    `json:"description"`
	Tone           string    `json:"tone,omitempty"`
	TargetAudience string    `json:"targetAudience,omitempty"`
	Topics         []string  `json:"topics,omitempty"`
	SampleContent  string    `json:"sampleContent,omitempty"`
	Source         string    `json:"source"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

const (
	PersonaSourceManual = "manual"
	PersonaSourceEdited = "edited"
)

// Normalize trims the persona fields and drops empty topics. A persona needs a
// description to be stored.
func (p ManualPersona) Normalize() (ManualPersona, error) {
	p.Description = strings.TrimSpace(p.Description)
	p.Tone = strings.TrimSpace(p.Tone)
	p.TargetAudience = strings.TrimSpace(p.TargetAudience)
	p.SampleContent = strings.TrimSpace(p.SampleContent)

	topics := p.Topics[:0:0]
	for _, topic := range p.Topics {
		if topic = strings.TrimSpace(topic); topic != "" {
			topics = append(topics, topic)
		}
	}
	p.Topics = topics

	if p.Description == "" {
		return ManualPersona{}, fmt.Errorf("%w: description is required", ErrInvalidPersona)
	}
	return p, nil
}

// PastOutput is a piece of content previously generated for the user.
type PastOutput struct {
	Content   string    `json:"content"`
	Kind      string    `json:"kind,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppendPastOutput adds output to history, keeping at most MaxPastOutputs of
// the newest entries.
func AppendPastOutput(history []PastOutput, output PastOutput) []PastOutput {
	history = append(slices.Clone(history), output)
	if len(history) > MaxPastOutputs {
		history = history[len(history)-MaxPastOutputs:]
	}
	return history
}
