package domain

import (
	"errors"
	"time"
)

var (
	// ErrUnhandledAction is returned for actions with no notification rule.
	ErrUnhandledAction = errors.New("unhandled action")
	// ErrInvalidState is returned when a state attribute has an unknown value.
	ErrInvalidState = errors.New("invalid state")
	// ErrMissingAttribute is returned when a rule needs an attribute the event lacks.
	ErrMissingAttribute = errors.New("missing attribute")
	// ErrNotFound is returned by lookups when the remote record does not exist.
	ErrNotFound = errors.New("not found")
)

// Action names the semantic kind of an on-chain event.
type Action string

const (
	ActionMultiSetRepositoryBranch    Action = "MultiSetRepositoryBranch"
	ActionMultiDeleteRepositoryBranch Action = "MultiDeleteRepositoryBranch"
	ActionMultiSetRepositoryTag       Action = "MultiSetRepositoryTag"
	ActionMultiDeleteRepositoryTag    Action = "MultiDeleteRepositoryTag"
	ActionCreateUser                  Action = "CreateUser"
	ActionCreateDao                   Action = "CreateDao"
	ActionCreateRepository            Action = "CreateRepository"
	ActionForkRepository              Action = "ForkRepository"
	ActionCreateIssue                 Action = "CreateIssue"
	ActionAddIssueAssignees           Action = "AddIssueAssignees"
	ActionToggleIssueState            Action = "ToggleIssueState"
	ActionCreatePullRequest           Action = "CreatePullRequest"
	ActionAddPullRequestReviewers     Action = "AddPullRequestReviewers"
	ActionSetPullRequestState         Action = "SetPullRequestState"
	ActionLinkPullRequestIssueByIid   Action = "LinkPullRequestIssueByIid"
	ActionUnlinkPullRequestIssueByIid Action = "UnlinkPullRequestIssueByIid"
	ActionCreateBounty                Action = "CreateBounty"
	ActionUpdateBountyExpiry          Action = "UpdateBountyExpiry"
	ActionCloseBounty                 Action = "CloseBounty"
)

// Attribute keys carried by gitopia message events.
const (
	AttrAction               = "action"
	AttrCreator              = "Creator"
	AttrRepositoryID         = "RepositoryId"
	AttrRepositoryName       = "RepositoryName"
	AttrRepositoryOwnerID    = "RepositoryOwnerId"
	AttrRepositoryOwnerType  = "RepositoryOwnerType"
	AttrParentRepositoryID   = "ParentRepositoryId"
	AttrRepositoryBranch     = "RepositoryBranch"
	AttrRepositoryTag        = "RepositoryTag"
	AttrUserUsername         = "UserUsername"
	AttrAvatarURL            = "AvatarUrl"
	AttrDaoName              = "DaoName"
	AttrIssueIid             = "IssueIid"
	AttrIssueTitle           = "IssueTitle"
	AttrIssueState           = "IssueState"
	AttrAssignees            = "Assignees"
	AttrPullRequestIid       = "PullRequestIid"
	AttrPullRequestTitle     = "PullRequestTitle"
	AttrPullRequestState     = "PullRequestState"
	AttrPullRequestReviewers = "PullRequestReviewers"
	AttrBountyParentIid      = "BountyParentIid"
	AttrBountyAmount         = "BountyAmount"
	AttrBountyExpiry         = "BountyExpiry"
)

// OwnerTypeDAO marks a repository owned by a DAO. Any other owner type is a user.
const OwnerTypeDAO = "DAO"

// Wildcard subscribes a channel to every event.
const Wildcard = "*"

// RawEventAttribute is an attribute pair as transmitted by the node, base64 encoded.
type RawEventAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RawEvent is one ABCI event of a transaction result.
type RawEvent struct {
	Type       string              `json:"type"`
	Attributes []RawEventAttribute `json:"attributes"`
}

// EventAttributes holds the decoded attributes of a single message event.
type EventAttributes map[string]string

// Action returns the action discriminator of the event.
func (a EventAttributes) Action() Action {
	return Action(a[AttrAction])
}

// Owner returns the repository owner pair, if both halves are present.
func (a EventAttributes) Owner() (Owner, bool) {
	id, okID := a[AttrRepositoryOwnerID]
	typ, okType := a[AttrRepositoryOwnerType]
	if !okID || !okType {
		return Owner{}, false
	}
	return Owner{ID: id, Type: typ}, true
}

// Field is one name/value column of a notification.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Author identifies who triggered the event.
type Author struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"iconUrl,omitempty"`
}

// Notification is the displayable form of one domain event.
// A notification without a title is never dispatched.
type Notification struct {
	Title       string    `json:"title"`
	URL         string    `json:"url,omitempty"`
	Description string    `json:"description"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Fields      []Field   `json:"fields,omitempty"`
	Author      *Author   `json:"author,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Dispatchable reports whether the notification carries anything to show.
func (n *Notification) Dispatchable() bool {
	return n != nil && n.Title != ""
}

// Owner is the owner reference of a repository.
type Owner struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// User is a gitopia user profile.
type User struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// DAO is a gitopia DAO profile.
type DAO struct {
	Name string `json:"name"`
}

// Repository is the subset of repository details the relay needs.
type Repository struct {
	Owner Owner  `json:"owner"`
	Name  string `json:"name"`
}

// RepositoryRef is a repository with its owner already resolved to a display name.
type RepositoryRef struct {
	OwnerName string
	Name      string
}
