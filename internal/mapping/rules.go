package mapping

import (
	"fmt"
	"strings"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
)

// requirement is a set of lookups a rule needs before formatting.
type requirement uint

const (
	needCreator requirement = 1 << iota
	needOwner
	needRepository
	needParentRepository
	needAssignees
	needReviewers
)

type formatFunc func(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error)

type rule struct {
	needs  requirement
	format formatFunc
}

const expiryLayout = "Jan 2, 2006"

var rules = map[domain.Action]rule{
	domain.ActionMultiSetRepositoryBranch:    {needCreator | needOwner, refsRule("Repository branches updated", domain.AttrRepositoryBranch, true)},
	domain.ActionMultiDeleteRepositoryBranch: {needCreator | needOwner, refsRule("Repository branches deleted", domain.AttrRepositoryBranch, false)},
	domain.ActionMultiSetRepositoryTag:       {needCreator | needOwner, refsRule("Repository tags updated", domain.AttrRepositoryTag, true)},
	domain.ActionMultiDeleteRepositoryTag:    {needCreator | needOwner, refsRule("Repository tags deleted", domain.AttrRepositoryTag, false)},
	domain.ActionCreateUser:                  {0, formatCreateUser},
	domain.ActionCreateDao:                   {needCreator, formatCreateDao},
	domain.ActionCreateRepository:            {needCreator | needOwner, formatCreateRepository},
	domain.ActionForkRepository:              {needCreator | needOwner | needParentRepository, formatForkRepository},
	domain.ActionCreateIssue:                 {needCreator | needRepository, formatCreateIssue},
	domain.ActionAddIssueAssignees:           {needCreator | needRepository | needAssignees, formatAddIssueAssignees},
	domain.ActionToggleIssueState:            {needCreator | needRepository, formatToggleIssueState},
	domain.ActionCreatePullRequest:           {needCreator | needRepository, formatCreatePullRequest},
	domain.ActionAddPullRequestReviewers:     {needCreator | needRepository | needReviewers, formatAddPullRequestReviewers},
	domain.ActionSetPullRequestState:         {needCreator | needRepository, formatSetPullRequestState},
	domain.ActionLinkPullRequestIssueByIid:   {needCreator | needRepository, issueLinkRule("Issue linked to PR")},
	domain.ActionUnlinkPullRequestIssueByIid: {needCreator | needRepository, issueLinkRule("Issue unlinked from PR")},
	domain.ActionCreateBounty:                {needCreator | needRepository, formatCreateBounty},
	domain.ActionUpdateBountyExpiry:          {needCreator | needRepository, formatUpdateBountyExpiry},
	domain.ActionCloseBounty:                 {needCreator | needRepository, formatCloseBounty},
}

// Handles reports whether action has a notification rule.
func Handles(action domain.Action) bool {
	_, ok := rules[action]
	return ok
}

// refsRule formats batched branch or tag updates. Names link to the tree
// when the refs still exist.
func refsRule(title, key string, linked bool) formatFunc {
	return func(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
		refs, err := parseJSONAttr[gitRef](a, key)
		if err != nil {
			return nil, err
		}
		owner, name := l.OwnerName, a.get(domain.AttrRepositoryName)
		repoURL := f.url(owner, name)

		names := make([]string, 0, len(refs))
		shas := make([]string, 0, len(refs))
		for _, ref := range refs {
			if linked {
				names = append(names, mdLink(ref.Name, f.url(owner, name, "tree", ref.Name)))
			} else {
				names = append(names, ref.Name)
			}
			shas = append(shas, ref.Sha)
		}

		return &domain.Notification{
			Title:       title,
			URL:         repoURL,
			Description: mdLink(owner+"/"+name, repoURL),
			Fields: []domain.Field{
				{Name: "Name", Value: strings.Join(names, "\n"), Inline: true},
				{Name: "Sha", Value: strings.Join(shas, "\n"), Inline: true},
			},
		}, nil
	}
}

func formatCreateUser(f *Formatter, a *attrReader, _ Lookups) (*domain.Notification, error) {
	username := a.get(domain.AttrUserUsername)
	profile := f.url(username)
	return &domain.Notification{
		Title:       "New user created",
		URL:         profile,
		Description: mdLink(username, profile),
		Thumbnail:   a.optional(domain.AttrAvatarURL),
	}, nil
}

func formatCreateDao(f *Formatter, a *attrReader, _ Lookups) (*domain.Notification, error) {
	name := a.get(domain.AttrDaoName)
	profile := f.url(name)
	return &domain.Notification{
		Title:       "New DAO created",
		URL:         profile,
		Description: mdLink(name, profile),
		Thumbnail:   a.optional(domain.AttrAvatarURL),
	}, nil
}

func formatCreateRepository(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
	name := a.get(domain.AttrRepositoryName)
	repoURL := f.url(l.OwnerName, name)
	return &domain.Notification{
		Title:       "New repository created",
		URL:         repoURL,
		Description: mdLink(name, repoURL),
	}, nil
}

func formatForkRepository(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
	parent := l.Repository
	parentURL := f.url(parent.OwnerName, parent.Name)
	forkName := a.get(domain.AttrRepositoryName)
	forkURL := f.url(l.OwnerName, forkName)
	return &domain.Notification{
		Title: "Repository forked",
		URL:   parentURL,
		Description: mdLink(parent.OwnerName+"/"+parent.Name, parentURL) +
			"\nFork repo: " + mdLink(l.OwnerName+"/"+forkName, forkURL),
	}, nil
}

func (f *Formatter) issueURL(repo domain.RepositoryRef, iid string) string {
	return f.url(repo.OwnerName, repo.Name, "issues", iid)
}

func (f *Formatter) pullURL(repo domain.RepositoryRef, iid string) string {
	return f.url(repo.OwnerName, repo.Name, "pulls", iid)
}

func repoRef(repo domain.RepositoryRef, iid string) string {
	return repo.OwnerName + "/" + repo.Name + " #" + iid
}

func formatCreateIssue(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
	iid, title := a.get(domain.AttrIssueIid), a.get(domain.AttrIssueTitle)
	u := f.issueURL(l.Repository, iid)
	return &domain.Notification{
		Title:       "New issue created",
		URL:         u,
		Description: mdLink("#"+iid+" "+title, u),
	}, nil
}

func formatAddIssueAssignees(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
	iid := a.get(domain.AttrIssueIid)
	u := f.issueURL(l.Repository, iid)
	return &domain.Notification{
		Title:       "Issue assigned",
		URL:         u,
		Description: mdLink(repoRef(l.Repository, iid), u) + "\nAssignees: " + f.userLinks(l.Assignees),
	}, nil
}

func formatToggleIssueState(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
	var title string
	switch state := a.get(domain.AttrIssueState); state {
	case "OPEN":
		title = "Issue re-opened"
	case "CLOSED":
		title = "Issue closed"
	default:
		return nil, fmt.Errorf("%w: issue state %q", domain.ErrInvalidState, state)
	}
	iid := a.get(domain.AttrIssueIid)
	u := f.issueURL(l.Repository, iid)
	return &domain.Notification{
		Title:       title,
		URL:         u,
		Description: mdLink(repoRef(l.Repository, iid), u),
	}, nil
}

func formatCreatePullRequest(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
	iid, title := a.get(domain.AttrPullRequestIid), a.get(domain.AttrPullRequestTitle)
	u := f.pullURL(l.Repository, iid)
	return &domain.Notification{
		Title:       "New PR created",
		URL:         u,
		Description: mdLink("#"+iid+" "+title, u),
	}, nil
}

func formatAddPullRequestReviewers(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
	iid := a.get(domain.AttrPullRequestIid)
	u := f.pullURL(l.Repository, iid)
	return &domain.Notification{
		Title:       "PR reviewers added",
		URL:         u,
		Description: mdLink(repoRef(l.Repository, iid), u) + "\nReviewers: " + f.userLinks(l.Reviewers),
	}, nil
}

func formatSetPullRequestState(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
	var title string
	switch state := a.get(domain.AttrPullRequestState); state {
	case "MERGED":
		title = "PR merged"
	case "CLOSED":
		title = "PR closed"
	default:
		return nil, fmt.Errorf("%w: pull request state %q", domain.ErrInvalidState, state)
	}
	iid := a.get(domain.AttrPullRequestIid)
	u := f.pullURL(l.Repository, iid)
	return &domain.Notification{
		Title:       title,
		URL:         u,
		Description: mdLink(repoRef(l.Repository, iid), u),
	}, nil
}

func issueLinkRule(title string) formatFunc {
	return func(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
		prIid, issueIid := a.get(domain.AttrPullRequestIid), a.get(domain.AttrIssueIid)
		u := f.pullURL(l.Repository, prIid)
		return &domain.Notification{
			Title: title,
			URL:   u,
			Description: mdLink(repoRef(l.Repository, prIid), u) +
				"\nIssue: " + mdLink("#"+issueIid, f.issueURL(l.Repository, issueIid)),
		}, nil
	}
}

func bountyDescription(f *Formatter, l Lookups, iid string) (string, string) {
	u := f.issueURL(l.Repository, iid)
	return u, mdLink(repoRef(l.Repository, iid), u)
}

func formatCreateBounty(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
	tokens, err := parseJSONAttr[coin](a, domain.AttrBountyAmount)
	if err != nil {
		return nil, err
	}
	denoms := make([]string, 0, len(tokens))
	amounts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		denoms = append(denoms, t.Denom)
		amounts = append(amounts, t.Amount.String())
	}

	u, desc := bountyDescription(f, l, a.get(domain.AttrBountyParentIid))
	return &domain.Notification{
		Title:       "New bounty added",
		URL:         u,
		Description: desc + "\n" + mdLink("Bounties", u+"/bounties"),
		Fields: []domain.Field{
			{Name: "Denom", Value: strings.Join(denoms, "\n"), Inline: true},
			{Name: "Amount", Value: strings.Join(amounts, "\n"), Inline: true},
		},
	}, nil
}

func formatUpdateBountyExpiry(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
	expiry, err := parseUnixSeconds(a.get(domain.AttrBountyExpiry))
	if err != nil {
		return nil, err
	}
	u, desc := bountyDescription(f, l, a.get(domain.AttrBountyParentIid))
	return &domain.Notification{
		Title: "Bounty expiry extended",
		URL:   u,
		Description: desc + "\nNew expiry: " + expiry.Format(expiryLayout) +
			"\n" + mdLink("Bounties", u+"/bounties"),
	}, nil
}

func formatCloseBounty(f *Formatter, a *attrReader, l Lookups) (*domain.Notification, error) {
	u, desc := bountyDescription(f, l, a.get(domain.AttrBountyParentIid))
	return &domain.Notification{
		Title:       "Bounty closed",
		URL:         u,
		Description: desc + "\n" + mdLink("Bounties", u+"/bounties"),
	}, nil
}
