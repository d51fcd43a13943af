// Package access decides whether a requester may read a file. The resolver
// is a pure function over already-loaded records so every precedence and
// expiry rule is testable without storage.
package access

import (
	"time"

	"fileshare/internal/domain"
)

// GrantKind says which grant matched for a permitted request.
type GrantKind string

const (
	GrantOwner       GrantKind = "owner"
	GrantDirectShare GrantKind = "direct-share"
	GrantLink        GrantKind = "link"
)

// DenyReason says why a request was refused.
type DenyReason string

const (
	DenyNotFound    DenyReason = "not-found"
	DenyForbidden   DenyReason = "forbidden"
	DenyLinkExpired DenyReason = "link-expired"
)

// Decision is the resolver verdict. Share is the file's share record when
// one exists, regardless of outcome; the delivery path uses it to decide
// whether and what to log.
type Decision struct {
	Allowed bool
	Grant   GrantKind
	Reason  DenyReason
	Share   *domain.Share
}

func permit(kind GrantKind, share *domain.Share) Decision {
	return Decision{Allowed: true, Grant: kind, Share: share}
}

func deny(reason DenyReason, share *domain.Share) Decision {
	return Decision{Reason: reason, Share: share}
}

// Resolve decides whether requesterID may read file, optionally presenting
// a share-link token. share is the file's Share record or nil when the file
// was never shared.
//
// Precedence: owner, then direct grant, then link. A direct grant is never
// subject to link expiry — the expiry field belongs to the link, so a
// grantee keeps access even when the same share's link has lapsed.
func Resolve(file *domain.File, share *domain.Share, requesterID int64, linkToken string, now time.Time) Decision {
	if file == nil {
		return deny(DenyNotFound, nil)
	}

	if requesterID == file.OwnerID {
		return permit(GrantOwner, share)
	}

	if share == nil {
		return deny(DenyForbidden, nil)
	}

	if share.SharedWith(requesterID) {
		return permit(GrantDirectShare, share)
	}

	if linkToken != "" && share.LinkToken != nil && linkToken == *share.LinkToken {
		if LinkExpired(share, now) {
			return deny(DenyLinkExpired, share)
		}
		return permit(GrantLink, share)
	}

	return deny(DenyForbidden, share)
}

// LinkExpired reports whether the share's link expiry has strictly passed.
// A share without an expiry never expires.
func LinkExpired(share *domain.Share, now time.Time) bool {
	return share.LinkExpiry != nil && now.After(*share.LinkExpiry)
}
