package attest

import "context"

// Store describes persistence operations required by the campaign subsystem.
type Store interface {
	Campaigns(ctx context.Context) CampaignStore
	Records(ctx context.Context) RecordStore
	Invites(ctx context.Context) InviteStore
}

// CampaignStore manages campaigns.
type CampaignStore interface {
	Create(ctx context.Context, c *Campaign) error
	Find(ctx context.Context, id string) (*Campaign, error)
	List(ctx context.Context) ([]*Campaign, error)
	Update(ctx context.Context, c *Campaign) error
	Delete(ctx context.Context, id string) error
}

// RecordStore manages attestation records. Create must enforce the
// (campaign_id, user_id) uniqueness invariant.
type RecordStore interface {
	Create(ctx context.Context, r *Record) error
	Find(ctx context.Context, id string) (*Record, error)
	FindByCampaignAndUser(ctx context.Context, campaignID, userID string) (*Record, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*Record, error)
	ListByUser(ctx context.Context, userID string) ([]*Record, error)
	Update(ctx context.Context, r *Record) error
}

// InviteStore manages pending invites.
type InviteStore interface {
	Create(ctx context.Context, inv *PendingInvite) error
	FindByToken(ctx context.Context, token string) (*PendingInvite, error)
	ListByEmail(ctx context.Context, email string) ([]*PendingInvite, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*PendingInvite, error)
	Update(ctx context.Context, inv *PendingInvite) error
}
