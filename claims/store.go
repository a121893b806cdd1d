package claims

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	datastore "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/adhikar/registry/claimid"
	"github.com/adhikar/registry/namedlocker"
)

var log = logging.Logger("claims")

var claimsPrefix = datastore.NewKey("/claims")

// NewClaim carries the claimant-supplied fields of a claim.
type NewClaim struct {
	OwnerName     string
	Location      string
	ContentHash   string
	SubmittedBy   string
	RequiredVotes int
}

// Store is the durable record of claims and their votes. Every mutation
// re-reads and re-writes a claim under that claim's lock.
type Store interface {
	Create(ctx context.Context, nc NewClaim) (*Claim, error)
	Get(ctx context.Context, id string) (*Claim, error)
	ListPending(ctx context.Context) ([]*Claim, error)
	ListBySubmitter(ctx context.Context, submittedBy string) ([]*Claim, error)
	AppendVote(ctx context.Context, id string, vote Vote) (*Claim, error)
	Finalize(ctx context.Context, id string, ledgerTxRef string) (*Claim, error)
	RecordAnchorAttempt(ctx context.Context, id string, txRef string) (*Claim, error)
}

// compile time assertion that DatastoreStore implements Store
var _ Store = (*DatastoreStore)(nil)

// DatastoreStore keeps claims as JSON documents under /claims/<id> in any
// go-datastore implementation (memory, badger, s3).
type DatastoreStore struct {
	ds     datastore.Datastore
	locker *namedlocker.NamedLocker
	now    func() time.Time
}

func NewDatastoreStore(ds datastore.Datastore) *DatastoreStore {
	return &DatastoreStore{
		ds:     ds,
		locker: namedlocker.NewNamedLocker(),
		now:    time.Now,
	}
}

func claimKey(id string) datastore.Key {
	return claimsPrefix.ChildString(id)
}

func (s *DatastoreStore) Create(ctx context.Context, nc NewClaim) (*Claim, error) {
	nc.OwnerName = strings.TrimSpace(nc.OwnerName)
	nc.Location = strings.TrimSpace(nc.Location)
	nc.ContentHash = claimid.Normalize(nc.ContentHash)
	nc.SubmittedBy = strings.TrimSpace(nc.SubmittedBy)

	switch {
	case nc.OwnerName == "":
		return nil, errors.Wrap(ErrInvalidInput, "ownerName is required")
	case nc.Location == "":
		return nil, errors.Wrap(ErrInvalidInput, "location is required")
	case nc.ContentHash == "":
		return nil, errors.Wrap(ErrInvalidInput, "contentHash is required")
	case nc.SubmittedBy == "":
		return nil, errors.Wrap(ErrInvalidInput, "submittedBy is required")
	case nc.RequiredVotes < 1:
		return nil, errors.Wrapf(ErrInvalidInput, "requiredVotes must be positive, got %d", nc.RequiredVotes)
	}
	if _, err := claimid.Derive(nc.ContentHash); err != nil {
		return nil, errors.Wrap(ErrInvalidInput, err.Error())
	}

	now := s.now().UTC()
	c := &Claim{
		ID:            uuid.New().String(),
		OwnerName:     nc.OwnerName,
		Location:      nc.Location,
		ContentHash:   nc.ContentHash,
		Status:        StatusPending,
		Votes:         []Vote{},
		RequiredVotes: nc.RequiredVotes,
		SubmittedBy:   nc.SubmittedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.put(ctx, c); err != nil {
		return nil, err
	}
	log.Infow("claim created", "id", c.ID, "submittedBy", c.SubmittedBy, "requiredVotes", c.RequiredVotes)
	return c.clone(), nil
}

func (s *DatastoreStore) Get(ctx context.Context, id string) (*Claim, error) {
	s.locker.RLock(id)
	defer s.locker.RUnlock(id)
	return s.get(ctx, id)
}

func (s *DatastoreStore) ListPending(ctx context.Context) ([]*Claim, error) {
	return s.list(ctx, func(c *Claim) bool {
		return c.Status == StatusPending
	})
}

func (s *DatastoreStore) ListBySubmitter(ctx context.Context, submittedBy string) ([]*Claim, error) {
	return s.list(ctx, func(c *Claim) bool {
		return c.SubmittedBy == submittedBy
	})
}

// AppendVote checks for a duplicate voter and appends in one step under the
// claim lock.
func (s *DatastoreStore) AppendVote(ctx context.Context, id string, vote Vote) (*Claim, error) {
	if vote.VoterID == "" {
		return nil, errors.Wrap(ErrInvalidInput, "voterId is required")
	}
	return s.update(ctx, id, func(c *Claim) error {
		if c.IsVerified() {
			return ErrAlreadyFinalized
		}
		if c.HasVoted(vote.VoterID) {
			return errors.Wrapf(ErrDuplicateVote, "voter %s", vote.VoterID)
		}
		if vote.CastAt.IsZero() {
			vote.CastAt = s.now().UTC()
		}
		c.Votes = append(c.Votes, vote)
		c.VoteCount = len(c.Votes)
		return nil
	})
}

func (s *DatastoreStore) Finalize(ctx context.Context, id string, ledgerTxRef string) (*Claim, error) {
	if ledgerTxRef == "" {
		return nil, errors.Wrap(ErrInvalidInput, "ledgerTxRef is required")
	}
	return s.update(ctx, id, func(c *Claim) error {
		if c.IsVerified() {
			return ErrAlreadyFinalized
		}
		c.Status = StatusVerified
		c.LedgerTxRef = ledgerTxRef
		c.PendingTxRef = ""
		return nil
	})
}

// RecordAnchorAttempt remembers a submitted anchor transaction whose outcome
// is not yet known so a later retry can re-check it instead of resubmitting.
// An empty txRef clears it.
func (s *DatastoreStore) RecordAnchorAttempt(ctx context.Context, id string, txRef string) (*Claim, error) {
	return s.update(ctx, id, func(c *Claim) error {
		if c.IsVerified() {
			return ErrAlreadyFinalized
		}
		c.PendingTxRef = txRef
		return nil
	})
}

func (s *DatastoreStore) update(ctx context.Context, id string, mutate func(c *Claim) error) (*Claim, error) {
	s.locker.Lock(id)
	defer s.locker.Unlock(id)

	c, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.put(ctx, c); err != nil {
		return nil, err
	}
	return c.clone(), nil
}

func (s *DatastoreStore) get(ctx context.Context, id string) (*Claim, error) {
	if id == "" {
		return nil, errors.Wrap(ErrNotFound, "empty claim id")
	}
	raw, err := s.ds.Get(ctx, claimKey(id))
	if err == datastore.ErrNotFound {
		return nil, errors.Wrapf(ErrNotFound, "claim %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error getting claim %s", id)
	}
	return decodeClaim(raw)
}

func (s *DatastoreStore) put(ctx context.Context, c *Claim) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "error encoding claim")
	}
	if err := s.ds.Put(ctx, claimKey(c.ID), raw); err != nil {
		return errors.Wrapf(err, "error storing claim %s", c.ID)
	}
	return nil
}

func (s *DatastoreStore) list(ctx context.Context, keep func(c *Claim) bool) ([]*Claim, error) {
	results, err := s.ds.Query(ctx, query.Query{Prefix: claimsPrefix.String()})
	if err != nil {
		return nil, errors.Wrap(err, "error querying claims")
	}
	entries, err := results.Rest()
	if err != nil {
		return nil, errors.Wrap(err, "error reading claims")
	}

	var out []*Claim
	for _, e := range entries {
		c, err := decodeClaim(e.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "bad claim at %s", e.Key)
		}
		if keep(c) {
			out = append(out, c)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func decodeClaim(raw []byte) (*Claim, error) {
	c := &Claim{}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, errors.Wrap(err, "error decoding claim")
	}
	if c.Votes == nil {
		c.Votes = []Vote{}
	}
	return c, nil
}

func sortNewestFirst(cs []*Claim) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].ID > cs[j].ID
		}
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})
}
