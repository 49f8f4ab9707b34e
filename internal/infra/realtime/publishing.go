package realtime

import (
	"context"

	domain "github.com/bryanwahyu/codesight/internal/domain/history"
)

// PublishingRepository emits a change event after every successful
// mutation. It stands in for a database change feed on stores without one
// (mysql, sqlite).
type PublishingRepository struct {
	domain.Repository
	broker *Broker
}

func NewPublishingRepository(repo domain.Repository, broker *Broker) *PublishingRepository {
	return &PublishingRepository{Repository: repo, broker: broker}
}

func (r *PublishingRepository) Insert(ctx context.Context, owner string, n domain.NewItem) (*domain.Item, error) {
	it, err := r.Repository.Insert(ctx, owner, n)
	if err != nil {
		return nil, err
	}
	r.broker.Publish(domain.ChangeEvent{Type: domain.EventInsert, New: it.Clone()})
	return it, nil
}

func (r *PublishingRepository) Update(ctx context.Context, owner string, id domain.ItemID, p domain.Patch) (*domain.Item, error) {
	it, err := r.Repository.Update(ctx, owner, id, p)
	if err != nil {
		return nil, err
	}
	r.broker.Publish(domain.ChangeEvent{Type: domain.EventUpdate, New: it.Clone()})
	return it, nil
}

func (r *PublishingRepository) Delete(ctx context.Context, owner string, id domain.ItemID) error {
	if err := r.Repository.Delete(ctx, owner, id); err != nil {
		return err
	}
	r.broker.Publish(domain.ChangeEvent{Type: domain.EventDelete, Old: &domain.Item{ID: id, OwnerID: owner}})
	return nil
}
