package newsletter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// SubscriberDetail is a subscriber with the topics it is subscribed to.
type SubscriberDetail struct {
	storage.Subscriber
	Topics []storage.Topic
}

// UpdateSubscriberInput carries a partial subscriber update.
type UpdateSubscriberInput struct {
	Email    *string
	IsActive *bool
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) CreateSubscriber(ctx context.Context, email string) (storage.Subscriber, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return storage.Subscriber{}, validationError("email is required")
	}

	sub, err := s.q.CreateSubscriber(ctx, email)
	if err != nil {
		return storage.Subscriber{}, storeError("subscriber "+email, err)
	}
	return sub, nil
}

func (s *Service) ListSubscribers(ctx context.Context) ([]storage.Subscriber, error) {
	subs, err := s.q.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return subs, nil
}

func (s *Service) GetSubscriber(ctx context.Context, id int64) (SubscriberDetail, error) {
	sub, err := s.q.GetSubscriber(ctx, id)
	if err != nil {
		return SubscriberDetail{}, storeError(fmt.Sprintf("subscriber %d", id), err)
	}
	topics, err := s.q.ListSubscriberTopics(ctx, id)
	if err != nil {
		return SubscriberDetail{}, fmt.Errorf("list subscriber topics: %w", err)
	}
	return SubscriberDetail{Subscriber: sub, Topics: topics}, nil
}

func (s *Service) UpdateSubscriber(ctx context.Context, id int64, in UpdateSubscriberInput) (storage.Subscriber, error) {
	sub, err := s.q.GetSubscriber(ctx, id)
	if err != nil {
		return storage.Subscriber{}, storeError(fmt.Sprintf("subscriber %d", id), err)
	}

	params := storage.UpdateSubscriberParams{ID: id, Email: sub.Email, IsActive: sub.IsActive}
	if in.Email != nil {
		params.Email = NormalizeEmail(*in.Email)
		if params.Email == "" {
			return storage.Subscriber{}, validationError("email must not be empty")
		}
	}
	if in.IsActive != nil {
		params.IsActive = *in.IsActive
	}

	updated, err := s.q.UpdateSubscriber(ctx, params)
	if err != nil {
		return storage.Subscriber{}, storeError("subscriber "+params.Email, err)
	}
	return updated, nil
}

// DeleteSubscriber removes a subscriber together with its subscriptions.
func (s *Service) DeleteSubscriber(ctx context.Context, id int64) error {
	if err := s.q.DeleteSubscriber(ctx, id); err != nil {
		return storeError(fmt.Sprintf("subscriber %d", id), err)
	}
	return nil
}

// Subscribe adds a subscription. Both sides must exist.
func (s *Service) Subscribe(ctx context.Context, subscriberID, topicID int64) (storage.Subscription, error) {
	if _, err := s.q.GetSubscriber(ctx, subscriberID); err != nil {
		return storage.Subscription{}, storeError(fmt.Sprintf("subscriber %d", subscriberID), err)
	}
	if _, err := s.q.GetTopic(ctx, topicID); err != nil {
		return storage.Subscription{}, storeError(fmt.Sprintf("topic %d", topicID), err)
	}

	sub, err := s.q.CreateSubscription(ctx, subscriberID, topicID)
	if err != nil {
		return storage.Subscription{}, storeError("subscription", err)
	}

	s.log.Info().
		Int64("subscriber_id", subscriberID).
		Int64("topic_id", topicID).
		Msg("subscribed")
	return sub, nil
}

// Unsubscribe removes a subscription, failing with ErrNotFound when absent.
func (s *Service) Unsubscribe(ctx context.Context, subscriberID, topicID int64) error {
	if err := s.q.DeleteSubscription(ctx, subscriberID, topicID); err != nil {
		return storeError("subscription", err)
	}
	s.log.Info().
		Int64("subscriber_id", subscriberID).
		Int64("topic_id", topicID).
		Msg("unsubscribed")
	return nil
}

// UnsubscribeLink handles the link embedded in every email. Following it
// twice is not an error.
func (s *Service) UnsubscribeLink(ctx context.Context, subscriberID, topicID int64) error {
	err := s.Unsubscribe(ctx, subscriberID, topicID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
