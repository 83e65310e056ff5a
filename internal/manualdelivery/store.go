package manualdelivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "delivery_request:"

// RequestStore keeps open delivery requests in Redis. Requests are drafts,
// not documents; they expire on their own and disappear the moment they are
// confirmed or discarded.
type RequestStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRequestStore(client *redis.Client, ttl time.Duration) *RequestStore {
	return &RequestStore{client: client, ttl: ttl}
}

// Save writes the request and restarts its TTL.
func (s *RequestStore) Save(ctx context.Context, req *DeliveryRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal delivery request: %w", err)
	}
	if err := s.client.Set(ctx, key(req.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store delivery request: %w", err)
	}
	return nil
}

// Get loads an open request.
func (s *RequestStore) Get(ctx context.Context, id uuid.UUID) (*DeliveryRequest, error) {
	payload, err := s.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("load delivery request: %w", err)
	}
	return unmarshal(payload)
}

// Consume atomically removes and returns the request, so two concurrent
// confirmations cannot both dispatch it.
func (s *RequestStore) Consume(ctx context.Context, id uuid.UUID) (*DeliveryRequest, error) {
	payload, err := s.client.GetDel(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("consume delivery request: %w", err)
	}
	return unmarshal(payload)
}

// Delete discards the request. Deleting an already-gone request is not an
// error.
func (s *RequestStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("delete delivery request: %w", err)
	}
	return nil
}

func key(id uuid.UUID) string {
	return keyPrefix + id.String()
}

func unmarshal(payload []byte) (*DeliveryRequest, error) {
	var req DeliveryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("unmarshal delivery request: %w", err)
	}
	return &req, nil
}
