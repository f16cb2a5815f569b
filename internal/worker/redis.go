package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"agrimate/internal/kvstore"
	"agrimate/internal/models"
)

const (
	redisInvalidateChannel = "agrimate:workspace:invalidate"
	redisPendingPrefix     = "agrimate:pending:"
	redisStateTTL          = 30 * time.Minute
)

type invalidateMessage struct {
	Origin string `json:"origin"`
	Email  string `json:"email"`
}

// stateRedis shares workspace state between server instances. A nil
// *stateRedis is valid and does nothing.
type stateRedis struct {
	client *goredis.Client
	origin string

	pubsub  *goredis.PubSub
	stopped chan struct{} // closed when the listener returns
}

func newStateCache(store kvstore.Store) *stateRedis {
	r, ok := store.(*kvstore.Redis)
	if !ok || r.Raw() == nil {
		return nil
	}
	return &stateRedis{client: r.Raw(), origin: uuid.NewString()}
}

// startListener redis listener using sub chan
func (r *stateRedis) startListener(handler func(email string)) {
	if r == nil || handler == nil {
		return
	}
	r.pubsub = r.client.Subscribe(context.Background(), redisInvalidateChannel)
	r.stopped = make(chan struct{})
	ch := r.pubsub.Channel()
	go func() {
		defer close(r.stopped)
		for msg := range ch {
			var inv invalidateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				log.Printf("workspace invalidation decode failed: %v", err)
				continue
			}
			if inv.Origin == r.origin {
				continue
			}
			handler(inv.Email)
		}
	}()
}

// stopListener closes the subscription and waits for the listener to return.
func (r *stateRedis) stopListener() {
	if r == nil || r.pubsub == nil {
		return
	}
	if err := r.pubsub.Close(); err != nil {
		log.Printf("workspace invalidation unsubscribe failed: %v", err)
	}
	<-r.stopped
}

// publishInvalidation tells other instances to drop the cached workspace.
func (r *stateRedis) publishInvalidation(email string) {
	if r == nil {
		return
	}
	payload, err := json.Marshal(invalidateMessage{Origin: r.origin, Email: email})
	if err != nil {
		log.Printf("workspace invalidation marshal failed: %v", err)
		return
	}
	if err := r.client.Publish(context.Background(), redisInvalidateChannel, payload).Err(); err != nil {
		log.Printf("workspace publish invalidation failed: %v", err)
	}
}

func (r *stateRedis) cachePending(email string, atts []models.Attachment) {
	if r == nil {
		return
	}
	ctx := context.Background()
	key := redisPendingPrefix + email
	if len(atts) == 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			log.Printf("workspace rdb pending delete failed: %v", err)
		}
		return
	}
	data, err := json.Marshal(atts)
	if err != nil {
		log.Printf("workspace rdb pending marshal failed: %v", err)
		return
	}
	if err := r.client.Set(ctx, key, data, redisStateTTL).Err(); err != nil {
		log.Printf("workspace rdb pending failed: %v", err)
	}
}

func (r *stateRedis) loadPending(email string) ([]models.Attachment, bool) {
	if r == nil {
		return nil, false
	}
	raw, err := r.client.Get(context.Background(), redisPendingPrefix+email).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			log.Printf("workspace load pending rdb failed: %v", err)
		}
		return nil, false
	}
	var atts []models.Attachment
	if err := json.Unmarshal([]byte(raw), &atts); err != nil {
		log.Printf("workspace decode pending rdb failed: %v", err)
		return nil, false
	}
	return atts, true
}
