package cache

import (
	"context"
	"errors"
	"reelcache/pkg/models"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each partition in a redis hash and the partition names in
// a sorted set scored by creation time, so several proxies can share one set
// of partitions.
type RedisStore struct {
	client    *redis.Client
	namespace string
	compress  bool
	ctx       context.Context
}

func NewRedisStore(config *models.RedisConfig, compress bool) *RedisStore {
	db := 0
	if config.DB != nil {
		db = *config.DB
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       db,
	})

	namespace := config.KeyNamespace
	if namespace == "" {
		namespace = "reelcache:"
	} else if namespace[len(namespace)-1] != ':' {
		namespace += ":"
	}

	return &RedisStore{
		client:    client,
		namespace: namespace,
		compress:  compress,
		ctx:       context.Background(),
	}
}

func (r *RedisStore) namesKey() string {
	return r.namespace + "partitions"
}

func (r *RedisStore) partitionKey(name string) string {
	return r.namespace + "partition:" + name
}

func (r *RedisStore) Open(name string) (Partition, error) {
	if err := r.register(r.client, name).Err(); err != nil {
		return nil, err
	}
	return &RedisPartition{store: r, name: name}, nil
}

// register adds name to the partition set unless it is already listed.
func (r *RedisStore) register(c redis.Cmdable, name string) *redis.IntCmd {
	return c.ZAddNX(r.ctx, r.namesKey(), redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: name,
	})
}

func (r *RedisStore) Has(name string) (bool, error) {
	err := r.client.ZScore(r.ctx, r.namesKey(), name).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return err == nil, err
}

func (r *RedisStore) Names() ([]string, error) {
	return r.client.ZRange(r.ctx, r.namesKey(), 0, -1).Result()
}

func (r *RedisStore) Delete(name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := r.client.TxPipelined(r.ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(r.ctx, r.namesKey(), name)
		pipe.Del(r.ctx, r.partitionKey(name))
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed.Val() > 0, nil
}

func (r *RedisStore) Match(key string) (*Entry, bool, error) {
	names, err := r.Names()
	if err != nil {
		return nil, false, err
	}
	partitions := make([]Partition, 0, len(names))
	for _, name := range names {
		partitions = append(partitions, &RedisPartition{store: r, name: name})
	}
	return matchIn(partitions, key)
}

func (r *RedisStore) Ping() error {
	return r.client.Ping(r.ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

type RedisPartition struct {
	store *RedisStore
	name  string
}

func (p *RedisPartition) Name() string {
	return p.name
}

func (p *RedisPartition) Match(key string) (*Entry, bool, error) {
	data, err := p.store.client.HGet(p.store.ctx, p.store.partitionKey(p.name), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}

	entry, err := DecodeEntry(data)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Put re-registers the partition with the write, so a partition deleted while
// a handle to it was still in use stays visible to Names and later sweeps.
func (p *RedisPartition) Put(key string, entry *Entry) error {
	stored := *entry
	stored.Key = key
	data := EncodeEntry(&stored, p.store.compress)

	_, err := p.store.client.TxPipelined(p.store.ctx, func(pipe redis.Pipeliner) error {
		p.store.register(pipe, p.name)
		pipe.HSet(p.store.ctx, p.store.partitionKey(p.name), key, data)
		return nil
	})
	return err
}

func (p *RedisPartition) Delete(key string) (bool, error) {
	n, err := p.store.client.HDel(p.store.ctx, p.store.partitionKey(p.name), key).Result()
	return n > 0, err
}

func (p *RedisPartition) Keys() ([]string, error) {
	return p.store.client.HKeys(p.store.ctx, p.store.partitionKey(p.name)).Result()
}
