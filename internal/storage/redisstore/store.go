// internal/storage/redisstore/store.go
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"coffeemaker/internal/ingredient"
	"coffeemaker/internal/recipe"
	"coffeemaker/internal/storage"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "coffeemaker"

// Keys: recipes (hash id -> json), order (zset of ids by insertion), names
// (hash lower(name) -> id), seq (insertion counter), inventory (hash).
var saveScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then return 0 end
if redis.call('HEXISTS', KEYS[3], ARGV[2]) == 1 then return 0 end
local pos = redis.call('INCR', KEYS[4])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[2], pos, ARGV[1])
redis.call('HSET', KEYS[3], ARGV[2], ARGV[1])
return 1
`)

var updateScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if not current then return -1 end
local owner = redis.call('HGET', KEYS[2], ARGV[2])
if owner and owner ~= ARGV[1] then return 0 end
local old = cjson.decode(current)
redis.call('HDEL', KEYS[2], old.key)
redis.call('HSET', KEYS[2], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
return 1
`)

var deleteScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if not current then return 0 end
local old = cjson.decode(current)
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], old.key)
return 1
`)

type storedRecipe struct {
	ID    uuid.UUID `json:"id"`
	Key   string    `json:"key"`
	Name  string    `json:"name"`
	Price int       `json:"price"`
	ingredient.Amounts
}

type storedLevels struct {
	Coffee    int `redis:"coffee"`
	Milk      int `redis:"milk"`
	Sugar     int `redis:"sugar"`
	Chocolate int `redis:"chocolate"`
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Open connects to addr, which is either host:port or a redis:// URL.
func Open(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		opts = parsed
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Store keeps recipes and inventory in Redis. Multi-key writes run as Lua scripts so
// each one is atomic.
type Store struct {
	client redis.UniversalClient
	prefix string
}

func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(name string) string {
	return s.prefix + ":" + name
}

func (s *Store) LoadRecipes(ctx context.Context) ([]recipe.Recipe, error) {
	ids, err := s.client.ZRange(ctx, s.key("recipes:order"), 0, -1).Result()
	if err != nil {
		return nil, storage.Unavailable("load recipe order", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, s.key("recipes"), ids...).Result()
	if err != nil {
		return nil, storage.Unavailable("load recipes", err)
	}

	recipes := make([]recipe.Recipe, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var sr storedRecipe
		if err := json.Unmarshal([]byte(raw), &sr); err != nil {
			return nil, fmt.Errorf("decode recipe %s: %w", ids[i], err)
		}
		recipes = append(recipes, recipe.Recipe{ID: sr.ID, Name: sr.Name, Price: sr.Price, Amounts: sr.Amounts})
	}
	return recipes, nil
}

func encode(r recipe.Recipe) (string, error) {
	data, err := json.Marshal(storedRecipe{
		ID:      r.ID,
		Key:     nameKey(r.Name),
		Name:    r.Name,
		Price:   r.Price,
		Amounts: r.Amounts,
	})
	if err != nil {
		return "", fmt.Errorf("encode recipe %q: %w", r.Name, err)
	}
	return string(data), nil
}

func (s *Store) SaveRecipe(ctx context.Context, r recipe.Recipe) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	keys := []string{s.key("recipes"), s.key("recipes:order"), s.key("recipes:names"), s.key("recipes:seq")}
	res, err := saveScript.Run(ctx, s.client, keys, r.ID.String(), nameKey(r.Name), data).Int()
	if err != nil {
		return storage.Unavailable("save recipe", err)
	}
	if res == 0 {
		return fmt.Errorf("save recipe %q: %w", r.Name, storage.ErrConflict)
	}
	return nil
}

func (s *Store) UpdateRecipe(ctx context.Context, r recipe.Recipe) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	keys := []string{s.key("recipes"), s.key("recipes:names")}
	res, err := updateScript.Run(ctx, s.client, keys, r.ID.String(), nameKey(r.Name), data).Int()
	if err != nil {
		return storage.Unavailable("update recipe", err)
	}
	switch res {
	case -1:
		return fmt.Errorf("update recipe %s: %w", r.ID, storage.ErrNotFound)
	case 0:
		return fmt.Errorf("update recipe %q: %w", r.Name, storage.ErrConflict)
	}
	return nil
}

func (s *Store) DeleteRecipe(ctx context.Context, r recipe.Recipe) error {
	keys := []string{s.key("recipes"), s.key("recipes:order"), s.key("recipes:names")}
	res, err := deleteScript.Run(ctx, s.client, keys, r.ID.String()).Int()
	if err != nil {
		return storage.Unavailable("delete recipe", err)
	}
	if res == 0 {
		return fmt.Errorf("delete recipe %s: %w", r.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) LoadInventory(ctx context.Context) (ingredient.Amounts, error) {
	cmd := s.client.HGetAll(ctx, s.key("inventory"))
	fields, err := cmd.Result()
	if err != nil {
		return ingredient.Amounts{}, storage.Unavailable("load inventory", err)
	}
	if len(fields) == 0 {
		return ingredient.Amounts{}, fmt.Errorf("load inventory: %w", storage.ErrNotFound)
	}
	var levels storedLevels
	if err := cmd.Scan(&levels); err != nil {
		return ingredient.Amounts{}, fmt.Errorf("decode inventory: %w", err)
	}
	return ingredient.Amounts{
		Coffee:    levels.Coffee,
		Milk:      levels.Milk,
		Sugar:     levels.Sugar,
		Chocolate: levels.Chocolate,
	}, nil
}

func (s *Store) SaveInventory(ctx context.Context, levels ingredient.Amounts) error {
	err := s.client.HSet(ctx, s.key("inventory"),
		"coffee", levels.Coffee,
		"milk", levels.Milk,
		"sugar", levels.Sugar,
		"chocolate", levels.Chocolate,
	).Err()
	if err != nil {
		return storage.Unavailable("save inventory", err)
	}
	return nil
}

// Clear removes every key the store owns.
func (s *Store) Clear(ctx context.Context) error {
	keys := []string{
		s.key("recipes"), s.key("recipes:order"), s.key("recipes:names"),
		s.key("recipes:seq"), s.key("inventory"),
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return storage.Unavailable("clear", err)
	}
	return nil
}
