package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys centraliza o layout de chaves no Redis sob um prefixo único.
type Keys struct {
	prefix string
}

func NewKeys(prefix string) Keys {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "susurro"
	}
	return Keys{prefix: prefix}
}

func (k Keys) Job(id string) string { return k.prefix + ":job:" + id }
func (k Keys) Pending() string      { return k.prefix + ":pending" }
func (k Keys) Processing() string   { return k.prefix + ":processing" }
func (k Keys) Completed() string    { return k.prefix + ":completed" }
func (k Keys) Failed() string       { return k.prefix + ":failed" }
func (k Keys) Stats() string        { return k.prefix + ":stats" }
func (k Keys) Speeds() string       { return k.prefix + ":speeds" }
func (k Keys) Gate() string         { return k.prefix + ":gate" }
func (k Keys) Lock() string         { return k.prefix + ":lock" }
func (k Keys) LockStatus() string   { return k.prefix + ":lock:status" }

// Dial cria o client Redis e valida a conexão com um ping curto.
// Erro aqui é de conectividade e deve abortar o startup.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisPinger implementa domain.Pinger para o health check.
type RedisPinger struct {
	rdb *redis.Client
}

func NewRedisPinger(rdb *redis.Client) *RedisPinger { return &RedisPinger{rdb: rdb} }

func (p *RedisPinger) Ping(ctx context.Context) error {
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
