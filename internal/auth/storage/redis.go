package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amoylab/tokenbridge/internal/common/cnst"
	"github.com/amoylab/tokenbridge/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisStorage implements the Store interface using Redis.
// Every key shares one hash tag so MULTI/EXEC also works in cluster mode.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(clusterType, addr, masterName, username, password string, db int, prefix string) (*RedisStorage, error) {
	addrs := utils.SplitByMultipleDelimiters(addr, ";", ",")
	opts := &redis.UniversalOptions{
		Addrs:    addrs,
		Username: username,
		Password: password,
	}
	if clusterType == cnst.RedisClusterTypeSentinel {
		opts.MasterName = masterName
	}
	if clusterType != cnst.RedisClusterTypeCluster {
		// can not set db in cluster mode
		opts.DB = db
	}
	client := redis.NewUniversalClient(opts)

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if prefix == "" {
		prefix = cnst.AppName
	}
	return &RedisStorage{
		client: client,
		prefix: "{" + prefix + "}",
	}, nil
}

func (s *RedisStorage) key(kind, id string) string {
	return s.prefix + ":" + kind + ":" + id
}

func (s *RedisStorage) familyKey(kind string, userID uint, appID string) string {
	return s.prefix + ":" + kind + ":" + strconv.FormatUint(uint64(userID), 10) + ":" + appID
}

// key kinds
const (
	kindApp           = "app"
	kindAppID         = "app_id"
	kindAccess        = "at"
	kindAccessToken   = "at_token"
	kindAccessSource  = "at_source"
	kindRefresh       = "rt"
	kindRefreshToken  = "rt_token"
	kindRefreshAccess = "rt_access"
	kindFamilyAccess  = "fam_at"
	kindFamilyRefresh = "fam_rt"
)

func (s *RedisStorage) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	err := s.client.Watch(ctx, fn, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func getJSON(ctx context.Context, c redis.Cmdable, key string, v any) error {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func getString(ctx context.Context, c redis.Cmdable, key string) (string, error) {
	val, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

func (s *RedisStorage) GetApplication(ctx context.Context, clientID string) (*Application, error) {
	var app Application
	if err := getJSON(ctx, s.client, s.key(kindApp, clientID), &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *RedisStorage) GetApplicationByID(ctx context.Context, id string) (*Application, error) {
	clientID, err := getString(ctx, s.client, s.key(kindAppID, id))
	if err != nil {
		return nil, err
	}
	return s.GetApplication(ctx, clientID)
}

func (s *RedisStorage) CreateApplication(ctx context.Context, app *Application) error {
	app.prepare()
	appKey := s.key(kindApp, app.ClientID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, appKey).Result()
		if err != nil {
			return err
		}
		if exists == 1 {
			return ErrAlreadyExists
		}

		now := time.Now()
		app.CreatedAt, app.UpdatedAt = now, now
		data, err := json.Marshal(app)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, appKey, data, 0)
			pipe.Set(ctx, s.key(kindAppID, app.ID), app.ClientID, 0)
			return nil
		})
		return err
	}, appKey)
}

func (s *RedisStorage) readAccess(ctx context.Context, c redis.Cmdable, id string) (*AccessToken, error) {
	var at AccessToken
	if err := getJSON(ctx, c, s.key(kindAccess, id), &at); err != nil {
		return nil, err
	}
	return &at, nil
}

func (s *RedisStorage) readRefresh(ctx context.Context, c redis.Cmdable, id string) (*RefreshToken, error) {
	var rt RefreshToken
	if err := getJSON(ctx, c, s.key(kindRefresh, id), &rt); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (s *RedisStorage) GetAccessToken(ctx context.Context, token string) (*AccessToken, error) {
	id, err := getString(ctx, s.client, s.key(kindAccessToken, token))
	if err != nil {
		return nil, err
	}
	return s.readAccess(ctx, s.client, id)
}

func (s *RedisStorage) GetAccessTokenByID(ctx context.Context, id string) (*AccessToken, error) {
	return s.readAccess(ctx, s.client, id)
}

func (s *RedisStorage) GetAccessTokenBySource(ctx context.Context, refreshID string) (*AccessToken, error) {
	id, err := getString(ctx, s.client, s.key(kindAccessSource, refreshID))
	if err != nil {
		return nil, err
	}
	return s.readAccess(ctx, s.client, id)
}

func (s *RedisStorage) LatestAccessToken(ctx context.Context, userID uint, appID string) (*AccessToken, error) {
	ids, err := s.client.ZRevRange(ctx, s.familyKey(kindFamilyAccess, userID, appID), 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return s.readAccess(ctx, s.client, ids[0])
}

func (s *RedisStorage) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	id, err := getString(ctx, s.client, s.key(kindRefreshToken, token))
	if err != nil {
		return nil, err
	}
	return s.readRefresh(ctx, s.client, id)
}

func (s *RedisStorage) GetRefreshTokenByAccessID(ctx context.Context, accessID string) (*RefreshToken, error) {
	id, err := getString(ctx, s.client, s.key(kindRefreshAccess, accessID))
	if err != nil {
		return nil, err
	}
	return s.readRefresh(ctx, s.client, id)
}

func (s *RedisStorage) writeAccess(ctx context.Context, pipe redis.Pipeliner, at *AccessToken) error {
	data, err := json.Marshal(at)
	if err != nil {
		return err
	}
	pipe.Set(ctx, s.key(kindAccess, at.ID), data, 0)
	pipe.Set(ctx, s.key(kindAccessToken, at.Token), at.ID, 0)
	if at.SourceRefreshID != "" {
		pipe.Set(ctx, s.key(kindAccessSource, at.SourceRefreshID), at.ID, 0)
	}
	pipe.ZAdd(ctx, s.familyKey(kindFamilyAccess, at.UserID, at.ApplicationID), redis.Z{
		Score:  float64(at.CreatedAt.UnixNano()),
		Member: at.ID,
	})
	return nil
}

func (s *RedisStorage) deleteAccess(ctx context.Context, pipe redis.Pipeliner, at *AccessToken) {
	pipe.Del(ctx, s.key(kindAccess, at.ID), s.key(kindAccessToken, at.Token), s.key(kindRefreshAccess, at.ID))
	if at.SourceRefreshID != "" {
		pipe.Del(ctx, s.key(kindAccessSource, at.SourceRefreshID))
	}
	pipe.ZRem(ctx, s.familyKey(kindFamilyAccess, at.UserID, at.ApplicationID), at.ID)
}

func (s *RedisStorage) writeRefresh(ctx context.Context, pipe redis.Pipeliner, rt *RefreshToken) error {
	data, err := json.Marshal(rt)
	if err != nil {
		return err
	}
	pipe.Set(ctx, s.key(kindRefresh, rt.ID), data, 0)
	pipe.Set(ctx, s.key(kindRefreshToken, rt.Token), rt.ID, 0)
	if rt.AccessTokenID != "" {
		pipe.Set(ctx, s.key(kindRefreshAccess, rt.AccessTokenID), rt.ID, 0)
	}
	pipe.SAdd(ctx, s.familyKey(kindFamilyRefresh, rt.UserID, rt.ApplicationID), rt.ID)
	return nil
}

func (s *RedisStorage) deleteRefresh(ctx context.Context, pipe redis.Pipeliner, rt *RefreshToken) {
	pipe.Del(ctx, s.key(kindRefresh, rt.ID), s.key(kindRefreshToken, rt.Token))
	if rt.AccessTokenID != "" {
		pipe.Del(ctx, s.key(kindRefreshAccess, rt.AccessTokenID))
	}
	pipe.SRem(ctx, s.familyKey(kindFamilyRefresh, rt.UserID, rt.ApplicationID), rt.ID)
}

// linkedAccess loads the access token of rt, nil when it is gone
func (s *RedisStorage) linkedAccess(ctx context.Context, c redis.Cmdable, rt *RefreshToken) (*AccessToken, error) {
	if rt.AccessTokenID == "" {
		return nil, nil
	}
	at, err := s.readAccess(ctx, c, rt.AccessTokenID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return at, err
}

func (s *RedisStorage) ensureUnique(ctx context.Context, tx *redis.Tx, access *AccessToken, refresh *RefreshToken) error {
	keys := []string{s.key(kindAccess, access.ID), s.key(kindAccessToken, access.Token)}
	if refresh != nil {
		keys = append(keys, s.key(kindRefresh, refresh.ID), s.key(kindRefreshToken, refresh.Token))
	}
	n, err := tx.Exists(ctx, keys...).Result()
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStorage) SaveTokenPair(ctx context.Context, access *AccessToken, refresh *RefreshToken) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		if err := s.ensureUnique(ctx, tx, access, refresh); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := s.writeAccess(ctx, pipe, access); err != nil {
				return err
			}
			return s.writeRefresh(ctx, pipe, refresh)
		})
		return err
	}, s.key(kindAccessToken, access.Token), s.key(kindRefreshToken, refresh.Token))
}

func (s *RedisStorage) RotateRefreshToken(ctx context.Context, oldID string, revokedAt time.Time, access *AccessToken, refresh *RefreshToken) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		old, err := s.readRefresh(ctx, tx, oldID)
		if errors.Is(err, ErrNotFound) {
			return ErrConflict
		}
		if err != nil {
			return err
		}
		if old.IsRevoked() {
			return ErrConflict
		}
		oldAccess, err := s.linkedAccess(ctx, tx, old)
		if err != nil {
			return err
		}
		if err := s.ensureUnique(ctx, tx, access, refresh); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if oldAccess != nil {
				s.deleteAccess(ctx, pipe, oldAccess)
			}
			pipe.Del(ctx, s.key(kindRefreshAccess, old.AccessTokenID))
			stamp := revokedAt
			old.Revoked = &stamp
			old.AccessTokenID = ""
			if err := s.writeRefresh(ctx, pipe, old); err != nil {
				return err
			}
			if err := s.writeAccess(ctx, pipe, access); err != nil {
				return err
			}
			return s.writeRefresh(ctx, pipe, refresh)
		})
		return err
	}, s.key(kindRefresh, oldID), s.key(kindAccessToken, access.Token), s.key(kindRefreshToken, refresh.Token))
}

func (s *RedisStorage) RelinkRefreshToken(ctx context.Context, refreshID string, access *AccessToken) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		rt, err := s.readRefresh(ctx, tx, refreshID)
		if errors.Is(err, ErrNotFound) {
			return ErrConflict
		}
		if err != nil {
			return err
		}
		if rt.IsRevoked() {
			return ErrConflict
		}
		oldAccess, err := s.linkedAccess(ctx, tx, rt)
		if err != nil {
			return err
		}
		if err := s.ensureUnique(ctx, tx, access, nil); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if oldAccess != nil {
				s.deleteAccess(ctx, pipe, oldAccess)
			}
			if err := s.writeAccess(ctx, pipe, access); err != nil {
				return err
			}
			rt.AccessTokenID = access.ID
			return s.writeRefresh(ctx, pipe, rt)
		})
		return err
	}, s.key(kindRefresh, refreshID), s.key(kindAccessToken, access.Token))
}

// family loads every access and refresh token of (user, app) through c
func (s *RedisStorage) family(ctx context.Context, c redis.Cmdable, userID uint, appID string) ([]*AccessToken, []*RefreshToken, error) {
	accessIDs, err := c.ZRange(ctx, s.familyKey(kindFamilyAccess, userID, appID), 0, -1).Result()
	if err != nil {
		return nil, nil, err
	}
	refreshIDs, err := c.SMembers(ctx, s.familyKey(kindFamilyRefresh, userID, appID)).Result()
	if err != nil {
		return nil, nil, err
	}

	var accesses []*AccessToken
	for _, id := range accessIDs {
		at, err := s.readAccess(ctx, c, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		accesses = append(accesses, at)
	}
	var refreshes []*RefreshToken
	for _, id := range refreshIDs {
		rt, err := s.readRefresh(ctx, c, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		refreshes = append(refreshes, rt)
	}
	return accesses, refreshes, nil
}

func (s *RedisStorage) RevokeFamily(ctx context.Context, userID uint, appID string, at time.Time) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		accesses, refreshes, err := s.family(ctx, tx, userID, appID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, a := range accesses {
				s.deleteAccess(ctx, pipe, a)
			}
			for _, rt := range refreshes {
				rt.AccessTokenID = ""
				if !rt.IsRevoked() {
					stamp := at
					rt.Revoked = &stamp
				}
				if err := s.writeRefresh(ctx, pipe, rt); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	}, s.familyKey(kindFamilyAccess, userID, appID), s.familyKey(kindFamilyRefresh, userID, appID))
}

func (s *RedisStorage) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		rt, err := s.readRefresh(ctx, tx, id)
		if err != nil {
			return err
		}
		access, err := s.linkedAccess(ctx, tx, rt)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if access != nil {
				s.deleteAccess(ctx, pipe, access)
			}
			rt.AccessTokenID = ""
			if !rt.IsRevoked() {
				stamp := at
				rt.Revoked = &stamp
			}
			return s.writeRefresh(ctx, pipe, rt)
		})
		return err
	}, s.key(kindRefresh, id))
}

func (s *RedisStorage) DeleteAccessToken(ctx context.Context, id string) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		at, err := s.readAccess(ctx, tx, id)
		if err != nil {
			return err
		}
		rt, err := s.refreshOfAccess(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.deleteAccess(ctx, pipe, at)
			if rt == nil {
				return nil
			}
			rt.AccessTokenID = ""
			return s.writeRefresh(ctx, pipe, rt)
		})
		return err
	}, s.key(kindAccess, id), s.key(kindRefreshAccess, id))
}

func (s *RedisStorage) refreshOfAccess(ctx context.Context, c redis.Cmdable, accessID string) (*RefreshToken, error) {
	rid, err := getString(ctx, c, s.key(kindRefreshAccess, accessID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rt, err := s.readRefresh(ctx, c, rid)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rt, err
}

func (s *RedisStorage) DeleteAccessTokens(ctx context.Context, userID uint, appID string) (int64, error) {
	var n int64
	err := s.watch(ctx, func(tx *redis.Tx) error {
		accesses, refreshes, err := s.family(ctx, tx, userID, appID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, a := range accesses {
				s.deleteAccess(ctx, pipe, a)
			}
			for _, rt := range refreshes {
				if rt.AccessTokenID == "" {
					continue
				}
				rt.AccessTokenID = ""
				if err := s.writeRefresh(ctx, pipe, rt); err != nil {
					return err
				}
			}
			return nil
		})
		n = int64(len(accesses))
		return err
	}, s.familyKey(kindFamilyAccess, userID, appID), s.familyKey(kindFamilyRefresh, userID, appID))
	return n, err
}

func (s *RedisStorage) DeleteRefreshTokens(ctx context.Context, userID uint, appID string) (int64, error) {
	var n int64
	err := s.watch(ctx, func(tx *redis.Tx) error {
		_, refreshes, err := s.family(ctx, tx, userID, appID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, rt := range refreshes {
				s.deleteRefresh(ctx, pipe, rt)
			}
			return nil
		})
		n = int64(len(refreshes))
		return err
	}, s.familyKey(kindFamilyRefresh, userID, appID))
	return n, err
}

// Close closes the redis client
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
