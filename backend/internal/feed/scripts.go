package feed

import "github.com/redis/go-redis/v9"

// createScript creates the feed hash, seeds the account set and records the
// seed version as a floor for later deltas. Returns 0 if the feed exists.
//
// KEYS: meta, accounts, versions, index
// ARGV: user, group, sort, created_at, seed_version, accounts...
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'user_id', ARGV[1],
	'name', ARGV[2],
	'sort', ARGV[3],
	'show_viewed', '0',
	'created_at', ARGV[4],
	'seed_version', ARGV[5])
for i = 6, #ARGV do
	redis.call('SADD', KEYS[2], ARGV[i])
	redis.call('HSET', KEYS[3], ARGV[i], ARGV[5])
end
redis.call('SADD', KEYS[4], ARGV[1])
return 1
`)

// deltaScript applies one account delta if it is newer than anything already
// applied for that account. A removal also drops the account's posts.
// Returns -1 when the feed is missing, 0 when the delta is stale or
// duplicated, 1 when applied.
//
// KEYS: meta, accounts, versions, posts
// ARGV: account, present (1|0), version, post member prefix of account
var deltaScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local version = tonumber(ARGV[3])
local floor = tonumber(redis.call('HGET', KEYS[1], 'seed_version') or '0')
local current = tonumber(redis.call('HGET', KEYS[3], ARGV[1]) or '0')
if current < floor then
	current = floor
end
if version <= current then
	return 0
end
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
if ARGV[2] == '1' then
	redis.call('SADD', KEYS[2], ARGV[1])
else
	redis.call('SREM', KEYS[2], ARGV[1])
	local prefix = ARGV[4]
	for _, member in ipairs(redis.call('ZRANGE', KEYS[4], 0, -1)) do
		if string.sub(member, 1, #prefix) == prefix then
			redis.call('ZREM', KEYS[4], member)
		end
	end
end
return 1
`)

// setFieldScript updates one hash field of an existing feed.
// Returns 0 when the feed is missing.
//
// KEYS: meta
// ARGV: field, value
var setFieldScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// appendPostScript adds a post to an existing feed and trims the oldest
// entries beyond the cap. Posts by authors outside the feed's accounts are
// skipped. Returns 0 when the feed is missing, 2 when skipped.
//
// KEYS: meta, posts, accounts
// ARGV: score, member, cap, author
var appendPostScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
if redis.call('SISMEMBER', KEYS[3], ARGV[4]) == 0 then
	return 2
end
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
local cap = tonumber(ARGV[3])
if cap > 0 then
	redis.call('ZREMRANGEBYRANK', KEYS[2], 0, -(cap + 1))
end
return 1
`)
