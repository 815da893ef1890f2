package queue

import "github.com/redis/go-redis/v9"

// promoteScript moves up to ARGV[2] jobs whose score is <= ARGV[1] from the
// delayed set into the stream. It returns the number of jobs promoted.
//
// KEYS[1] delayed set, KEYS[2] jobs hash, KEYS[3] stream.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(due) do
  local data = redis.call('HGET', KEYS[2], id)
  redis.call('ZREM', KEYS[1], id)
  redis.call('HDEL', KEYS[2], id)
  if data then
    redis.call('XADD', KEYS[3], '*', 'id', id, 'data', data)
  end
end
return #due
`)

// scheduleNXScript adds a delayed job only when no job with the same ID is
// waiting. It returns 1 when the job was added.
//
// KEYS[1] delayed set, KEYS[2] jobs hash. ARGV: id, score, data.
var scheduleNXScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1
`)
