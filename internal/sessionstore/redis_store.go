package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quizlive/internal/apperr"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore is the Redis-backed Store implementation. Key naming follows
// spec.md §4.A: session:{id}, session:{id}:participants,
// session:{id}:leaderboard, participant:{pid}:session,
// scoring:{sid}:{qid}:buffer.
type RedisStore struct {
	rdb    *redis.Client
	scorer LeaderboardScorer
	idleTTL time.Duration
}

// NewRedisStore wires a RedisStore over an already-connected client.
func NewRedisStore(rdb *redis.Client, scorer LeaderboardScorer, idleTTL time.Duration) *RedisStore {
	if scorer == nil {
		scorer = CompositeIntScorer{}
	}
	return &RedisStore{rdb: rdb, scorer: scorer, idleTTL: idleTTL}
}

// NewRedisClient connects to Redis from a URL, mirroring the teacher's
// connectivity-checked client construction.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 20
	opts.MinIdleConns = 5

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	log.Info().Msg("redis connection established")
	return client, nil
}

func sessionKey(id string) string            { return "session:" + id }
func sessionOwnerKey(id string) string        { return "session:" + id + ":owner" }
func participantsKey(sessionID string) string { return "session:" + sessionID + ":participants" }
func leaderboardKey(sessionID string) string  { return "session:" + sessionID + ":leaderboard" }
func participantKey(pid string) string        { return "participant:" + pid }
func participantSessionKey(pid string) string { return "participant:" + pid + ":session" }
func joinCodeKey(code string) string          { return "joincode:" + code }
func answerKey(pid, qid string) string        { return "answer:" + pid + ":" + qid }
func answerSeqKey(pid string) string          { return "participant:" + pid + ":answer_seq" }
func scoringBufferKey(sid, qid string) string { return "scoring:" + sid + ":" + qid + ":buffer" }

func (s *RedisStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StorageUnavailable(err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, apperr.Internal(fmt.Errorf("decoding session: %w", err))
	}
	return &sess, nil
}

func (s *RedisStore) PutSession(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return apperr.Internal(fmt.Errorf("encoding session: %w", err))
	}
	if err := s.rdb.Set(ctx, sessionKey(session.SessionID), raw, s.idleTTL).Err(); err != nil {
		return apperr.StorageUnavailable(err)
	}
	if session.JoinCode != "" {
		if err := s.rdb.Set(ctx, joinCodeKey(session.JoinCode), session.SessionID, s.idleTTL).Err(); err != nil {
			return apperr.StorageUnavailable(err)
		}
	}
	return nil
}

// GetSessionByJoinCode resolves the join code index maintained by PutSession
// and loads the session it currently points at.
func (s *RedisStore) GetSessionByJoinCode(ctx context.Context, joinCode string) (*Session, error) {
	sessionID, err := s.rdb.Get(ctx, joinCodeKey(joinCode)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StorageUnavailable(err)
	}
	return s.GetSession(ctx, sessionID)
}

// casStateScript performs the compare-and-set on the state field only,
// leaving the rest of the session blob untouched, and returns 1 on success.
var casStateScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local decoded = cjson.decode(raw)
if decoded.state ~= ARGV[1] then
  return 0
end
decoded.state = ARGV[2]
redis.call("SET", KEYS[1], cjson.encode(decoded), "KEEPTTL")
return 1
`)

func (s *RedisStore) CASSessionState(ctx context.Context, sessionID string, expected, next State) (bool, error) {
	res, err := casStateScript.Run(ctx, s.rdb, []string{sessionKey(sessionID)}, string(expected), string(next)).Int()
	if err != nil {
		return false, apperr.StorageUnavailable(err)
	}
	return res == 1, nil
}

func (s *RedisStore) GetParticipant(ctx context.Context, participantID string) (*Participant, error) {
	raw, err := s.rdb.Get(ctx, participantKey(participantID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StorageUnavailable(err)
	}
	var p Participant
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperr.Internal(fmt.Errorf("decoding participant: %w", err))
	}
	return &p, nil
}

func (s *RedisStore) PutParticipant(ctx context.Context, p *Participant) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return apperr.Internal(fmt.Errorf("encoding participant: %w", err))
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, participantKey(p.ParticipantID), raw, s.idleTTL)
	pipe.Set(ctx, participantSessionKey(p.ParticipantID), p.SessionID, s.idleTTL)
	pipe.SAdd(ctx, participantsKey(p.SessionID), p.ParticipantID)
	pipe.Expire(ctx, participantsKey(p.SessionID), s.idleTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.StorageUnavailable(err)
	}
	return nil
}

func (s *RedisStore) GetParticipantSession(ctx context.Context, participantID string) (string, error) {
	sid, err := s.rdb.Get(ctx, participantSessionKey(participantID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", apperr.StorageUnavailable(err)
	}
	return sid, nil
}

func (s *RedisStore) ListParticipants(ctx context.Context, sessionID string) ([]*Participant, error) {
	ids, err := s.rdb.SMembers(ctx, participantsKey(sessionID)).Result()
	if err != nil {
		return nil, apperr.StorageUnavailable(err)
	}
	out := make([]*Participant, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetParticipant(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// updateScoreScript applies the score update atomically, regardless of
// concurrent readers, without requiring a round trip per field.
var updateScoreScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local p = cjson.decode(raw)
p.totalScore = tonumber(ARGV[1])
p.totalTimeMs = tonumber(ARGV[2])
p.lastQuestionScore = tonumber(ARGV[3])
p.streakCount = tonumber(ARGV[4])
redis.call("SET", KEYS[1], cjson.encode(p), "KEEPTTL")
return 1
`)

func (s *RedisStore) UpdateParticipantScore(ctx context.Context, participantID string, totalScore, totalTimeMs, lastQuestionScore int64, streakCount int) error {
	res, err := updateScoreScript.Run(ctx, s.rdb, []string{participantKey(participantID)},
		totalScore, totalTimeMs, lastQuestionScore, streakCount).Int()
	if err != nil {
		return apperr.StorageUnavailable(err)
	}
	if res == 0 {
		return apperr.NotFound(apperr.CodeParticipantNotFound, "participant not found")
	}
	return nil
}

func (s *RedisStore) SetParticipantEliminated(ctx context.Context, participantID string, eliminated bool) error {
	p, err := s.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if p == nil {
		return apperr.NotFound(apperr.CodeParticipantNotFound, "participant not found")
	}
	p.IsEliminated = eliminated
	return s.PutParticipant(ctx, p)
}

func (s *RedisStore) UpsertLeaderboard(ctx context.Context, sessionID, participantID string, score float64) error {
	if err := s.rdb.ZAdd(ctx, leaderboardKey(sessionID), redis.Z{Score: score, Member: participantID}).Err(); err != nil {
		return apperr.StorageUnavailable(err)
	}
	s.rdb.Expire(ctx, leaderboardKey(sessionID), s.idleTTL)
	return nil
}

func (s *RedisStore) GetLeaderboard(ctx context.Context, sessionID string, topN int) ([]LeaderboardEntry, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, leaderboardKey(sessionID), 0, int64(topN-1)).Result()
	if err != nil {
		return nil, apperr.StorageUnavailable(err)
	}
	entries := make([]LeaderboardEntry, 0, len(zs))
	rank := 0
	var lastScore float64
	for i, z := range zs {
		if i == 0 || z.Score != lastScore {
			rank = i + 1
		}
		entries = append(entries, LeaderboardEntry{
			ParticipantID: z.Member.(string),
			Rank:          rank,
		})
		lastScore = z.Score
	}

	// The sorted set's score is CompositeIntScorer's packed sort key, not
	// the display totalScore, so fetch the real value off each
	// participant row in one round trip.
	if len(entries) == 0 {
		return entries, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(entries))
	for i, e := range entries {
		cmds[i] = pipe.Get(ctx, participantKey(e.ParticipantID))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, apperr.StorageUnavailable(err)
	}
	for i, cmd := range cmds {
		raw, err := cmd.Bytes()
		if err != nil {
			continue // participant row expired or missing: leave Score at 0
		}
		var p Participant
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		entries[i].Score = p.TotalScore
	}
	return entries, nil
}

func (s *RedisStore) GetRank(ctx context.Context, sessionID, participantID string) (int, error) {
	rank, err := s.rdb.ZRevRank(ctx, leaderboardKey(sessionID), participantID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.StorageUnavailable(err)
	}
	return int(rank) + 1, nil
}

func (s *RedisStore) AppendAnswer(ctx context.Context, answer *Answer) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return apperr.Internal(fmt.Errorf("encoding answer: %w", err))
	}
	// SetNX enforces "at most one answer per (participantId, questionId)"
	// at the storage layer (property 1); the caller still checks first for
	// a fast-path rejection, but this guards the race.
	ok, err := s.rdb.SetNX(ctx, answerKey(answer.ParticipantID, answer.QuestionID), raw, s.idleTTL).Result()
	if err != nil {
		return apperr.StorageUnavailable(err)
	}
	if !ok {
		return apperr.Conflict(apperr.CodeDuplicateAnswer, "an answer was already recorded for this question")
	}
	return nil
}

func (s *RedisStore) MarkAnswerScored(ctx context.Context, answer *Answer) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return apperr.Internal(fmt.Errorf("encoding scored answer: %w", err))
	}
	if err := s.rdb.Set(ctx, answerKey(answer.ParticipantID, answer.QuestionID), raw, s.idleTTL).Err(); err != nil {
		return apperr.StorageUnavailable(err)
	}
	return nil
}

func (s *RedisStore) GetAnswer(ctx context.Context, participantID, questionID string) (*Answer, error) {
	raw, err := s.rdb.Get(ctx, answerKey(participantID, questionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StorageUnavailable(err)
	}
	var a Answer
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, apperr.Internal(fmt.Errorf("decoding answer: %w", err))
	}
	return &a, nil
}

func (s *RedisStore) BatchInsertAnswers(ctx context.Context, answers []*Answer) error {
	// Idempotent on answerId: re-overwriting the same hash key is safe.
	pipe := s.rdb.TxPipeline()
	for _, a := range answers {
		raw, err := json.Marshal(a)
		if err != nil {
			return apperr.Internal(fmt.Errorf("encoding answer: %w", err))
		}
		pipe.Set(ctx, answerKey(a.ParticipantID, a.QuestionID), raw, s.idleTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.StorageUnavailable(err)
	}
	return nil
}

func (s *RedisStore) BufferAnswerForScoring(ctx context.Context, sessionID, questionID string, answer *Answer) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return apperr.Internal(fmt.Errorf("encoding buffered answer: %w", err))
	}
	if err := s.rdb.RPush(ctx, scoringBufferKey(sessionID, questionID), raw).Err(); err != nil {
		return apperr.StorageUnavailable(err)
	}
	s.rdb.Expire(ctx, scoringBufferKey(sessionID, questionID), s.idleTTL)
	return nil
}

func (s *RedisStore) DrainAnswerBuffer(ctx context.Context, sessionID, questionID string) ([]*Answer, error) {
	key := scoringBufferKey(sessionID, questionID)
	raws, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, apperr.StorageUnavailable(err)
	}
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return nil, apperr.StorageUnavailable(err)
	}
	out := make([]*Answer, 0, len(raws))
	for _, raw := range raws {
		var a Answer
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			continue
		}
		out = append(out, &a)
	}
	return out, nil
}

// releaseLeaseScript only deletes the lease if it's still held by the
// caller, grounded on the SETNX + Lua compare-and-delete distributed lock
// pattern.
var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var renewLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (s *RedisStore) AcquireOwnerLease(ctx context.Context, sessionID, ownerID string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, sessionOwnerKey(sessionID), ownerID, ttl).Result()
	if err != nil {
		return false, apperr.StorageUnavailable(err)
	}
	return ok, nil
}

func (s *RedisStore) RenewOwnerLease(ctx context.Context, sessionID, ownerID string, ttl time.Duration) (bool, error) {
	res, err := renewLeaseScript.Run(ctx, s.rdb, []string{sessionOwnerKey(sessionID)}, ownerID, int(ttl.Seconds())).Int()
	if err != nil {
		return false, apperr.StorageUnavailable(err)
	}
	return res == 1, nil
}

func (s *RedisStore) ReleaseOwnerLease(ctx context.Context, sessionID, ownerID string) error {
	if _, err := releaseLeaseScript.Run(ctx, s.rdb, []string{sessionOwnerKey(sessionID)}, ownerID).Int(); err != nil {
		return apperr.StorageUnavailable(err)
	}
	return nil
}

func (s *RedisStore) NextAnswerID(ctx context.Context, participantID string) (int64, error) {
	n, err := s.rdb.Incr(ctx, answerSeqKey(participantID)).Result()
	if err != nil {
		return 0, apperr.StorageUnavailable(err)
	}
	return n, nil
}

func (s *RedisStore) Health(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(pingCtx).Err()
}

// Score exposes the configured LeaderboardScorer so callers computing a new
// leaderboard key don't need their own copy of the encoding.
func (s *RedisStore) Score(totalScore, totalTimeMs int64) float64 {
	return s.scorer.Score(totalScore, totalTimeMs)
}
