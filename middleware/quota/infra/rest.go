package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"verity-gateway/middleware/quota/domain"
)

// RESTStore fala com um Redis exposto por endpoint REST (estilo Upstash):
// um POST por comando, corpo = array JSON ["COMANDO", arg1, ...],
// Authorization: Bearer <token>, resposta = {"result": ...}.
//
// Qualquer status não-2xx ou corpo malformado vira erro de comando. O store
// em si não aplica fail-open — isso é responsabilidade de quem chama
// (camada application).
type RESTStore struct {
	url    string
	token  string
	client *http.Client
}

type RESTOption func(*RESTStore)

// WithHTTPClient troca o *http.Client (timeout, transporte, etc).
func WithHTTPClient(c *http.Client) RESTOption {
	return func(s *RESTStore) { s.client = c }
}

func NewRESTStore(url, token string, opts ...RESTOption) *RESTStore {
	s := &RESTStore{
		url:   url,
		token: token,
		// timeout defensivo; quem precisar de deadline mais curto usa ctx.
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// command envia um comando e devolve o campo "result" cru.
// Números chegam como json.Number (ver UseNumber) e argumentos numéricos são
// enviados como string — Redis aceita e evita notação científica do
// marshalling de float64.
func (s *RESTStore) command(ctx context.Context, args ...any) (any, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("store: marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("store: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// lê um pedaço do corpo só para diagnóstico no log
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("store: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out struct {
		Result any    `json:"result"`
		Error  string `json:"error"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("store: malformed response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("store: %s", out.Error)
	}
	return out.Result, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("store: unexpected result type %T", v)
	}
}

func asStringSlice(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("store: unexpected result type %T", v)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		switch s := item.(type) {
		case string:
			out = append(out, s)
		case json.Number:
			out = append(out, s.String())
		default:
			return nil, fmt.Errorf("store: unexpected array item type %T", item)
		}
	}
	return out, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}

func (s *RESTStore) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := s.command(ctx, "GET", key)
	if err != nil {
		return "", false, err
	}
	if res == nil {
		return "", false, nil
	}
	v, ok := res.(string)
	if !ok {
		return "", false, fmt.Errorf("store: unexpected result type %T", res)
	}
	return v, true, nil
}

func (s *RESTStore) Set(ctx context.Context, key, value string, opts domain.SetOptions) (bool, error) {
	args := []any{"SET", key, value}
	switch {
	case opts.PX > 0:
		args = append(args, "PX", strconv.FormatInt(opts.PX.Milliseconds(), 10))
	case opts.EX > 0:
		args = append(args, "EX", formatSeconds(opts.EX))
	}
	if opts.NX {
		args = append(args, "NX")
	} else if opts.XX {
		args = append(args, "XX")
	}

	res, err := s.command(ctx, args...)
	if err != nil {
		return false, err
	}
	// com NX/XX, condição não satisfeita vem como null
	return res != nil, nil
}

func (s *RESTStore) Incr(ctx context.Context, key string) (int64, error) {
	res, err := s.command(ctx, "INCR", key)
	if err != nil {
		return 0, err
	}
	return asInt64(res)
}

func (s *RESTStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	res, err := s.command(ctx, "INCRBY", key, strconv.FormatInt(n, 10))
	if err != nil {
		return 0, err
	}
	return asInt64(res)
}

func (s *RESTStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	res, err := s.command(ctx, "EXPIRE", key, formatSeconds(ttl))
	if err != nil {
		return false, err
	}
	n, err := asInt64(res)
	return n == 1, err
}

func (s *RESTStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	res, err := s.command(ctx, "TTL", key)
	if err != nil {
		return 0, err
	}
	n, err := asInt64(res)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func (s *RESTStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, errors.New("store: DEL requires at least one key")
	}
	args := make([]any, 0, len(keys)+1)
	args = append(args, "DEL")
	for _, k := range keys {
		args = append(args, k)
	}
	res, err := s.command(ctx, args...)
	if err != nil {
		return 0, err
	}
	return asInt64(res)
}

func (s *RESTStore) ZAdd(ctx context.Context, key string, score float64, member string) (int64, error) {
	res, err := s.command(ctx, "ZADD", key, formatScore(score), member)
	if err != nil {
		return 0, err
	}
	return asInt64(res)
}

func (s *RESTStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	res, err := s.command(ctx, "ZREMRANGEBYSCORE", key, formatScore(min), formatScore(max))
	if err != nil {
		return 0, err
	}
	return asInt64(res)
}

func (s *RESTStore) ZCard(ctx context.Context, key string) (int64, error) {
	res, err := s.command(ctx, "ZCARD", key)
	if err != nil {
		return 0, err
	}
	return asInt64(res)
}

func (s *RESTStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	res, err := s.command(ctx, "ZRANGE", key,
		strconv.FormatInt(start, 10), strconv.FormatInt(stop, 10))
	if err != nil {
		return nil, err
	}
	return asStringSlice(res)
}

func (s *RESTStore) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]domain.ZMember, error) {
	res, err := s.command(ctx, "ZRANGE", key,
		strconv.FormatInt(start, 10), strconv.FormatInt(stop, 10), "WITHSCORES")
	if err != nil {
		return nil, err
	}
	flat, err := asStringSlice(res)
	if err != nil {
		return nil, err
	}
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("store: odd WITHSCORES reply length %d", len(flat))
	}
	out := make([]domain.ZMember, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		score, err := strconv.ParseFloat(flat[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("store: bad score %q: %w", flat[i+1], err)
		}
		out = append(out, domain.ZMember{Member: flat[i], Score: score})
	}
	return out, nil
}

func (s *RESTStore) HSet(ctx context.Context, key, field, value string) error {
	_, err := s.command(ctx, "HSET", key, field, value)
	return err
}

func (s *RESTStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	res, err := s.command(ctx, "HGET", key, field)
	if err != nil {
		return "", false, err
	}
	if res == nil {
		return "", false, nil
	}
	v, ok := res.(string)
	if !ok {
		return "", false, fmt.Errorf("store: unexpected result type %T", res)
	}
	return v, true, nil
}

func (s *RESTStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	res, err := s.command(ctx, "HGETALL", key)
	if err != nil {
		return nil, err
	}
	// resposta vem achatada: [campo, valor, campo, valor, ...]
	flat, err := asStringSlice(res)
	if err != nil {
		return nil, err
	}
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("store: odd HGETALL reply length %d", len(flat))
	}
	out := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		out[flat[i]] = flat[i+1]
	}
	return out, nil
}

func (s *RESTStore) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	res, err := s.command(ctx, "HINCRBY", key, field, strconv.FormatInt(n, 10))
	if err != nil {
		return 0, err
	}
	return asInt64(res)
}
