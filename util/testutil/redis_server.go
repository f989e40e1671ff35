package testutil

import (
	"github.com/alicebob/miniredis/v2"
)

// RedisServer is an in-memory Redis for tests of the evidence
// record store.
type RedisServer struct {
	server *miniredis.Miniredis
}

func NewRedisServer() *RedisServer {
	server, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	return &RedisServer{
		server: server,
	}
}

func (s *RedisServer) Addr() string {
	return s.server.Addr()
}

// FlushAll clears every key so tests don't see each other's records.
func (s *RedisServer) FlushAll() {
	s.server.FlushAll()
}

func (s *RedisServer) Close() {
	s.server.Close()
}
