package database

import (
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Connection definition connect setting
type Connection struct {
	ConnectStr string

	RetryCount    int
	RetryInterval time.Duration
}

// MongoDB definition mongo db
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// RedisConnection definition redis (single node or sentinel)
type RedisConnection struct {
	Addr          string
	MasterName    string
	SentinelAddrs []string
	DB            int
}

// WebSocketConnection definition websocket dial setting
type WebSocketConnection struct {
	URL    string
	Header http.Header

	RetryCount    int
	RetryInterval time.Duration
}
